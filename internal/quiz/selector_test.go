package quiz

import (
	"errors"
	"fmt"
	"testing"
)

func TestDrawDistinct(t *testing.T) {
	pool := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		pool = append(pool, fmt.Sprintf("q%02d", i))
	}
	got, err := Draw(pool, 10)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 ids, got %d", len(got))
	}
	seen := map[string]bool{}
	inPool := map[string]bool{}
	for _, id := range pool {
		inPool[id] = true
	}
	for _, id := range got {
		if seen[id] {
			t.Fatalf("duplicate id in draw: %s", id)
		}
		if !inPool[id] {
			t.Fatalf("id not from pool: %s", id)
		}
		seen[id] = true
	}
}

func TestDrawFullPool(t *testing.T) {
	pool := []string{"a", "b", "c"}
	got, err := Draw(pool, 3)
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(got))
	}
}

func TestDrawPoolExhausted(t *testing.T) {
	if _, err := Draw([]string{"a", "b"}, 3); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	// duplicates must not count toward the distinct population
	if _, err := Draw([]string{"a", "a", "a"}, 2); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted for duplicate-only pool, got %v", err)
	}
}

func TestDrawInvalidCount(t *testing.T) {
	if _, err := Draw([]string{"a"}, 0); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
}

func TestParseType(t *testing.T) {
	if qt, ok := ParseType(" Yearly "); !ok || qt != TypeYearly {
		t.Fatalf("ParseType Yearly: %v %v", qt, ok)
	}
	if qt, ok := ParseType("Topical"); !ok || qt != TypeTopical {
		t.Fatalf("ParseType Topical: %v %v", qt, ok)
	}
	if _, ok := ParseType("Weekly"); ok {
		t.Fatalf("expected failure for unknown quiz type")
	}
}

func TestBucketKeyAndValidate(t *testing.T) {
	b := NewYearlyBucket("s1", "y1")
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if b.Key() != "s1:yearly:y1" {
		t.Fatalf("unexpected key: %s", b.Key())
	}
	if err := (BucketRef{SubjectID: "s1"}).Validate(); !errors.Is(err, ErrInvalidBucket) {
		t.Fatalf("expected ErrInvalidBucket, got %v", err)
	}
}
