package quiz

import (
	"errors"
	"strings"
)

// Type selects which content axis a bucket belongs to.
type Type string

const (
	TypeYearly  Type = "Yearly"
	TypeTopical Type = "Topical"
)

// ParseType normalizes a wire quiz-type string.
func ParseType(s string) (Type, bool) {
	switch strings.TrimSpace(s) {
	case string(TypeYearly):
		return TypeYearly, true
	case string(TypeTopical):
		return TypeTopical, true
	default:
		return "", false
	}
}

var (
	ErrInvalidBucket = errors.New("invalid bucket reference")
	ErrInvalidCount  = errors.New("question count must be positive")
	// ErrPoolExhausted means a bucket holds fewer distinct questions than requested.
	ErrPoolExhausted = errors.New("not enough distinct questions in bucket")
)

// BucketRef identifies one content bucket: a year or a topic of a subject.
// RefID is the year id for Yearly buckets and the topic id for Topical ones.
type BucketRef struct {
	SubjectID string `json:"subject_id"`
	Type      Type   `json:"quiz_type"`
	RefID     string `json:"ref_id"`
}

func NewYearlyBucket(subjectID, yearID string) BucketRef {
	return BucketRef{SubjectID: strings.TrimSpace(subjectID), Type: TypeYearly, RefID: strings.TrimSpace(yearID)}
}

func NewTopicalBucket(subjectID, topicID string) BucketRef {
	return BucketRef{SubjectID: strings.TrimSpace(subjectID), Type: TypeTopical, RefID: strings.TrimSpace(topicID)}
}

func (b BucketRef) Validate() error {
	if b.SubjectID == "" || b.RefID == "" {
		return ErrInvalidBucket
	}
	if b.Type != TypeYearly && b.Type != TypeTopical {
		return ErrInvalidBucket
	}
	return nil
}

// Key returns the canonical store-key fragment for this bucket.
func (b BucketRef) Key() string {
	return b.SubjectID + ":" + strings.ToLower(string(b.Type)) + ":" + b.RefID
}
