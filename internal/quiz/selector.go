package quiz

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Draw picks n distinct question ids from pool, uniformly without replacement.
// The pool is deduplicated first; asking for more ids than the pool holds is a
// caller error, never a loop.
func Draw(pool []string, n int) ([]string, error) {
	if n <= 0 {
		return nil, ErrInvalidCount
	}
	ids := dedup(pool)
	if n > len(ids) {
		return nil, fmt.Errorf("%w: requested %d of %d", ErrPoolExhausted, n, len(ids))
	}
	// partial Fisher-Yates over the first n slots
	for i := 0; i < n; i++ {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(len(ids)-i)))
		if err != nil {
			return nil, fmt.Errorf("draw questions: %w", err)
		}
		k := i + int(j.Int64())
		ids[i], ids[k] = ids[k], ids[i]
	}
	return ids[:n:n], nil
}

func dedup(pool []string) []string {
	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))
	for _, id := range pool {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
