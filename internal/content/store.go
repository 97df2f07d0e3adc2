// Package content exposes the read-only quiz-content contract the match core
// consumes. The bank itself (subjects, years, topics, questions) is maintained
// by an external ingest pipeline; this package only reads it.
package content

import (
	"context"

	"github.com/park285/quizduel-backend/internal/quiz"
)

// Subject is a catalog entry with the buckets of one quiz type.
type Subject struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Buckets []Bucket `json:"buckets"`
}

// Bucket is a year or topic summary inside a subject.
type Bucket struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	QuestionCount int    `json:"question_count"`
}

type Store interface {
	// QuestionIDs returns the full question-id pool of a bucket.
	QuestionIDs(ctx context.Context, bucket quiz.BucketRef) ([]string, error)
	// Subjects lists all subjects with their buckets of the given type.
	Subjects(ctx context.Context, qt quiz.Type) ([]Subject, error)
}
