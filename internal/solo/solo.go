// Package solo implements single-player practice rooms: a drawn question
// set with a clock, playable, leavable, and replayable by one student.
package solo

import (
	"time"

	"github.com/park285/quizduel-backend/internal/quiz"
)

// Room is one practice run. Alive gates entry: a left or submitted room
// rejects loads until it is reactivated.
type Room struct {
	ID          string         `json:"id"`
	Bucket      quiz.BucketRef `json:"bucket"`
	QuestionIDs []string       `json:"question_ids"`
	DurationSec int            `json:"duration_sec"`
	Alive       bool           `json:"alive"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Result is the stored outcome of a finished solo run.
type Result struct {
	ID          string            `json:"id"`
	RoomID      string            `json:"room_id"`
	UserID      string            `json:"user_id"`
	RoomType    string            `json:"room_type"`
	QuestionIDs []string          `json:"question_ids"`
	Answers     map[string]string `json:"answers"`
	ElapsedSec  float64           `json:"elapsed_sec"`
	CreatedAt   time.Time         `json:"created_at"`
}
