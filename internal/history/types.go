// Package history records finished quiz runs and reconciles the two sides of
// an online match into one final result.
package history

import (
	"errors"
	"time"
)

var (
	// ErrDuplicate: this user already submitted a result for the room.
	ErrDuplicate = errors.New("result already submitted")
)

// RoomTypeOnline tags entries written by the online flow; solo results carry
// their own room type.
const RoomTypeOnline = "online-room"

// Entry is one player's submitted run. Answers maps question id to the
// player's chosen answer; unanswered questions are simply absent.
type Entry struct {
	ID          string            `json:"id"`
	RoomID      string            `json:"room_id"`
	UserID      string            `json:"user_id"`
	RoomType    string            `json:"room_type"`
	QuestionIDs []string          `json:"question_ids"`
	Answers     map[string]string `json:"answers"`
	ElapsedSec  float64           `json:"elapsed_sec"`
	CreatedAt   time.Time         `json:"created_at"`
}

// LookupResult is the reconciled view of an online room's results. While the
// opponent has not submitted yet, Pending is true and Opponent is nil;
// OpponentID still names the room's other player so callers can show who the
// requester is waiting on.
type LookupResult struct {
	Pending      bool
	Mine         *Entry
	Opponent     *Entry
	OpponentID   string
	TotalSeconds int
}
