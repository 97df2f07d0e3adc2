// Package match implements the online head-to-head core: handshake records,
// room documents, the matchmaker search loop, and the session coordinator.
// All cross-process coordination goes through conditional writes on the Redis
// documents; nothing here takes an in-process lock across operations because
// several server processes may serve the same pool of players.
package match

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/park285/quizduel-backend/internal/quiz"
)

// Error taxonomy shared by the core. Callers test with errors.Is.
var (
	// ErrValidation: a required field is missing or malformed; no state was created.
	ErrValidation = errors.New("invalid payload")
	// ErrNotFound: a referenced room or handshake does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRaceLost: a conditional write lost to a concurrent task; re-read and retry.
	ErrRaceLost = errors.New("conditional write lost")
	// ErrTimeout: a bounded retry loop ran out of attempts.
	ErrTimeout = errors.New("retry budget exhausted")
	// ErrStore: the backing store failed; surfaced as a generic failure.
	ErrStore = errors.New("store failure")
	// ErrRoomExpired: the room is gone or no longer joinable for this player.
	ErrRoomExpired = errors.New("room expired")
	// ErrOpponentLeft: the opponent slot cannot be resolved.
	ErrOpponentLeft = errors.New("opponent left")
)

// Server→client event names on the player channel.
const (
	EventStudentFind       = "student-find"
	EventNoStudentFound    = "no-student-found"
	EventPayloadError      = "payload-error"
	EventJoinRoomData      = "join-room-data"
	EventRoomExpired       = "room-expired"
	EventOpponentLeft      = "opponent-left"
	EventOpponentCompleted = "opponent-completed"
	EventOpponentResign    = "opponent-resign"
	EventCompleteResponse  = "complete-response"
	EventSubmitError       = "submit-error"
	EventHistoryData       = "get-online-history-data"
	EventHistoryError      = "get-online-history-error"
)

// Notifier pushes a named event to one connected session. Implemented by the
// transport hub; fakes stand in for it in tests.
type Notifier interface {
	Emit(ctx context.Context, sessionID, event string, data map[string]any) error
}

// Handshake is a transient "looking for an opponent" record. It is owned by
// the matchmaker and never mutated by anything else.
type Handshake struct {
	ID        string         `json:"id"`
	Bucket    quiz.BucketRef `json:"bucket"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Count     int            `json:"count"`
	Seconds   int            `json:"seconds"`
	Alive     bool           `json:"alive"`
	CreatedAt time.Time      `json:"created_at"`
}

// Room is the durable record of one paired match. Once Ended is set the
// document is read-only; rooms are never deleted so finished matches keep an
// audit trail for the archive.
type Room struct {
	ID        string         `json:"id"`
	UniqueKey string         `json:"unique_key"`
	Bucket    quiz.BucketRef `json:"bucket"`

	QuestionIDs []string `json:"question_ids"`
	DurationSec int      `json:"duration_sec"`

	Player1ID        string  `json:"player1_id"`
	Player2ID        string  `json:"player2_id"`
	Player1SessionID string  `json:"player1_session_id"`
	Player2SessionID string  `json:"player2_session_id"`
	Player1Alive     bool    `json:"player1_alive"`
	Player2Alive     bool    `json:"player2_alive"`
	Player1Remaining float64 `json:"player1_remaining_sec"`
	Player2Remaining float64 `json:"player2_remaining_sec"`

	ResignedBy string    `json:"resigned_by,omitempty"`
	Ended      bool      `json:"ended"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PairKey derives the canonical, order-independent key for two user ids.
// Repeated match attempts between the same pair map to the same key.
func PairKey(a, b string) string {
	ids := []string{strings.TrimSpace(a), strings.TrimSpace(b)}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

// SlotOf reports which player slot userID occupies: 1, 2, or 0 when absent.
func (r *Room) SlotOf(userID string) int {
	switch {
	case r.Player1ID != "" && r.Player1ID == userID:
		return 1
	case r.Player2ID != "" && r.Player2ID == userID:
		return 2
	default:
		return 0
	}
}

// Opponent returns the other player's id and currently bound session id.
func (r *Room) Opponent(userID string) (id, sessionID string) {
	switch r.SlotOf(userID) {
	case 1:
		return r.Player2ID, r.Player2SessionID
	case 2:
		return r.Player1ID, r.Player1SessionID
	default:
		return "", ""
	}
}

// AliveFor reports the alive flag of userID's own slot.
func (r *Room) AliveFor(userID string) bool {
	switch r.SlotOf(userID) {
	case 1:
		return r.Player1Alive
	case 2:
		return r.Player2Alive
	default:
		return false
	}
}

// RemainingFor returns the saved remaining time for userID's slot, falling
// back to the full room duration when nothing was saved yet.
func (r *Room) RemainingFor(userID string) float64 {
	var v float64
	switch r.SlotOf(userID) {
	case 1:
		v = r.Player1Remaining
	case 2:
		v = r.Player2Remaining
	}
	if v <= 0 {
		return float64(r.DurationSec)
	}
	return v
}

// setSession binds a fresh transport session id to userID's slot.
func (r *Room) setSession(userID, sessionID string) {
	switch r.SlotOf(userID) {
	case 1:
		r.Player1SessionID = sessionID
	case 2:
		r.Player2SessionID = sessionID
	}
}

// setAlive flips the alive flag of userID's slot.
func (r *Room) setAlive(userID string, alive bool) {
	switch r.SlotOf(userID) {
	case 1:
		r.Player1Alive = alive
	case 2:
		r.Player2Alive = alive
	}
}

// setRemaining stores the remaining seconds for userID's slot.
func (r *Room) setRemaining(userID string, sec float64) {
	switch r.SlotOf(userID) {
	case 1:
		r.Player1Remaining = sec
	case 2:
		r.Player2Remaining = sec
	}
}
