package solo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/quizduel-backend/internal/content"
	"github.com/park285/quizduel-backend/internal/match"
	"github.com/park285/quizduel-backend/internal/obslog"
	"github.com/park285/quizduel-backend/internal/quiz"
)

// Service runs the solo room lifecycle. It shares the error taxonomy with
// the online core so the HTTP layer maps failures uniformly.
type Service struct {
	store   *Store
	content content.Store
}

func NewService(store *Store, cs content.Store) *Service {
	return &Service{store: store, content: cs}
}

// CreateRequest describes a new practice run.
type CreateRequest struct {
	Bucket  quiz.BucketRef
	Count   int
	Seconds int
}

// Create draws the question set and opens an alive room, returning its id.
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	if err := req.Bucket.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", match.ErrValidation, err)
	}
	if req.Count <= 0 || req.Seconds <= 0 {
		return "", fmt.Errorf("%w: count and seconds must be positive", match.ErrValidation)
	}
	pool, err := s.content.QuestionIDs(ctx, req.Bucket)
	if err != nil {
		return "", fmt.Errorf("%w: %v", match.ErrValidation, err)
	}
	questions, err := quiz.Draw(pool, req.Count)
	if err != nil {
		return "", fmt.Errorf("%w: %v", match.ErrValidation, err)
	}

	now := time.Now()
	room := &Room{
		ID:          uuid.NewString(),
		Bucket:      req.Bucket,
		QuestionIDs: questions,
		DurationSec: req.Seconds,
		Alive:       true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return "", fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	obslog.L().Info("solo room created",
		zap.String("room", room.ID), zap.String("bucket", req.Bucket.Key()))
	return room.ID, nil
}

// Get loads an alive room. A missing room is ErrNotFound; a left or finished
// one is ErrRoomExpired, which tells the client to start over.
func (s *Service) Get(ctx context.Context, roomID string) (*Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id is required", match.ErrValidation)
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	if room == nil {
		return nil, fmt.Errorf("%w: solo room %s", match.ErrNotFound, roomID)
	}
	if !room.Alive {
		return nil, fmt.Errorf("%w: solo room %s", match.ErrRoomExpired, roomID)
	}
	return room, nil
}

// Leave shuts the room down so stale tabs cannot replay it.
func (s *Service) Leave(ctx context.Context, roomID string) error {
	return s.setAlive(ctx, roomID, false)
}

// Reactivate reopens a room so the student can replay the same question set.
func (s *Service) Reactivate(ctx context.Context, roomID string) error {
	return s.setAlive(ctx, roomID, true)
}

func (s *Service) setAlive(ctx context.Context, roomID string, alive bool) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", match.ErrValidation)
	}
	found, err := s.store.SetAlive(ctx, roomID, alive)
	if err != nil {
		return fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	if !found {
		return fmt.Errorf("%w: solo room %s", match.ErrNotFound, roomID)
	}
	return nil
}

// SubmitRequest is one finished solo run.
type SubmitRequest struct {
	RoomID     string
	UserID     string
	RoomType   string
	Answers    map[string]string
	ElapsedSec float64
}

// Submit closes the room and stores the result, returning the result id.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if req.RoomID == "" || req.RoomType == "" {
		return "", fmt.Errorf("%w: room id and room type are required", match.ErrValidation)
	}
	room, err := s.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	if room == nil {
		return "", fmt.Errorf("%w: solo room %s", match.ErrNotFound, req.RoomID)
	}
	if _, err := s.store.SetAlive(ctx, req.RoomID, false); err != nil {
		return "", fmt.Errorf("%w: %v", match.ErrStore, err)
	}

	res := &Result{
		ID:          uuid.NewString(),
		RoomID:      req.RoomID,
		UserID:      req.UserID,
		RoomType:    req.RoomType,
		QuestionIDs: room.QuestionIDs,
		Answers:     req.Answers,
		ElapsedSec:  req.ElapsedSec,
		CreatedAt:   time.Now(),
	}
	if err := s.store.SaveResult(ctx, res); err != nil {
		return "", fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	return res.ID, nil
}

// Result loads one stored outcome by id.
func (s *Service) Result(ctx context.Context, resultID string) (*Result, error) {
	if resultID == "" {
		return nil, fmt.Errorf("%w: result id is required", match.ErrValidation)
	}
	res, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", match.ErrStore, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: result %s", match.ErrNotFound, resultID)
	}
	return res, nil
}
