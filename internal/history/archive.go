package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/quizduel-backend/internal/match"
)

// Archive persists finished online matches to Postgres. Redis keeps results
// only for their TTL; the archive is the durable record.
type Archive struct {
	db *sql.DB
}

func NewArchive(databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SaveMatch upserts one finished room with whatever entries exist. Re-running
// it after a late submission replaces the stored results.
func (a *Archive) SaveMatch(ctx context.Context, room *match.Room, entries []*Entry) error {
	if a == nil || a.db == nil || room == nil {
		return nil
	}

	questionsRaw, _ := json.Marshal(room.QuestionIDs)
	resultsRaw, _ := json.Marshal(entries)

	q := `INSERT INTO online_matches (
	    room_id, subject_id, quiz_type, ref_id,
	    duration_sec, player1_id, player2_id, resigned_by,
	    question_ids, results, started_at, ended_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (room_id) DO UPDATE SET
	    resigned_by=EXCLUDED.resigned_by,
	    results=EXCLUDED.results,
	    ended_at=EXCLUDED.ended_at`

	_, err := a.db.ExecContext(ctx, q,
		room.ID,
		room.Bucket.SubjectID, string(room.Bucket.Type), room.Bucket.RefID,
		room.DurationSec,
		room.Player1ID, room.Player2ID, nullable(room.ResignedBy),
		string(questionsRaw), string(resultsRaw),
		room.CreatedAt, room.UpdatedAt,
	)
	return err
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
