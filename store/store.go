// Package store persists games and their accepted schedules in a local
// sqlite database. Requests and schedules are stored as JSON blobs; the
// relational part is only the per-game bookkeeping.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/rotaplanhq/rotaplan/lineup"
)

// ErrNotFound is returned when a game or schedule does not exist.
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS schedules (
	game_id     TEXT PRIMARY KEY REFERENCES games(id) ON DELETE CASCADE,
	schedule    TEXT NOT NULL,
	accepted_at TIMESTAMP NOT NULL
);
`

// GameRecord is one row of the game listing.
type GameRecord struct {
	ID          string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	HasSchedule bool
	PlayerCount int
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc sqlite serializes writes itself; a single connection keeps
	// SQLITE_BUSY out of the picture.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRequest upserts a game's request. A request without a game id gets
// a fresh one; the (possibly assigned) id is returned.
func (s *Store) SaveRequest(ctx context.Context, req *lineup.SolveRequest) (string, error) {
	if req.GameID == "" {
		req.GameID = uuid.NewString()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games (id, request, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET request = excluded.request, updated_at = excluded.updated_at`,
		req.GameID, string(body), now, now)
	if err != nil {
		return "", fmt.Errorf("save request %s: %w", req.GameID, err)
	}
	log.Debug().Str("gameID", req.GameID).Msg("request-saved")
	return req.GameID, nil
}

// LoadRequest returns the stored request for a game.
func (s *Store) LoadRequest(ctx context.Context, gameID string) (*lineup.SolveRequest, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT request FROM games WHERE id = ?`, gameID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var req lineup.SolveRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", gameID, err)
	}
	return &req, nil
}

// SaveSchedule stores a game's accepted schedule, replacing any earlier
// one. The game must already exist.
func (s *Store) SaveSchedule(ctx context.Context, gameID string, sched *lineup.RotationSchedule) error {
	body, err := json.Marshal(sched)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (game_id, schedule, accepted_at)
		SELECT id, ?, ? FROM games WHERE id = ?
		ON CONFLICT(game_id) DO UPDATE SET schedule = excluded.schedule, accepted_at = excluded.accepted_at`,
		string(body), time.Now().UTC(), gameID)
	if err != nil {
		return fmt.Errorf("save schedule %s: %w", gameID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	return nil
}

// LoadSchedule returns the accepted schedule for a game, if any.
func (s *Store) LoadSchedule(ctx context.Context, gameID string) (*lineup.RotationSchedule, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT schedule FROM schedules WHERE game_id = ?`, gameID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule for %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var sched lineup.RotationSchedule
	if err := json.Unmarshal([]byte(body), &sched); err != nil {
		return nil, fmt.Errorf("decode schedule %s: %w", gameID, err)
	}
	return &sched, nil
}

// ListGames returns all games, most recently updated first.
func (s *Store) ListGames(ctx context.Context) ([]GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.request, g.created_at, g.updated_at, s.game_id IS NOT NULL
		FROM games g LEFT JOIN schedules s ON s.game_id = g.id
		ORDER BY g.updated_at DESC, g.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GameRecord
	for rows.Next() {
		var rec GameRecord
		var body string
		if err := rows.Scan(&rec.ID, &body, &rec.CreatedAt, &rec.UpdatedAt, &rec.HasSchedule); err != nil {
			return nil, err
		}
		var req lineup.SolveRequest
		if err := json.Unmarshal([]byte(body), &req); err == nil {
			rec.PlayerCount = len(req.Roster)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteGame removes a game and its schedule.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE game_id = ?`, gameID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, gameID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	return nil
}
