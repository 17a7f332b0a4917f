package dialogue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/interviewrt/core/internal/proctor"
)

// SnapshotStore persists a session's runtime turn log and warning log
// at terminal transitions. During the interview both live in memory
// (the controller and the proctor manager); this store is the durable
// copy the report and any later audits read from.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS turn_records (
    session_id TEXT NOT NULL,
    sequence INT NOT NULL,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    audio_url TEXT NOT NULL DEFAULT '',
    response_time_ms BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, sequence)
);

CREATE TABLE IF NOT EXISTS warning_events (
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    at TIMESTAMPTZ NOT NULL,
    snapshot_ref TEXT NOT NULL DEFAULT '',
    dedup_key TEXT NOT NULL,
    PRIMARY KEY (session_id, dedup_key)
);
`

func NewSnapshotStore(ctx context.Context, pool *pgxpool.Pool) (*SnapshotStore, error) {
	if _, err := pool.Exec(ctx, snapshotSchema); err != nil {
		return nil, fmt.Errorf("dialogue: init snapshot schema: %w", err)
	}
	return &SnapshotStore{pool: pool}, nil
}

// Snapshot writes the session's full turn and warning logs. Replays
// are safe: rows are keyed by (session_id, sequence) and
// (session_id, dedup_key), so a second snapshot after a resume
// upserts rather than duplicates.
func (s *SnapshotStore) Snapshot(ctx context.Context, sessionID string, turns []TurnRecord, warnings []proctor.WarningEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, t := range turns {
		_, err := tx.Exec(ctx,
			`INSERT INTO turn_records (session_id, sequence, role, text, audio_url, response_time_ms, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)
			 ON CONFLICT (session_id, sequence) DO UPDATE SET text=EXCLUDED.text, audio_url=EXCLUDED.audio_url`,
			sessionID, t.Sequence, t.Role, t.Text, t.AudioURL, t.ResponseTimeMS, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("dialogue: snapshot turn %d: %w", t.Sequence, err)
		}
	}
	for _, w := range warnings {
		_, err := tx.Exec(ctx,
			`INSERT INTO warning_events (session_id, kind, at, snapshot_ref, dedup_key)
			 VALUES ($1,$2,$3,$4,$5)
			 ON CONFLICT (session_id, dedup_key) DO NOTHING`,
			sessionID, string(w.Kind), w.At, w.SnapshotRef, w.DedupKey)
		if err != nil {
			return fmt.Errorf("dialogue: snapshot warning: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Turns reads back a session's persisted turn log in sequence order.
func (s *SnapshotStore) Turns(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sequence, role, text, audio_url, response_time_ms, created_at
		 FROM turn_records WHERE session_id=$1 ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnRecord
	for rows.Next() {
		var t TurnRecord
		if err := rows.Scan(&t.Sequence, &t.Role, &t.Text, &t.AudioURL, &t.ResponseTimeMS, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Warnings reads back a session's persisted warnings in time order.
func (s *SnapshotStore) Warnings(ctx context.Context, sessionID string) ([]proctor.WarningEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, at, snapshot_ref, dedup_key
		 FROM warning_events WHERE session_id=$1 ORDER BY at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []proctor.WarningEvent
	for rows.Next() {
		w := proctor.WarningEvent{SessionID: sessionID}
		var kind string
		if err := rows.Scan(&kind, &w.At, &w.SnapshotRef, &w.DedupKey); err != nil {
			return nil, err
		}
		w.Kind = proctor.WarningKind(kind)
		out = append(out, w)
	}
	return out, rows.Err()
}
