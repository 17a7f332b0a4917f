package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an interview has no evaluation yet.
var ErrNotFound = errors.New("evaluation: not found")

// PostgresStore persists one Evaluation per Interview with
// replace-in-place semantics.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const evalSchema = `
CREATE TABLE IF NOT EXISTS evaluations (
    interview_id TEXT PRIMARY KEY,
    overall_score DOUBLE PRECISION NOT NULL,
    dimensions JSONB NOT NULL,
    strengths JSONB NOT NULL,
    weaknesses JSONB NOT NULL,
    recommend BOOLEAN NOT NULL,
    proctoring_summary TEXT NOT NULL DEFAULT '',
    report_ref TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
`

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, evalSchema); err != nil {
		return nil, fmt.Errorf("evaluation: init schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Upsert inserts the evaluation, replacing any earlier assembly for
// the same interview.
func (s *PostgresStore) Upsert(ctx context.Context, ev Evaluation) error {
	dims, err := json.Marshal(ev.Dimensions)
	if err != nil {
		return err
	}
	strengths, err := json.Marshal(orEmpty(ev.Strengths))
	if err != nil {
		return err
	}
	weaknesses, err := json.Marshal(orEmpty(ev.Weaknesses))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO evaluations (interview_id, overall_score, dimensions, strengths, weaknesses, recommend, proctoring_summary, report_ref, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (interview_id) DO UPDATE SET
		   overall_score=EXCLUDED.overall_score,
		   dimensions=EXCLUDED.dimensions,
		   strengths=EXCLUDED.strengths,
		   weaknesses=EXCLUDED.weaknesses,
		   recommend=EXCLUDED.recommend,
		   proctoring_summary=EXCLUDED.proctoring_summary,
		   report_ref=EXCLUDED.report_ref,
		   created_at=EXCLUDED.created_at`,
		ev.InterviewID, ev.OverallScore, dims, strengths, weaknesses,
		ev.Recommend, ev.ProctoringSummary, ev.ReportRef, ev.CreatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, interviewID string) (Evaluation, error) {
	var ev Evaluation
	var dims, strengths, weaknesses []byte
	err := s.pool.QueryRow(ctx,
		`SELECT interview_id, overall_score, dimensions, strengths, weaknesses, recommend, proctoring_summary, report_ref, created_at
		 FROM evaluations WHERE interview_id=$1`, interviewID).
		Scan(&ev.InterviewID, &ev.OverallScore, &dims, &strengths, &weaknesses,
			&ev.Recommend, &ev.ProctoringSummary, &ev.ReportRef, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	if err != nil {
		return Evaluation{}, err
	}
	if err := json.Unmarshal(dims, &ev.Dimensions); err != nil {
		return Evaluation{}, err
	}
	if err := json.Unmarshal(strengths, &ev.Strengths); err != nil {
		return Evaluation{}, err
	}
	if err := json.Unmarshal(weaknesses, &ev.Weaknesses); err != nil {
		return Evaluation{}, err
	}
	return ev, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
