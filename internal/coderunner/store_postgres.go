package coderunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/interviewrt/core/internal/clockid"
)

// PostgresStore persists coding questions and submissions. Questions
// double as the runtime QuestionBank.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clockid.Clock
}

const codeSchema = `
CREATE TABLE IF NOT EXISTS coding_questions (
    id TEXT PRIMARY KEY,
    statement TEXT NOT NULL,
    test_cases JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS coding_submissions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    question_id TEXT NOT NULL REFERENCES coding_questions(id),
    language TEXT NOT NULL,
    source TEXT NOT NULL,
    run_results JSONB NOT NULL,
    llm_review_score INT NOT NULL DEFAULT 0,
    combined_score INT NOT NULL DEFAULT 0,
    feedback_text TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_coding_submissions_session
    ON coding_submissions (session_id);
`

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, clock clockid.Clock) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, codeSchema); err != nil {
		return nil, fmt.Errorf("coderunner: init schema: %w", err)
	}
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &PostgresStore{pool: pool, clock: clock}, nil
}

// Question satisfies QuestionBank.
func (s *PostgresStore) Question(ctx context.Context, id string) (Question, error) {
	var q Question
	var casesRaw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, statement, test_cases FROM coding_questions WHERE id=$1`, id).
		Scan(&q.ID, &q.Statement, &casesRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Question{}, ErrUnknownQuestion
	}
	if err != nil {
		return Question{}, err
	}
	if err := json.Unmarshal(casesRaw, &q.TestCases); err != nil {
		return Question{}, fmt.Errorf("coderunner: decode test cases: %w", err)
	}
	return q, nil
}

// PutQuestion inserts or replaces a question and its test cases.
func (s *PostgresStore) PutQuestion(ctx context.Context, q Question) error {
	cases, err := json.Marshal(q.TestCases)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO coding_questions (id, statement, test_cases) VALUES ($1,$2,$3)
		 ON CONFLICT (id) DO UPDATE SET statement=EXCLUDED.statement, test_cases=EXCLUDED.test_cases`,
		q.ID, q.Statement, cases)
	return err
}

// SaveResult persists an evaluated submission.
func (s *PostgresStore) SaveResult(ctx context.Context, res Result) (string, error) {
	runs, err := json.Marshal(res.RunResults)
	if err != nil {
		return "", err
	}
	id := clockid.NewID()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO coding_submissions (id, session_id, question_id, language, source, run_results, llm_review_score, combined_score, feedback_text, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, res.Submission.SessionID, res.Submission.QuestionID, res.Submission.Language,
		res.Submission.Source, runs, res.ReviewScore, res.Combined, res.Feedback, s.clock.Now())
	if err != nil {
		return "", fmt.Errorf("coderunner: save submission: %w", err)
	}
	return id, nil
}

// ResultsForSession returns all evaluated submissions for a session,
// oldest first, for the evaluation assembler.
func (s *PostgresStore) ResultsForSession(ctx context.Context, sessionID string) ([]Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, question_id, language, source, run_results, llm_review_score, combined_score, feedback_text
		 FROM coding_submissions WHERE session_id=$1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var res Result
		var runs []byte
		if err := rows.Scan(&res.Submission.SessionID, &res.Submission.QuestionID, &res.Submission.Language,
			&res.Submission.Source, &runs, &res.ReviewScore, &res.Combined, &res.Feedback); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(runs, &res.RunResults); err != nil {
			return nil, fmt.Errorf("coderunner: decode run results: %w", err)
		}
		for _, rr := range res.RunResults {
			if rr.Passed {
				res.TestsPassed++
			}
		}
		res.TestsTotal = len(res.RunResults)
		out = append(out, res)
	}
	return out, rows.Err()
}

// MemoryBank is an in-memory QuestionBank for tests and dev setups
// without a database.
type MemoryBank struct {
	Questions map[string]Question
}

func (b *MemoryBank) Question(_ context.Context, id string) (Question, error) {
	q, ok := b.Questions[id]
	if !ok {
		return Question{}, ErrUnknownQuestion
	}
	return q, nil
}
