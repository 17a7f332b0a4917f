package coderunner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewrt/core/internal/llmclient"
	"github.com/interviewrt/core/internal/observability"
)

// Runner evaluates submissions: sandbox all test cases, then ask the
// LLM for a qualitative review.
type Runner struct {
	bank        QuestionBank
	sandbox     Sandbox
	reviewer    llmclient.CodeReviewLLM
	llmDeadline time.Duration
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewRunner(bank QuestionBank, sandbox Sandbox, reviewer llmclient.CodeReviewLLM, llmDeadline time.Duration, metrics *observability.Metrics, log zerolog.Logger) *Runner {
	if llmDeadline <= 0 {
		llmDeadline = 20 * time.Second
	}
	return &Runner{bank: bank, sandbox: sandbox, reviewer: reviewer, llmDeadline: llmDeadline, metrics: metrics, log: log}
}

// Execute runs sub against its question's test cases and combines the
// pass rate with the LLM review score.
func (r *Runner) Execute(ctx context.Context, sub Submission) (Result, error) {
	ctx, span := observability.StartSpan(ctx, "coderunner.Execute")
	defer span.End()

	question, err := r.bank.Question(ctx, sub.QuestionID)
	if err != nil {
		return Result{}, err
	}

	res := Result{Submission: sub, TestsTotal: len(question.TestCases)}
	var stderrExcerpt strings.Builder
	for _, tc := range question.TestCases {
		outcome, err := r.sandbox.Run(ctx, sub.Language, sub.Source, tc.Stdin)
		if err != nil {
			r.observe("error")
			r.log.Warn().Err(err).Str("test_id", tc.ID).Msg("sandbox run failed")
			res.RunResults = append(res.RunResults, RunResult{TestID: tc.ID, Stderr: err.Error()})
			continue
		}
		passed := outcome.ExitCode == 0 && normalize(outcome.Stdout) == normalize(tc.Expected)
		res.RunResults = append(res.RunResults, RunResult{
			TestID:    tc.ID,
			Passed:    passed,
			Stdout:    outcome.Stdout,
			Stderr:    outcome.Stderr,
			RuntimeMS: outcome.RuntimeMS,
		})
		if passed {
			res.TestsPassed++
			r.observe("passed")
		} else {
			r.observe("failed")
			if stderrExcerpt.Len() < 2048 && outcome.Stderr != "" {
				fmt.Fprintf(&stderrExcerpt, "[%s] %s\n", tc.ID, outcome.Stderr)
			}
		}
	}

	res.ReviewScore, res.Feedback, res.Strengths, res.Concerns = r.review(ctx, question, sub, res, stderrExcerpt.String())
	res.Combined = CombinedScore(res.TestsPassed, res.TestsTotal, res.ReviewScore)
	return res, nil
}

func (r *Runner) review(ctx context.Context, q Question, sub Submission, res Result, stderrExcerpt string) (int, string, []string, []string) {
	if r.reviewer == nil {
		return 0, "", nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.llmDeadline)
	defer cancel()

	review, err := r.reviewer.ReviewCode(callCtx, llmclient.ReviewRequest{
		ProblemStatement: q.Statement,
		Language:         sub.Language,
		Source:           sub.Source,
		TestsPassed:      res.TestsPassed,
		TestsTotal:       res.TestsTotal,
		StderrExcerpt:    stderrExcerpt,
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("code review unavailable, scoring on tests only")
		return 0, "", nil, nil
	}
	score := int(review.QualityScore*100 + 0.5)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, review.Summary, review.Strengths, review.Concerns
}

func (r *Runner) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.ObserveCodeRunOutcome(outcome)
	}
}
