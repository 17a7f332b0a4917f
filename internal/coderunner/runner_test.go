package coderunner

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/interviewrt/core/internal/llmclient"
)

// scriptedSandbox returns canned outcomes keyed by stdin.
type scriptedSandbox struct {
	outcomes map[string]ExecOutcome
	err      error
}

func (s *scriptedSandbox) Run(_ context.Context, _, _, stdin string) (ExecOutcome, error) {
	if s.err != nil {
		return ExecOutcome{}, s.err
	}
	return s.outcomes[stdin], nil
}

type fixedReviewer struct {
	review llmclient.CodeReview
	err    error
}

func (r fixedReviewer) ReviewCode(context.Context, llmclient.ReviewRequest) (llmclient.CodeReview, error) {
	return r.review, r.err
}

func twoCaseBank() *MemoryBank {
	return &MemoryBank{Questions: map[string]Question{
		"q1": {
			ID:        "q1",
			Statement: "Echo the input doubled.",
			TestCases: []TestCase{
				{ID: "t1", Stdin: "2", Expected: "4"},
				{ID: "t2", Stdin: "5", Expected: "10"},
			},
		},
	}}
}

func TestExecuteCombinesTestsAndReview(t *testing.T) {
	sandbox := &scriptedSandbox{outcomes: map[string]ExecOutcome{
		"2": {Stdout: "4\n", ExitCode: 0, RuntimeMS: 12},
		"5": {Stdout: "11\n", ExitCode: 0, RuntimeMS: 10},
	}}
	reviewer := fixedReviewer{review: llmclient.CodeReview{QualityScore: 0.8, Summary: "solid"}}
	r := NewRunner(twoCaseBank(), sandbox, reviewer, 0, nil, zerolog.Nop())

	res, err := r.Execute(context.Background(), Submission{SessionID: "s1", QuestionID: "q1", Language: "python", Source: "print(int(input())*2)"})
	require.NoError(t, err)
	require.Equal(t, 1, res.TestsPassed)
	require.Equal(t, 2, res.TestsTotal)
	require.Equal(t, 80, res.ReviewScore)
	// 1/2 * 60 + 80 * 0.4 = 62
	require.Equal(t, 62, res.Combined)
	require.Equal(t, "solid", res.Feedback)
}

func TestExecuteNormalizesOutput(t *testing.T) {
	sandbox := &scriptedSandbox{outcomes: map[string]ExecOutcome{
		"2": {Stdout: "  4 \n", ExitCode: 0},
		"5": {Stdout: "10", ExitCode: 0},
	}}
	r := NewRunner(twoCaseBank(), sandbox, nil, 0, nil, zerolog.Nop())

	res, err := r.Execute(context.Background(), Submission{QuestionID: "q1", Language: "python"})
	require.NoError(t, err)
	require.Equal(t, 2, res.TestsPassed)
}

func TestExecuteNonZeroExitFailsCase(t *testing.T) {
	sandbox := &scriptedSandbox{outcomes: map[string]ExecOutcome{
		"2": {Stdout: "4", ExitCode: 1, Stderr: "Traceback"},
		"5": {Stdout: "10", ExitCode: 0},
	}}
	r := NewRunner(twoCaseBank(), sandbox, nil, 0, nil, zerolog.Nop())

	res, err := r.Execute(context.Background(), Submission{QuestionID: "q1", Language: "python"})
	require.NoError(t, err)
	require.Equal(t, 1, res.TestsPassed)
	require.False(t, res.RunResults[0].Passed)
	require.Contains(t, res.RunResults[0].Stderr, "Traceback")
}

func TestExecuteReviewFailureScoresOnTestsOnly(t *testing.T) {
	sandbox := &scriptedSandbox{outcomes: map[string]ExecOutcome{
		"2": {Stdout: "4", ExitCode: 0},
		"5": {Stdout: "10", ExitCode: 0},
	}}
	reviewer := fixedReviewer{err: errors.New("provider down")}
	r := NewRunner(twoCaseBank(), sandbox, reviewer, 0, nil, zerolog.Nop())

	res, err := r.Execute(context.Background(), Submission{QuestionID: "q1", Language: "python"})
	require.NoError(t, err)
	require.Equal(t, 0, res.ReviewScore)
	require.Equal(t, 60, res.Combined)
}

func TestExecuteUnknownQuestion(t *testing.T) {
	r := NewRunner(&MemoryBank{}, &scriptedSandbox{}, nil, 0, nil, zerolog.Nop())
	_, err := r.Execute(context.Background(), Submission{QuestionID: "nope"})
	require.ErrorIs(t, err, ErrUnknownQuestion)
}

func TestCombinedScoreBounds(t *testing.T) {
	require.Equal(t, 100, CombinedScore(4, 4, 100))
	require.Equal(t, 0, CombinedScore(0, 4, 0))
	require.Equal(t, 40, CombinedScore(0, 0, 100))
	// round((3/4)*60 + 55*0.4) = round(45 + 22) = 67
	require.Equal(t, 67, CombinedScore(3, 4, 55))
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "a b c", normalize("  a\n\tb   c \n"))
}
