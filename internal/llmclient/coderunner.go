package llmclient

import (
	"context"
	"fmt"
)

// ReviewRequest carries a submitted solution plus its execution
// results for qualitative review.
type ReviewRequest struct {
	ProblemStatement string
	Language         string
	Source           string
	TestsPassed      int
	TestsTotal       int
	StderrExcerpt    string
}

// CodeReview is the model's structured verdict on a submission.
type CodeReview struct {
	QualityScore float64  `json:"quality_score"` // 0..1
	Strengths    []string `json:"strengths"`
	Concerns     []string `json:"concerns"`
	Summary      string   `json:"summary"`
}

// CodeReviewLLM is what the Coding Round Evaluator depends on.
type CodeReviewLLM interface {
	ReviewCode(ctx context.Context, req ReviewRequest) (CodeReview, error)
}

func (c *Client) ReviewCode(ctx context.Context, req ReviewRequest) (CodeReview, error) {
	system := "You are reviewing a candidate's coding round submission. Reply with exactly one JSON object: " +
		`{"quality_score": number, "strengths": [string], "concerns": [string], "summary": string}. No prose.`

	user := fmt.Sprintf(
		"Problem:\n%s\n\nLanguage: %s\n\nSubmission:\n%s\n\nTest results: %d/%d passed\nStderr excerpt:\n%s",
		req.ProblemStatement, req.Language, req.Source, req.TestsPassed, req.TestsTotal, req.StderrExcerpt)

	var out CodeReview
	if err := c.Complete(ctx, system, user, &out); err != nil {
		return CodeReview{}, err
	}
	return out, nil
}
