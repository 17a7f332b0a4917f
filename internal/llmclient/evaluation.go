package llmclient

import (
	"context"
	"fmt"
	"strings"
)

// SummaryRequest carries the assembled interview material for the
// final narrative summary.
type SummaryRequest struct {
	JobDescription string
	Transcript     []PriorTurn
	DialogueScore  float64 // 0..10
	CodingScore    float64 // 0..10, -1 when no coding round ran
	WarningCount   int
}

// InterviewSummary is the model's qualitative verdict; the numeric
// scores stay deterministic and are computed by the assembler, not
// the model.
type InterviewSummary struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Summary    string   `json:"summary"`
	Recommend  bool     `json:"recommend"`
}

// SummaryLLM is what the Evaluation Assembler depends on.
type SummaryLLM interface {
	SummarizeInterview(ctx context.Context, req SummaryRequest) (InterviewSummary, error)
}

func (c *Client) SummarizeInterview(ctx context.Context, req SummaryRequest) (InterviewSummary, error) {
	system := "You are summarizing a completed technical interview for a recruiter. Reply with exactly one JSON object: " +
		`{"strengths": [string], "weaknesses": [string], "summary": string, "recommend": bool}. No prose.`

	var transcript strings.Builder
	for _, t := range req.Transcript {
		fmt.Fprintf(&transcript, "%s: %s\n", t.Role, t.Text)
	}
	coding := "no coding round"
	if req.CodingScore >= 0 {
		coding = fmt.Sprintf("%.1f/10", req.CodingScore)
	}
	user := fmt.Sprintf(
		"Job description: %s\nDialogue score: %.1f/10\nCoding score: %s\nProctoring warnings: %d\nTranscript:\n%s",
		req.JobDescription, req.DialogueScore, coding, req.WarningCount, transcript.String())

	var out InterviewSummary
	if err := c.Complete(ctx, system, user, &out); err != nil {
		return InterviewSummary{}, err
	}
	return out, nil
}
