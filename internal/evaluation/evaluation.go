// Package evaluation assembles the final interview report:
// per-turn dialogue quality, coding round results, and the
// proctoring penalty combined into one Evaluation, rendered to an
// HTML report and persisted idempotently.
package evaluation

import (
	"errors"
	"time"
)

// Dimensions are the per-dimension scores, each on the same 0..10
// scale as the overall score.
type Dimensions struct {
	Technical      float64 `json:"technical"`
	Communication  float64 `json:"communication"`
	ProblemSolving float64 `json:"problem_solving"`
}

// Evaluation is the persisted outcome of one interview.
type Evaluation struct {
	InterviewID       string
	OverallScore      float64
	Dimensions        Dimensions
	Strengths         []string
	Weaknesses        []string
	Recommend         bool
	ProctoringSummary string
	ReportRef         string
	CreatedAt         time.Time
}

var ErrNoSession = errors.New("evaluation: interview has no session")

const (
	penaltyPerWarning = 0.3
	penaltyCap        = 3.0
)

// proctoringPenalty is min(3.0, 0.3 × warning count).
func proctoringPenalty(warningCount int) float64 {
	p := penaltyPerWarning * float64(warningCount)
	if p > penaltyCap {
		return penaltyCap
	}
	return p
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
