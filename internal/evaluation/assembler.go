package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/coderunner"
	"github.com/interviewrt/core/internal/dialogue"
	"github.com/interviewrt/core/internal/llmclient"
	"github.com/interviewrt/core/internal/objectstore"
	"github.com/interviewrt/core/internal/observability"
	"github.com/interviewrt/core/internal/proctor"
)

// Inputs is everything the assembler pulls together at the session's
// terminal transition.
type Inputs struct {
	InterviewID    string
	SessionID      string
	JobDescription string
	Turns          []dialogue.TurnRecord
	AnswerScores   []float64 // per-answer coverage, 0..1
	CodingResults  []coderunner.Result
	Warnings       []proctor.WarningEvent
	RecordingRef   string
}

// Store persists the assembled Evaluation idempotently.
type Store interface {
	Upsert(ctx context.Context, ev Evaluation) error
	Get(ctx context.Context, interviewID string) (Evaluation, error)
}

// Assembler computes the final scores, renders the report, and
// persists the Evaluation.
type Assembler struct {
	store       Store
	reports     objectstore.Store
	summarizer  llmclient.SummaryLLM
	llmDeadline time.Duration
	clock       clockid.Clock
	metrics     *observability.Metrics
	log         zerolog.Logger
}

func NewAssembler(store Store, reports objectstore.Store, summarizer llmclient.SummaryLLM, llmDeadline time.Duration, clock clockid.Clock, metrics *observability.Metrics, log zerolog.Logger) *Assembler {
	if llmDeadline <= 0 {
		llmDeadline = 20 * time.Second
	}
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &Assembler{store: store, reports: reports, summarizer: summarizer, llmDeadline: llmDeadline, clock: clock, metrics: metrics, log: log}
}

// Assemble builds and persists the Evaluation for one interview.
// Re-assembling the same interview replaces the previous row in
// place.
func (a *Assembler) Assemble(ctx context.Context, in Inputs) (Evaluation, error) {
	started := a.clock.Now()

	dialogueScore := average(in.AnswerScores) * 10

	codingScore := -1.0
	if len(in.CodingResults) > 0 {
		var combined []float64
		for _, r := range in.CodingResults {
			combined = append(combined, float64(r.Combined))
		}
		codingScore = average(combined) / 10
	}

	base := dialogueScore
	if codingScore >= 0 {
		base = 0.5*dialogueScore + 0.5*codingScore
	}
	penalty := proctoringPenalty(len(in.Warnings))

	ev := Evaluation{
		InterviewID:  in.InterviewID,
		OverallScore: clampScore(base - penalty),
		Dimensions: Dimensions{
			Technical:      clampScore(technicalScore(dialogueScore, codingScore)),
			Communication:  clampScore(dialogueScore),
			ProblemSolving: clampScore(base),
		},
		ProctoringSummary: summarizeWarnings(in.Warnings),
		CreatedAt:         a.clock.Now(),
	}

	summary := a.summarize(ctx, in, dialogueScore, codingScore)
	ev.Strengths = summary.Strengths
	ev.Weaknesses = summary.Weaknesses
	ev.Recommend = summary.Recommend

	reportRef, err := a.renderAndStoreReport(ctx, in, ev, summary.Summary)
	if err != nil {
		a.log.Warn().Err(err).Str("interview_id", in.InterviewID).Msg("report render failed, persisting evaluation without report")
	} else {
		ev.ReportRef = reportRef
	}

	if err := a.store.Upsert(ctx, ev); err != nil {
		a.observe("error", started)
		return Evaluation{}, fmt.Errorf("evaluation: persist: %w", err)
	}
	a.observe("ok", started)
	return ev, nil
}

// technicalScore weights coding over dialogue when a coding round ran.
func technicalScore(dialogueScore, codingScore float64) float64 {
	if codingScore < 0 {
		return dialogueScore
	}
	return 0.4*dialogueScore + 0.6*codingScore
}

func (a *Assembler) summarize(ctx context.Context, in Inputs, dialogueScore, codingScore float64) llmclient.InterviewSummary {
	fallback := llmclient.InterviewSummary{
		Summary:   "Automated summary unavailable.",
		Recommend: dialogueScore >= 6,
	}
	if a.summarizer == nil {
		return fallback
	}

	var transcript []llmclient.PriorTurn
	for _, t := range in.Turns {
		transcript = append(transcript, llmclient.PriorTurn{Role: t.Role, Text: t.Text})
	}

	callCtx, cancel := context.WithTimeout(ctx, a.llmDeadline)
	defer cancel()
	summary, err := a.summarizer.SummarizeInterview(callCtx, llmclient.SummaryRequest{
		JobDescription: in.JobDescription,
		Transcript:     transcript,
		DialogueScore:  dialogueScore,
		CodingScore:    codingScore,
		WarningCount:   len(in.Warnings),
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("interview summary unavailable")
		return fallback
	}
	return summary
}

func summarizeWarnings(warnings []proctor.WarningEvent) string {
	if len(warnings) == 0 {
		return "No proctoring warnings."
	}
	counts := make(map[proctor.WarningKind]int)
	for _, w := range warnings {
		counts[w.Kind]++
	}
	parts := make([]string, 0, len(counts))
	for _, kind := range []proctor.WarningKind{
		proctor.KindNoPerson, proctor.KindMultiplePeople, proctor.KindPhoneDetected,
		proctor.KindLowAttention, proctor.KindTabSwitch, proctor.KindNoiseBurst,
		proctor.KindMultipleSpeakers,
	} {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s×%d", kind, n))
		}
	}
	return fmt.Sprintf("%d warnings (%s)", len(warnings), strings.Join(parts, ", "))
}

func (a *Assembler) observe(result string, started time.Time) {
	if a.metrics != nil {
		a.metrics.ObserveEvaluationAssembly(result, a.clock.Now().Sub(started))
	}
}
