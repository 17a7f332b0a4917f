package llmclient

import (
	"context"
	"fmt"
	"strings"
)

// QuestionLevel distinguishes main questions from follow-ups.
type QuestionLevel string

const (
	LevelMain     QuestionLevel = "MAIN"
	LevelFollowUp QuestionLevel = "FOLLOW_UP"
)

// PriorTurn is one prior exchange, supplied to the model as context.
type PriorTurn struct {
	Role string
	Text string
}

// QuestionRequest carries the prompt inputs for question generation.
type QuestionRequest struct {
	Role             string
	Company          string
	JobDescription   string
	CandidateResume  string
	Language         string
	PriorTurns       []PriorTurn // last N=6
	Difficulty       string
	AIType           string
	RephraseLastOnly bool // RepeatRequest: rephrase the last question instead of advancing
}

// GeneratedQuestion is the model's structured reply.
type GeneratedQuestion struct {
	QuestionText string        `json:"question_text"`
	Level        QuestionLevel `json:"level"`
	TopicTag     string        `json:"topic_tag"`
}

// Verdict is the Evaluating-state classification of a candidate
// message.
type Verdict string

const (
	VerdictAnswer        Verdict = "Answer"
	VerdictRepeatRequest Verdict = "RepeatRequest"
	VerdictSkip          Verdict = "Skip"
	VerdictEmpty         Verdict = "Empty"
)

type Classification struct {
	Verdict Verdict `json:"verdict"`
}

type CoverageJudgment struct {
	CoverageScore float64 `json:"coverage_score"`
}

type EmptyRetryDecision struct {
	AskAgain bool `json:"ask_again"`
}

// DialogueLLM is what the Dialogue Controller depends on.
type DialogueLLM interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (GeneratedQuestion, error)
	ClassifyAnswer(ctx context.Context, lastQuestion, candidateMessage string) (Classification, error)
	JudgeCoverage(ctx context.Context, question, answer string) (CoverageJudgment, error)
	JudgeEmptyRetry(ctx context.Context, question string, emptyCount int) (EmptyRetryDecision, error)
}

func (c *Client) GenerateQuestion(ctx context.Context, req QuestionRequest) (GeneratedQuestion, error) {
	system := "You are a technical interviewer. Reply with exactly one JSON object: " +
		`{"question_text": string, "level": "MAIN"|"FOLLOW_UP", "topic_tag": string}. No prose.`

	var turns strings.Builder
	for _, t := range lastN(req.PriorTurns, 6) {
		fmt.Fprintf(&turns, "%s: %s\n", t.Role, t.Text)
	}

	action := "Ask the next main interview question."
	if req.RephraseLastOnly {
		action = "The candidate asked you to repeat the last question. Rephrase it, same meaning, same level."
	}

	user := fmt.Sprintf(
		"Role: %s\nCompany: %s\nJob description: %s\nCandidate resume: %s\nLanguage: %s\nDifficulty: %s\nInterview type: %s\nPrior turns:\n%s\n%s",
		req.Role, req.Company, req.JobDescription, req.CandidateResume, req.Language, req.Difficulty, req.AIType, turns.String(), action)

	var out GeneratedQuestion
	if err := c.Complete(ctx, system, user, &out); err != nil {
		return GeneratedQuestion{}, err
	}
	if strings.TrimSpace(out.QuestionText) == "" {
		return GeneratedQuestion{}, fmt.Errorf("llmclient: malformed question")
	}
	return out, nil
}

func (c *Client) ClassifyAnswer(ctx context.Context, lastQuestion, candidateMessage string) (Classification, error) {
	system := `Classify the candidate's message against the interviewer's last question. Reply with exactly one JSON object: {"verdict": "Answer"|"RepeatRequest"|"Skip"|"Empty"}. No prose.`
	user := fmt.Sprintf("Question: %s\nCandidate message: %s", lastQuestion, candidateMessage)

	var out Classification
	if err := c.Complete(ctx, system, user, &out); err != nil {
		return Classification{}, err
	}
	return out, nil
}

func (c *Client) JudgeCoverage(ctx context.Context, question, answer string) (CoverageJudgment, error) {
	system := `Score how completely the candidate's answer covers the question on a 0..1 scale. Reply with exactly one JSON object: {"coverage_score": number}. No prose.`
	user := fmt.Sprintf("Question: %s\nAnswer: %s", question, answer)

	var out CoverageJudgment
	if err := c.Complete(ctx, system, user, &out); err != nil {
		return CoverageJudgment{}, err
	}
	return out, nil
}

func (c *Client) JudgeEmptyRetry(ctx context.Context, question string, emptyCount int) (EmptyRetryDecision, error) {
	system := `Decide whether to ask the question again or move on after an empty candidate response. Reply with exactly one JSON object: {"ask_again": bool}. No prose.`
	user := fmt.Sprintf("Question: %s\nConsecutive empty responses so far: %d", question, emptyCount)

	var out EmptyRetryDecision
	if err := c.Complete(ctx, system, user, &out); err != nil {
		return EmptyRetryDecision{}, err
	}
	return out, nil
}

func lastN(turns []PriorTurn, n int) []PriorTurn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
