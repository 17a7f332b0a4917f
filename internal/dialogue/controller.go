package dialogue

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/interviewrt/core/internal/clockid"
	"github.com/interviewrt/core/internal/llmclient"
	"github.com/interviewrt/core/internal/observability"
	"github.com/interviewrt/core/internal/registry"
)

// skipPattern short-circuits LLM classification for explicit skips.
var skipPattern = regexp.MustCompile(`(?i)^(skip|next question)\b`)

// StartParams seeds a session's first turn.
type StartParams struct {
	JobContext   string
	CandidateCtx string
	Company      string
	Role         string
	Difficulty   string
	AIType       string
	MaxQuestions int
}

// SessionInit mirrors registry.Session's construction from StartParams.
func SessionInit(p StartParams, language string) func() *registry.Session {
	return func() *registry.Session {
		return &registry.Session{
			Language:             language,
			JobContext:           p.JobContext,
			CandidateCtx:         p.CandidateCtx,
			DialogueState:        registry.StateBooting,
			MaxQuestions:         p.MaxQuestions,
			CurrentQuestionIndex: 0,
		}
	}
}

// Controller drives the per-session turn state machine. Session
// mutations run through registry.Registry.Mutate, the single
// serialization point for session state; everything this package
// adds on top (turn log, transcript level tracking, empty-answer
// streaks, subscriber fan-out) is guarded by the controller's own
// mutex.
type Controller struct {
	registry *registry.Registry
	llm      llmclient.DialogueLLM
	tts      Synthesizer
	metrics  *observability.Metrics
	clock    clockid.Clock

	voice       string
	llmDeadline time.Duration
	ttsDeadline time.Duration

	mu           sync.Mutex
	params       map[string]StartParams
	turns        map[string][]TurnRecord
	nextSeq      map[string]int
	level        map[string]llmclient.QuestionLevel
	emptyStreak  map[string]int
	fallbackIdx  map[string]int
	questionAt   map[string]time.Time
	answerScores map[string][]float64
	subs         map[string]map[int]chan Event
	nextSubID    int
}

// Synthesizer is the seam to C8 (TTS Cache); *ttscache.Cache's
// Synthesize method satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, language string) (Audio, error)
}

// Audio is the subset of ttscache.AudioRef the controller consumes.
type Audio struct {
	URL    string
	Format string
}

func New(reg *registry.Registry, llm llmclient.DialogueLLM, tts Synthesizer, metrics *observability.Metrics, clock clockid.Clock, voice string) *Controller {
	if clock == nil {
		clock = clockid.SystemClock{}
	}
	return &Controller{
		registry:     reg,
		llm:          llm,
		tts:          tts,
		metrics:      metrics,
		clock:        clock,
		voice:        voice,
		llmDeadline:  20 * time.Second,
		ttsDeadline:  15 * time.Second,
		params:       make(map[string]StartParams),
		turns:        make(map[string][]TurnRecord),
		nextSeq:      make(map[string]int),
		level:        make(map[string]llmclient.QuestionLevel),
		emptyStreak:  make(map[string]int),
		fallbackIdx:  make(map[string]int),
		questionAt:   make(map[string]time.Time),
		answerScores: make(map[string][]float64),
		subs:         make(map[string]map[int]chan Event),
	}
}

// Subscribe registers a channel of Events for sessionID. Callers must
// invoke the returned cancel func when done.
func (c *Controller) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	if c.subs[sessionID] == nil {
		c.subs[sessionID] = make(map[int]chan Event)
	}
	c.subs[sessionID][id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if m, ok := c.subs[sessionID]; ok {
			if ch, ok := m[id]; ok {
				delete(m, id)
				close(ch)
			}
			if len(m) == 0 {
				delete(c.subs, sessionID)
			}
		}
	}
}

func (c *Controller) publish(ev Event) {
	c.mu.Lock()
	subs := make([]chan Event, 0, len(c.subs[ev.SessionID]))
	for _, ch := range c.subs[ev.SessionID] {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Turns returns the turn log accumulated so far for sessionID.
func (c *Controller) Turns(sessionID string) []TurnRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TurnRecord, len(c.turns[sessionID]))
	copy(out, c.turns[sessionID])
	return out
}

func (c *Controller) appendTurn(sessionID string, t TurnRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Sequence = c.nextSeq[sessionID]
	c.nextSeq[sessionID]++
	c.turns[sessionID] = append(c.turns[sessionID], t)
}

// Start begins a session: Booting → Preamble → Asking, emitting the
// first question.
func (c *Controller) Start(ctx context.Context, sessionID string, p StartParams) error {
	c.mu.Lock()
	c.params[sessionID] = p
	c.mu.Unlock()

	if _, err := c.registry.Mutate(sessionID, func(s *registry.Session) {
		if p.MaxQuestions > 0 {
			s.MaxQuestions = p.MaxQuestions
		}
		s.DialogueState = registry.StatePreamble
	}); err != nil {
		return err
	}
	return c.askNext(ctx, sessionID, false)
}

// askNext produces and emits the next question. rephraseLastOnly
// re-asks the same index with a rephrased text (RepeatRequest
// handling).
func (c *Controller) askNext(ctx context.Context, sessionID string, rephraseLastOnly bool) error {
	sess, err := c.registry.Get(sessionID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	p := c.params[sessionID]
	c.mu.Unlock()

	var priorTurns []llmclient.PriorTurn
	for _, t := range c.lastTurns(sessionID, 6) {
		priorTurns = append(priorTurns, llmclient.PriorTurn{Role: t.Role, Text: t.Text})
	}

	req := llmclient.QuestionRequest{
		Role:             p.Role,
		Company:          p.Company,
		JobDescription:   sess.JobContext,
		CandidateResume:  sess.CandidateCtx,
		Language:         sess.Language,
		PriorTurns:       priorTurns,
		Difficulty:       p.Difficulty,
		AIType:           p.AIType,
		RephraseLastOnly: rephraseLastOnly,
	}

	question, lvl, usedFallback := c.generateQuestion(ctx, sessionID, req, p.AIType)

	audioURL := c.synthesize(ctx, sessionID, question, sess.Language)

	c.mu.Lock()
	c.level[sessionID] = lvl
	c.emptyStreak[sessionID] = 0
	c.questionAt[sessionID] = c.clock.Now()
	c.mu.Unlock()

	c.appendTurn(sessionID, TurnRecord{Role: RoleInterviewer, Text: question, CreatedAt: c.clock.Now(), AudioURL: audioURL})

	if _, err := c.registry.Mutate(sessionID, func(s *registry.Session) {
		s.DialogueState = registry.StateAwaitingAnswer
		s.AwaitingAnswer = true
		s.LastQuestionText = question
	}); err != nil {
		return err
	}

	evType := EventQuestion
	if usedFallback {
		evType = EventFallback
	}
	c.publish(Event{Type: evType, SessionID: sessionID, Text: question, AudioURL: audioURL, Level: lvl, Seq: sess.CurrentQuestionIndex, At: c.clock.Now()})
	if c.metrics != nil {
		c.metrics.ObserveDialogueTurn(string(registry.StateAsking))
	}
	return nil
}

func (c *Controller) generateQuestion(ctx context.Context, sessionID string, req llmclient.QuestionRequest, aiType string) (string, llmclient.QuestionLevel, bool) {
	callCtx, cancel := context.WithTimeout(ctx, c.llmDeadline)
	defer cancel()

	out, err := c.llm.GenerateQuestion(callCtx, req)
	if err == nil && strings.TrimSpace(out.QuestionText) != "" {
		lvl := out.Level
		if lvl == "" {
			lvl = llmclient.LevelMain
		}
		return out.QuestionText, lvl, false
	}

	if c.metrics != nil {
		c.metrics.ObserveDialogueFallback("timeout_or_malformed")
	}
	c.mu.Lock()
	idx := c.fallbackIdx[sessionID]
	c.fallbackIdx[sessionID] = idx + 1
	c.mu.Unlock()
	return cannedQuestionFor(aiType, idx), llmclient.LevelMain, true
}

func (c *Controller) synthesize(ctx context.Context, sessionID, text, language string) string {
	if c.tts == nil {
		return ""
	}
	callCtx, cancel := context.WithTimeout(ctx, c.ttsDeadline)
	defer cancel()
	audio, err := c.tts.Synthesize(callCtx, text, c.voice, language)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ObserveDialogueFallback("tts_unavailable")
		}
		return ""
	}
	return audio.URL
}

func (c *Controller) lastTurns(sessionID string, n int) []TurnRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := c.turns[sessionID]
	if len(all) <= n {
		out := make([]TurnRecord, len(all))
		copy(out, all)
		return out
	}
	out := make([]TurnRecord, n)
	copy(out, all[len(all)-n:])
	return out
}

// SubmitAnswer handles the candidate's finalized message for the
// current AwaitingAnswer turn. text is
// expected to already be the Transcript Accumulator's snapshot;
// responseTime is the elapsed time since the question was asked.
func (c *Controller) SubmitAnswer(ctx context.Context, sessionID, text string, responseTime time.Duration) error {
	sess, err := c.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if sess.DialogueState != registry.StateAwaitingAnswer {
		return fmt.Errorf("dialogue: session %s is not awaiting an answer (state=%s)", sessionID, sess.DialogueState)
	}

	if _, err := c.registry.Mutate(sessionID, func(s *registry.Session) {
		s.DialogueState = registry.StateEvaluating
	}); err != nil {
		return err
	}

	verdict := c.classify(ctx, sess.LastQuestionText, text)

	switch verdict {
	case llmclient.VerdictAnswer:
		c.appendTurn(sessionID, TurnRecord{Role: RoleCandidate, Text: text, CreatedAt: c.clock.Now(), ResponseTimeMS: responseTime.Milliseconds()})
		c.mu.Lock()
		c.emptyStreak[sessionID] = 0
		lvl := c.level[sessionID]
		c.mu.Unlock()

		score, scoreErr := c.scoreCoverage(ctx, sess.LastQuestionText, text)
		if scoreErr == nil {
			c.mu.Lock()
			c.answerScores[sessionID] = append(c.answerScores[sessionID], score)
			c.mu.Unlock()
		}
		if lvl == llmclient.LevelMain && scoreErr == nil && score < followUpThreshold {
			return c.askNext(ctx, sessionID, false)
		}
		return c.advance(ctx, sessionID)

	case llmclient.VerdictRepeatRequest:
		return c.askNext(ctx, sessionID, true)

	case llmclient.VerdictSkip:
		c.appendTurn(sessionID, TurnRecord{Role: RoleCandidate, Text: text, CreatedAt: c.clock.Now(), ResponseTimeMS: responseTime.Milliseconds()})
		return c.advance(ctx, sessionID)

	case llmclient.VerdictEmpty:
		c.mu.Lock()
		c.emptyStreak[sessionID]++
		streak := c.emptyStreak[sessionID]
		c.mu.Unlock()

		if streak >= maxConsecutiveEmpties {
			return c.advance(ctx, sessionID)
		}
		askAgain := c.decideEmptyRetry(ctx, sess.LastQuestionText, streak)
		if askAgain {
			return c.backToAwaitingAnswer(sessionID)
		}
		return c.advance(ctx, sessionID)

	default:
		return fmt.Errorf("dialogue: unknown verdict %q", verdict)
	}
}

func (c *Controller) backToAwaitingAnswer(sessionID string) error {
	_, err := c.registry.Mutate(sessionID, func(s *registry.Session) {
		s.DialogueState = registry.StateAwaitingAnswer
	})
	if err != nil {
		return err
	}
	retry := "I didn't catch that, please try again."
	c.appendTurn(sessionID, TurnRecord{Role: RoleSystem, Text: retry, CreatedAt: c.clock.Now()})
	c.publish(Event{Type: EventQuestion, SessionID: sessionID, Text: retry, At: c.clock.Now()})
	// The question timer restarts so the no-voice grace applies to the
	// retry, not the original ask.
	c.mu.Lock()
	c.questionAt[sessionID] = c.clock.Now()
	c.mu.Unlock()
	return nil
}

func (c *Controller) classify(ctx context.Context, lastQuestion, text string) llmclient.Verdict {
	if strings.TrimSpace(text) == "" {
		return llmclient.VerdictEmpty
	}
	if skipPattern.MatchString(strings.TrimSpace(text)) {
		return llmclient.VerdictSkip
	}
	callCtx, cancel := context.WithTimeout(ctx, c.llmDeadline)
	defer cancel()
	cls, err := c.llm.ClassifyAnswer(callCtx, lastQuestion, text)
	if err != nil || cls.Verdict == "" {
		return llmclient.VerdictAnswer
	}
	return cls.Verdict
}

// followUpThreshold is the coverage score below which a MAIN-level
// answer earns a follow-up question.
const followUpThreshold = 0.6

func (c *Controller) scoreCoverage(ctx context.Context, question, answer string) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.llmDeadline)
	defer cancel()
	judgment, err := c.llm.JudgeCoverage(callCtx, question, answer)
	if err != nil {
		return 0, err
	}
	return judgment.CoverageScore, nil
}

// AnswerScores returns the per-answer coverage scores recorded so far,
// the raw material for the evaluation assembler's dialogue average.
func (c *Controller) AnswerScores(sessionID string) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.answerScores[sessionID]))
	copy(out, c.answerScores[sessionID])
	return out
}

func (c *Controller) decideEmptyRetry(ctx context.Context, question string, streak int) bool {
	callCtx, cancel := context.WithTimeout(ctx, c.llmDeadline)
	defer cancel()
	decision, err := c.llm.JudgeEmptyRetry(callCtx, question, streak)
	if err != nil {
		return false
	}
	return decision.AskAgain
}

// advance moves to the next question, or to Closing after the last.
func (c *Controller) advance(ctx context.Context, sessionID string) error {
	sess, err := c.registry.Get(sessionID)
	if err != nil {
		return err
	}
	c.publish(Event{Type: EventTurnEnd, SessionID: sessionID, At: c.clock.Now()})

	if sess.CurrentQuestionIndex+1 >= sess.MaxQuestions {
		if _, err := c.registry.Mutate(sessionID, func(s *registry.Session) {
			s.DialogueState = registry.StateClosing
			s.AwaitingAnswer = false
			s.CodingPhaseActive = true
		}); err != nil {
			return err
		}
		c.publish(Event{Type: EventClosing, SessionID: sessionID, At: c.clock.Now()})
		if c.metrics != nil {
			c.metrics.ObserveDialogueTurn(string(registry.StateClosing))
		}
		return nil
	}

	if _, err := c.registry.Mutate(sessionID, func(s *registry.Session) {
		s.CurrentQuestionIndex++
		s.DialogueState = registry.StateAsking
	}); err != nil {
		return err
	}
	return c.askNext(ctx, sessionID, false)
}

// QuestionAskedAt reports when the current question was emitted, for
// candidate response-time measurement.
func (c *Controller) QuestionAskedAt(sessionID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.questionAt[sessionID]
}

// NotifyDegraded surfaces a non-fatal degradation (e.g. the STT relay
// giving up) to the session's subscribers; the interview continues in
// text-only mode.
func (c *Controller) NotifyDegraded(sessionID, reason string) {
	c.appendTurn(sessionID, TurnRecord{Role: RoleSystem, Text: "transcription unavailable: " + reason, CreatedAt: c.clock.Now()})
	c.publish(Event{Type: EventError, SessionID: sessionID, Text: reason, At: c.clock.Now()})
	if c.metrics != nil {
		c.metrics.ObserveDialogueFallback("stt_degraded")
	}
}

// Close transitions Closing → Terminal once the coding round (if any)
// has finished.
func (c *Controller) Close(sessionID string) error {
	_, err := c.registry.End(sessionID)
	return err
}
