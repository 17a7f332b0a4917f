package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/interviewrt/core/internal/coderunner"
	"github.com/interviewrt/core/internal/evaluation"
	"github.com/interviewrt/core/internal/slotstore"
	"github.com/interviewrt/core/internal/token"
)

type createSlotRequest struct {
	Company    string `json:"company"`
	Job        string `json:"job"`
	Date       string `json:"date"`  // YYYY-MM-DD
	Start      string `json:"start"` // HH:MM, IST wall clock
	End        string `json:"end"`
	Capacity   int    `json:"capacity"`
	AIType     string `json:"ai_type"`
	Difficulty string `json:"difficulty"`
	Language   string `json:"language"`
}

func (s *Server) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	slot, err := slotFromRequest(req, s.Config.SlotDefaultDurationMin)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, err := s.Slots.CreateSlot(r.Context(), slot)
	if errors.Is(err, slotstore.ErrOverlapsExisting) {
		respondError(w, http.StatusConflict, "overlaps_existing", "an overlapping slot already exists")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"slot_id": id})
}

func slotFromRequest(req createSlotRequest, defaultDurationMin int) (slotstore.Slot, error) {
	if req.Company == "" || req.AIType == "" || req.Date == "" || req.Start == "" {
		return slotstore.Slot{}, fmt.Errorf("company, ai_type, date, and start are required")
	}
	if req.Capacity <= 0 {
		return slotstore.Slot{}, fmt.Errorf("capacity must be positive")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return slotstore.Slot{}, fmt.Errorf("invalid date: %w", err)
	}
	start, err := time.Parse("15:04", req.Start)
	if err != nil {
		return slotstore.Slot{}, fmt.Errorf("invalid start: %w", err)
	}
	var end time.Time
	if req.End == "" {
		end = start.Add(time.Duration(defaultDurationMin) * time.Minute)
	} else {
		end, err = time.Parse("15:04", req.End)
		if err != nil {
			return slotstore.Slot{}, fmt.Errorf("invalid end: %w", err)
		}
	}
	if !start.Before(end) {
		return slotstore.Slot{}, fmt.Errorf("start must be before end")
	}
	return slotstore.Slot{
		Company:    req.Company,
		Job:        req.Job,
		Date:       date,
		Start:      start,
		End:        end,
		Capacity:   req.Capacity,
		AIType:     req.AIType,
		Difficulty: req.Difficulty,
		Language:   req.Language,
	}, nil
}

type createRecurringRequest struct {
	createSlotRequest
	Weekdays     []string `json:"weekdays"` // "Mon", "Tue", ...
	FirstDate    string   `json:"first_date"`
	HorizonWeeks int      `json:"horizon_weeks"`
}

var weekdayNames = map[string]time.Weekday{
	"Sun": time.Sunday, "Mon": time.Monday, "Tue": time.Tuesday, "Wed": time.Wednesday,
	"Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday,
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req createRecurringRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req.Date = req.FirstDate
	base, err := slotFromRequest(req.createSlotRequest, s.Config.SlotDefaultDurationMin)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.HorizonWeeks <= 0 || len(req.Weekdays) == 0 {
		respondError(w, http.StatusBadRequest, "bad_request", "weekdays and horizon_weeks are required")
		return
	}
	var weekdays []time.Weekday
	for _, name := range req.Weekdays {
		wd, ok := weekdayNames[name]
		if !ok {
			respondError(w, http.StatusBadRequest, "bad_request", "unknown weekday "+name)
			return
		}
		weekdays = append(weekdays, wd)
	}

	ids, err := s.Slots.CreateRecurring(r.Context(), slotstore.RecurringPattern{
		Company:    base.Company,
		Job:        base.Job,
		Start:      base.Start,
		End:        base.End,
		Capacity:   base.Capacity,
		AIType:     base.AIType,
		Difficulty: base.Difficulty,
		Language:   base.Language,
		Weekdays:   weekdays,
		FirstDate:  base.Date,
		Horizon:    req.HorizonWeeks,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"slot_ids": ids})
}

func (s *Server) handleSearchSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	company, aiType := q.Get("company"), q.Get("ai_type")
	if company == "" || aiType == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "company and ai_type are required")
		return
	}
	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid from date")
		return
	}
	to, err := time.Parse("2006-01-02", q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid to date")
		return
	}

	slots, err := s.Slots.SearchAvailable(r.Context(), company, aiType, from, to)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

type bookRequest struct {
	InterviewID string `json:"interview_id"`
	Notes       string `json:"notes"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil || req.InterviewID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "interview_id is required")
		return
	}

	bookingID, err := s.Slots.Book(r.Context(), chi.URLParam(r, "id"), req.InterviewID, req.Notes)
	switch {
	case errors.Is(err, slotstore.ErrSlotFull):
		s.Metrics.ObserveBookingAttempt("slot_full")
		respondError(w, http.StatusConflict, "SlotFull", "slot has no remaining capacity")
	case errors.Is(err, slotstore.ErrSlotCanceled):
		s.Metrics.ObserveBookingAttempt("slot_canceled")
		respondError(w, http.StatusConflict, "Canceled", "slot was canceled")
	case errors.Is(err, slotstore.ErrSlotNotFound):
		respondError(w, http.StatusNotFound, "not_found", "no such slot")
	case err != nil:
		s.internalError(w, r, err)
	default:
		s.Metrics.ObserveBookingAttempt("ok")
		respondJSON(w, http.StatusCreated, map[string]string{"booking_id": bookingID})
	}
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	err := s.Slots.Release(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, slotstore.ErrBookingNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "no such booking")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

type createInterviewRequest struct {
	CandidateID string `json:"candidate_id"`
	JobID       string `json:"job_id"`
}

func (s *Server) handleCreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := decodeJSON(r, &req); err != nil || req.CandidateID == "" || req.JobID == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "candidate_id and job_id are required")
		return
	}
	id, err := s.Slots.CreateInterview(r.Context(), req.CandidateID, req.JobID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"interview_id": id})
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	interview, err := s.Slots.GetInterview(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, slotstore.ErrInterviewNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "no such interview")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	tok, err := s.Tokens.Issue(interview)
	if errors.Is(err, token.ErrNoScheduledStart) {
		respondError(w, http.StatusConflict, "not_scheduled", "interview has no scheduled start; book a slot first")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"token":       tok.Value,
		"access_url":  "/portal?token=" + tok.Value,
		"valid_from":  tok.ValidFrom,
		"valid_until": tok.ValidUntil,
	})
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, err := s.Evals.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, evaluation.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "no evaluation for interview")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

type putCodingQuestionRequest struct {
	ID        string                `json:"id"`
	Statement string                `json:"statement"`
	TestCases []coderunner.TestCase `json:"test_cases"`
}

func (s *Server) handlePutCodingQuestion(w http.ResponseWriter, r *http.Request) {
	var req putCodingQuestionRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" || len(req.TestCases) == 0 {
		respondError(w, http.StatusBadRequest, "bad_request", "id and test_cases are required")
		return
	}
	err := s.CodeStore.PutQuestion(r.Context(), coderunner.Question{
		ID:        req.ID,
		Statement: req.Statement,
		TestCases: req.TestCases,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal", "internal error")
}
