// Package token issues and verifies the time-bounded access tokens that
// gate a candidate's entry into an interview session.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/interviewrt/core/internal/clockid"
)

// Redemption errors, returned as typed sentinel values instead of
// panics or stringly-typed errors.
var (
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrMalformed        = errors.New("token: malformed")
	ErrExpired          = errors.New("token: expired")
	ErrAlreadyTerminal  = errors.New("token: interview already terminal")
	ErrCanceled         = errors.New("token: interview canceled")
	ErrNoScheduledStart = errors.New("token: interview has no scheduled start")
)

// ErrTooEarly reports how long the candidate still has to wait.
type ErrTooEarly struct {
	SecondsRemaining int64
}

func (e ErrTooEarly) Error() string {
	return fmt.Sprintf("token: too early, %d seconds remaining", e.SecondsRemaining)
}

// Payload is the compact, signed map carried by the token wire format
//: base64url(payload) + "." + base64url(hmac(payload)).
type Payload struct {
	InterviewID string `json:"i"`
	ValidFrom   int64  `json:"f"`
	ValidUntil  int64  `json:"u"`
	Nonce       string `json:"n"`
	KeyID       string `json:"k"`
}

// AccessToken is the record persisted alongside an Interview.
type AccessToken struct {
	Value       string
	InterviewID string
	IssuedAt    time.Time
	ValidFrom   time.Time
	ValidUntil  time.Time
	RedeemedAt  time.Time
	Canceled    bool
}

// Interview is the minimal view of an interview the token service needs.
type Interview struct {
	ID                 string
	ScheduledStartUTC  time.Time
	ScheduledEndUTC    time.Time
	Status             string
	SessionID          string
}

// InterviewStore is the persistence seam the token service depends on
// to look up and update Interview rows idempotently on redemption.
type InterviewStore interface {
	GetInterview(ctx context.Context, id string) (Interview, error)
	AttachSession(ctx context.Context, interviewID, sessionID string) error
}

// Handle is returned on a successful redemption; it either names a
// freshly created session or resumes one already bound to the token.
type Handle struct {
	SessionID   string
	InterviewID string
	Resumed     bool
}

// Service issues and verifies access tokens.
type Service struct {
	clock     clockid.Clock
	keys      *clockid.KeyRing
	store     InterviewStore
	leadTime  time.Duration
	graceTime time.Duration
}

func NewService(clock clockid.Clock, keys *clockid.KeyRing, store InterviewStore, lead, grace time.Duration) *Service {
	return &Service{clock: clock, keys: keys, store: store, leadTime: lead, graceTime: grace}
}

// Issue mints a token for an interview whose window is
// [scheduled_start - lead, scheduled_end + grace].
func (s *Service) Issue(interview Interview) (AccessToken, error) {
	if interview.ScheduledStartUTC.IsZero() {
		return AccessToken{}, ErrNoScheduledStart
	}
	validFrom := interview.ScheduledStartUTC.Add(-s.leadTime)
	validUntil := interview.ScheduledEndUTC.Add(s.graceTime)

	payload := Payload{
		InterviewID: interview.ID,
		ValidFrom:   validFrom.Unix(),
		ValidUntil:  validUntil.Unix(),
		Nonce:       clockid.NewNonce(),
		KeyID:       s.keys.ActiveKeyID(),
	}
	raw, err := encode(payload, s.keys)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{
		Value:       raw,
		InterviewID: interview.ID,
		IssuedAt:    s.clock.Now(),
		ValidFrom:   validFrom,
		ValidUntil:  validUntil,
	}, nil
}

// Redeem verifies a token and attaches/resumes a session for its
// interview, enforcing the access window and terminal-state gates.
func (s *Service) Redeem(ctx context.Context, raw string, now time.Time) (Handle, error) {
	payload, err := decode(raw, s.keys)
	if err != nil {
		return Handle{}, err
	}

	if now.Unix() < payload.ValidFrom {
		return Handle{}, ErrTooEarly{SecondsRemaining: payload.ValidFrom - now.Unix()}
	}
	if now.Unix() > payload.ValidUntil {
		return Handle{}, ErrExpired
	}

	interview, err := s.store.GetInterview(ctx, payload.InterviewID)
	if err != nil {
		return Handle{}, err
	}
	switch interview.Status {
	case "Completed", "Abandoned", "Expired":
		return Handle{}, ErrAlreadyTerminal
	case "Canceled":
		return Handle{}, ErrCanceled
	}

	if interview.SessionID != "" {
		return Handle{SessionID: interview.SessionID, InterviewID: interview.ID, Resumed: true}, nil
	}

	sessionID := clockid.NewSessionID()
	if err := s.store.AttachSession(ctx, interview.ID, sessionID); err != nil {
		return Handle{}, err
	}
	return Handle{SessionID: sessionID, InterviewID: interview.ID, Resumed: false}, nil
}

func encode(p Payload, keys *clockid.KeyRing) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("token: marshal payload: %w", err)
	}
	tag, err := keys.SignWith(p.KeyID, body)
	if err != nil {
		return "", err
	}
	return b64(body) + "." + b64(tag), nil
}

func decode(raw string, keys *clockid.KeyRing) (Payload, error) {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 {
		return Payload{}, ErrMalformed
	}
	body, err := unb64(parts[0])
	if err != nil {
		return Payload{}, ErrMalformed
	}
	tag, err := unb64(parts[1])
	if err != nil {
		return Payload{}, ErrInvalidSignature
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, ErrMalformed
	}
	if p.InterviewID == "" || p.KeyID == "" {
		return Payload{}, ErrMalformed
	}
	if err := keys.Verify(p.KeyID, body, tag); err != nil {
		if errors.Is(err, clockid.ErrUnknownKey) {
			return Payload{}, ErrInvalidSignature
		}
		return Payload{}, ErrInvalidSignature
	}
	return p, nil
}

func b64(b []byte) string    { return base64.RawURLEncoding.EncodeToString(b) }
func unb64(s string) ([]byte, error) { return base64.RawURLEncoding.Strict().DecodeString(s) }
