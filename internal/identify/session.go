package identify

import (
	"errors"
	"sync"
	"time"

	"cardscan/internal/extract"
	"cardscan/internal/scanstats"
)

// State is a session's lifecycle position.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateCorrected State = "corrected"
	StateRetried   State = "retried"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further action is accepted.
func (s State) Terminal() bool {
	return s != StatePending
}

// ErrSessionClosed is returned when acting on a session that already left
// the pending state.
var ErrSessionClosed = errors.New("identification session closed")

// Resolution records how the operator closed a session.
type Resolution struct {
	Name   string         `json:"name,omitempty"`
	CardID string         `json:"card_id,omitempty"`
	Method scanstats.Kind `json:"method,omitempty"`
	At     time.Time      `json:"at"`
}

// Session is one capture awaiting operator action.
type Session struct {
	id        string
	createdAt time.Time
	source    string
	rawText   string
	image     []byte

	text           TextSignal
	hash           *HashSignal
	details        extract.Details
	recommendation Recommendation

	mu         sync.Mutex
	state      State
	resolution *Resolution
}

// View is a JSON-friendly snapshot of a session.
type View struct {
	ID             string          `json:"id"`
	State          State           `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
	Source         string          `json:"source,omitempty"`
	RawText        string          `json:"raw_text"`
	HasImage       bool            `json:"has_image"`
	Text           TextSignal      `json:"text"`
	Hash           *HashSignal     `json:"hash,omitempty"`
	Details        extract.Details `json:"details"`
	Recommendation Recommendation  `json:"recommendation"`
	Resolution     *Resolution     `json:"resolution,omitempty"`
}

func (s *Session) ID() string                     { return s.id }
func (s *Session) CreatedAt() time.Time           { return s.createdAt }
func (s *Session) RawText() string                { return s.rawText }
func (s *Session) Text() TextSignal               { return s.text }
func (s *Session) Hash() *HashSignal              { return s.hash }
func (s *Session) Details() extract.Details       { return s.details }
func (s *Session) Recommendation() Recommendation { return s.recommendation }

// Image returns the captured image bytes, if any were supplied.
func (s *Session) Image() []byte { return s.image }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:             s.id,
		State:          s.state,
		CreatedAt:      s.createdAt,
		Source:         s.source,
		RawText:        s.rawText,
		HasImage:       len(s.image) > 0,
		Text:           s.text,
		Hash:           s.hash,
		Details:        s.details,
		Recommendation: s.recommendation,
	}
	if s.resolution != nil {
		res := *s.resolution
		v.Resolution = &res
	}
	return v
}

// transition moves a pending session to next. fn runs under the session lock
// before the state changes, so two concurrent actions cannot both apply.
func (s *Session) transition(next State, res *Resolution, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return ErrSessionClosed
	}
	if fn != nil {
		fn()
	}
	s.state = next
	s.resolution = res
	return nil
}
