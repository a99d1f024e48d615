package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/circle-snip/pkg/types"
)

var (
	// ErrSessionActive is returned by Begin while another capture session is open
	ErrSessionActive = errors.New("a capture session is already active")
	// ErrSessionEnded is returned by Claim once a session was snipped or canceled
	ErrSessionEnded = errors.New("capture session has ended")
)

// Tracker enforces that at most one capture session is open at a time
type Tracker struct {
	mu     sync.Mutex
	active *Session
}

// NewTracker creates an idle tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Session carries the screenshot taken for one capture gesture together with
// the viewport measured at the same instant.
type Session struct {
	ID         string
	Screenshot types.Screenshot
	StartedAt  time.Time

	tracker *Tracker
	once    sync.Once
	ended   atomic.Bool
	claimed atomic.Bool
}

// Begin opens a session for shot, or fails with ErrSessionActive
func (t *Tracker) Begin(shot types.Screenshot) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return nil, ErrSessionActive
	}
	s := &Session{
		ID:         uuid.NewString(),
		Screenshot: shot,
		StartedAt:  time.Now(),
		tracker:    t,
	}
	t.active = s
	return s, nil
}

// Active returns the open session, if any
func (t *Tracker) Active() (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active, t.active != nil
}

// Claim reserves the session for processing. Only the first claim on a
// session that has not ended succeeds.
func (s *Session) Claim() error {
	if s.ended.Load() || !s.claimed.CompareAndSwap(false, true) {
		return ErrSessionEnded
	}
	return nil
}

// Ended reports whether End has been called
func (s *Session) Ended() bool {
	return s.ended.Load()
}

// End closes the session. It is safe to call more than once.
func (s *Session) End() {
	s.once.Do(func() {
		s.ended.Store(true)
		s.tracker.mu.Lock()
		if s.tracker.active == s {
			s.tracker.active = nil
		}
		s.tracker.mu.Unlock()
	})
}

// Duration reports how long the session has been open
func (s *Session) Duration() time.Duration {
	return time.Since(s.StartedAt)
}
