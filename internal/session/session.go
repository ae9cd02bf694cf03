// ABOUTME: Session model and lifecycle states for managed WhatsApp connections.
// ABOUTME: Each session owns exactly one underlying client via its adapter.

package session

import (
	"sync"
	"time"

	"github.com/keepy/keepy-gateway/internal/wa"
)

// State is a session's position in its lifecycle. A session is created in
// StateInitializing, moves to StateAwaitingScan when the first QR code
// arrives, and to StateConnected once the scan is recognized. There is no
// terminal state: a disconnected session is removed from the registry.
type State string

const (
	StateInitializing State = "initializing"
	StateAwaitingScan State = "awaiting_scan"
	StateConnected    State = "connected"
)

// Session is one logical, caller-addressed WhatsApp connection.
type Session struct {
	ID         string
	Phone      string
	WebhookURL string
	CreatedAt  time.Time

	mu      sync.Mutex
	state   State
	client  wa.Client
	adapter *Adapter
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Adapter returns the connection adapter owning this session's client.
func (s *Session) Adapter() *Adapter {
	return s.adapter
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// markScanning moves an initializing session to awaiting_scan. Later states
// are left alone: a QR refresh must not regress a connected session.
func (s *Session) markScanning() {
	s.mu.Lock()
	if s.state == StateInitializing {
		s.state = StateAwaitingScan
	}
	s.mu.Unlock()
}

// attach hands the session its underlying client once construction finishes.
// Callbacks can fire before attach; they must tolerate a nil client.
func (s *Session) attach(client wa.Client) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
}

// Client returns the underlying client, or nil while construction is still
// in flight.
func (s *Session) Client() wa.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Summary is the registry-listing view of a session.
type Summary struct {
	ID    string
	Phone string
	State State
}
