// ABOUTME: In-memory registry of active sessions, the authoritative map.
// ABOUTME: Enforces at-most-one session per id; drives the lifecycle state machine.

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keepy/keepy-gateway/internal/dedupe"
	"github.com/keepy/keepy-gateway/internal/wa"
	"github.com/keepy/keepy-gateway/internal/webhook"
)

// ErrSessionNotFound indicates the specified session is not in the registry.
var ErrSessionNotFound = errors.New("session not found")

// Dedupe window for re-delivered inbound messages.
const (
	dedupeTTL     = 5 * time.Minute
	dedupeMaxSize = 100_000
)

// Hints carries the optional attributes of a session-create request.
type Hints struct {
	// Phone is the external contact reference associated with the session.
	Phone string
	// WebhookURL overrides the process-wide webhook receiver for this session.
	WebhookURL string
}

// Registry is the authoritative map from session id to live session. All
// mutations happen under one mutex which is never held across I/O; the
// underlying client's callbacks and the HTTP layer race freely against it,
// so removal is a safe no-op for ids already gone.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory    wa.Factory
	dispatcher *webhook.Dispatcher
	dedupe     *dedupe.Cache
	logger     *slog.Logger
}

// NewRegistry creates an empty registry. Sessions are constructed through
// factory and their events relayed through dispatcher.
func NewRegistry(factory wa.Factory, dispatcher *webhook.Dispatcher, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		factory:    factory,
		dispatcher: dispatcher,
		dedupe:     dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:     logger.With("component", "registry"),
	}
}

// Create registers a session for sessionID and starts connecting it in the
// background. If a session already exists for the id, it is returned
// unchanged (idempotent create). The returned session is typically still in
// StateInitializing: progress is reported through webhook events, never
// through this call.
//
// When client construction fails, the session is removed again and the
// failure is logged; the caller that triggered creation has usually already
// been answered by then.
func (r *Registry) Create(sessionID string, hints Hints) *Session {
	r.mu.Lock()
	if existing, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		r.logger.Info("session already exists", "session_id", sessionID)
		return existing
	}

	s := &Session{
		ID:         sessionID,
		Phone:      hints.Phone,
		WebhookURL: hints.WebhookURL,
		CreatedAt:  time.Now(),
		state:      StateInitializing,
	}
	s.adapter = newAdapter(s, r)
	r.sessions[sessionID] = s
	r.mu.Unlock()

	r.logger.Info("creating session", "session_id", sessionID, "phone", hints.Phone)
	go r.connect(s)

	return s
}

// connect constructs the underlying client for s. Runs in the background;
// callbacks may start firing before the client handle is attached.
func (r *Registry) connect(s *Session) {
	client, err := r.factory(context.Background(), s.ID, wa.Events{
		QR:      s.adapter.onQR,
		State:   s.adapter.onState,
		Message: s.adapter.onMessage,
	})
	if err != nil {
		r.logger.Error("session creation failed",
			"session_id", s.ID,
			"error", err,
		)
		r.remove(s.ID)
		return
	}

	// A logout or disconnect can remove the session while construction is
	// still in flight. Attaching then would leave a live client nothing
	// owns, so re-check registration and release the client instead.
	r.mu.Lock()
	_, registered := r.sessions[s.ID]
	if registered {
		s.attach(client)
	}
	r.mu.Unlock()

	if !registered {
		r.logger.Info("session removed during construction, closing client", "session_id", s.ID)
		if err := client.Close(); err != nil {
			r.logger.Error("closing orphaned client", "session_id", s.ID, "error", err)
		}
		return
	}

	r.logger.Info("session created", "session_id", s.ID)
}

// Get returns the session for id, if present.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetByPhone returns a session whose contact reference matches phone. When
// several sessions share a phone, which one is returned is unspecified.
func (r *Registry) GetByPhone(phone string) (*Session, bool) {
	if phone == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.Phone == phone {
			return s, true
		}
	}
	return nil, false
}

// Terminate logs the session out of the underlying client and removes it.
// Returns ErrSessionNotFound for unknown ids. If the underlying logout
// fails, the entry stays in the registry so the caller may retry.
func (r *Registry) Terminate(ctx context.Context, id string) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	if err := s.adapter.logout(ctx); err != nil {
		return err
	}

	r.remove(id)
	r.logger.Info("session terminated", "session_id", id)
	return nil
}

// remove deletes id from the registry. Removing an id that is already gone
// is a no-op: an explicit logout can race a disconnect callback.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns a point-in-time snapshot of session summaries.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]Summary, 0, len(r.sessions))
	for _, s := range r.sessions {
		summaries = append(summaries, Summary{
			ID:    s.ID,
			Phone: s.Phone,
			State: s.State(),
		})
	}
	return summaries
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close drops all sessions and releases their clients without unpairing:
// device stores survive a restart even though registry state does not.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if client := s.Client(); client != nil {
			if err := client.Close(); err != nil {
				r.logger.Error("closing client", "session_id", s.ID, "error", err)
			}
		}
	}

	r.dedupe.Close()
}
