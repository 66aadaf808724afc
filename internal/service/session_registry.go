package service

import (
	"context"
	"sync"
	"time"

	"stickerboard/internal/models"
	"stickerboard/internal/security"
)

// AccountLoader loads the account a parent session acts for.
type AccountLoader interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
}

// ParentSession is one browser's parent-mode state: its guard and PIN pad.
type ParentSession struct {
	ID    string
	Guard *ParentGuard
	Pad   *PinPad

	lastSeen time.Time
}

// SessionRegistry maps ephemeral parent-session ids to their state. Nothing
// is persisted; a restart locks every session.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*ParentSession
	idle     time.Duration
	newGuard func() *ParentGuard
	accounts AccountLoader
	now      func() time.Time
}

// NewSessionRegistry creates a new session registry. Sessions unused for
// longer than idle are dropped; idle <= 0 keeps them until End.
func NewSessionRegistry(idle time.Duration, newGuard func() *ParentGuard, accounts AccountLoader) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*ParentSession),
		idle:     idle,
		newGuard: newGuard,
		accounts: accounts,
		now:      time.Now,
	}
}

// Create starts a new locked session
func (r *SessionRegistry) Create() *ParentSession {
	guard := r.newGuard()
	sess := &ParentSession{
		ID:    security.GenerateSessionID(),
		Guard: guard,
	}
	sess.Pad = NewPinPad(func(ctx context.Context, pin string) (PinResult, error) {
		id, ok := IdentityFromContext(ctx)
		if !ok {
			return PinRejected, ErrUnauthenticated
		}
		account, err := r.accounts.GetAccount(ctx, id.ID)
		if err != nil {
			return PinRejected, err
		}
		return guard.VerifyPin(ctx, account, pin)
	})

	r.mu.Lock()
	sess.lastSeen = r.now()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	return sess
}

// Get returns a live session and marks it used. Expired sessions are locked
// and removed.
func (r *SessionRegistry) Get(id string) (*ParentSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	now := r.now()
	if r.expired(sess, now) {
		sess.Guard.Lock()
		delete(r.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

// End locks and forgets a session. Unknown ids are ignored.
func (r *SessionRegistry) End(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		sess.Guard.Lock()
	}
}

// Sweep removes every expired session and returns how many were dropped
func (r *SessionRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for id, sess := range r.sessions {
		if r.expired(sess, now) {
			sess.Guard.Lock()
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Len returns the number of tracked sessions
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) expired(sess *ParentSession, now time.Time) bool {
	return r.idle > 0 && now.Sub(sess.lastSeen) > r.idle
}
