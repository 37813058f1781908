package broker

import (
	"context"
	"sync/atomic"
)

// Session is an immutable handle to an authenticated trading session.
// Reconnecting swaps the whole handle; readers never observe a partially
// updated session.
type Session struct {
	ID         string
	IntAccount int64
}

// SessionSource produces fresh trading sessions. The login handshake
// itself (TOTP and all) lives outside this package.
type SessionSource interface {
	NewSession(ctx context.Context) (Session, error)
}

// DisabledSource is used when no credentials are configured.
type DisabledSource struct{}

func (DisabledSource) NewSession(ctx context.Context) (Session, error) {
	return Session{}, ErrSessionUnavailable
}

// StaticSource hands out one pre-established session, e.g. a session id
// captured by an external login flow.
type StaticSource struct {
	Session Session
}

func (s StaticSource) NewSession(ctx context.Context) (Session, error) {
	if s.Session.ID == "" {
		return Session{}, ErrSessionUnavailable
	}
	return s.Session, nil
}

// sessionHolder shares one session across all callers. The only mutation
// is wholesale replacement through the atomic pointer.
type sessionHolder struct {
	source  SessionSource
	current atomic.Pointer[Session]
}

func newSessionHolder(source SessionSource) *sessionHolder {
	if source == nil {
		source = DisabledSource{}
	}
	return &sessionHolder{source: source}
}

// get returns the shared session, creating it lazily on first use.
func (h *sessionHolder) get(ctx context.Context) (Session, error) {
	if s := h.current.Load(); s != nil {
		return *s, nil
	}
	return h.replace(ctx)
}

// replace builds a fresh session and publishes it for every holder.
func (h *sessionHolder) replace(ctx context.Context) (Session, error) {
	s, err := h.source.NewSession(ctx)
	if err != nil {
		return Session{}, err
	}
	h.current.Store(&s)
	return s, nil
}
