package service

import "sync"

// Session carries the caller's identity for one operation. The daemon does
// not mint credentials itself; the client app passes its account id and
// access token with each request.
type Session struct {
	AccountID string
	Token     string
}

// Authenticated reports whether the session can own remote records.
func (s Session) Authenticated() bool {
	return s.AccountID != ""
}

// SessionHolder remembers the most recent authenticated session so the
// background flusher can drain queues between interactive requests.
type SessionHolder struct {
	mu      sync.RWMutex
	current Session
}

// NewSessionHolder creates an empty holder.
func NewSessionHolder() *SessionHolder {
	return &SessionHolder{}
}

// Remember stores a session. Unauthenticated sessions are ignored so a
// signed-out request cannot wipe the flusher's credentials.
func (h *SessionHolder) Remember(session Session) {
	if !session.Authenticated() {
		return
	}
	h.mu.Lock()
	h.current = session
	h.mu.Unlock()
}

// Current returns the last remembered session, which may be zero.
func (h *SessionHolder) Current() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Clear forgets the remembered session, for sign-out.
func (h *SessionHolder) Clear() {
	h.mu.Lock()
	h.current = Session{}
	h.mu.Unlock()
}
