package routerauth

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// State is the auth state machine position of a Manager.
type State int

const (
	// StateUnauthenticated means no session is held; the next
	// EnsureAuthenticated call will run a handshake.
	StateUnauthenticated State = iota
	// StateAuthenticated means a session was obtained by a full
	// successful handshake and has not failed validation since.
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Manager owns the credentials and current session for one router and
// decides when to re-authenticate. It is the only long-lived auth state in
// the process: one Manager per device, no globals, so independent devices
// can each run their own instance. A Manager is driven sequentially by the
// polling loop and is not safe for concurrent use; in particular a single
// in-flight handshake exclusively owns its cookie context.
//
// The Manager performs at most one handshake per EnsureAuthenticated call
// and never sleeps. Retry cadence and the consecutive-failure cutoff are
// the polling loop's business.
type Manager struct {
	creds Credentials
	auth  *Authenticator

	session *Session
}

// NewManager builds a Manager for one credential set. Credentials are
// passed in explicitly rather than read from ambient process state, and
// are not mutated afterwards. A nil authenticator gets default timeouts.
func NewManager(creds Credentials, auth *Authenticator) *Manager {
	if auth == nil {
		auth = &Authenticator{}
	}
	return &Manager{creds: creds, auth: auth}
}

// State reports the current state machine position.
func (m *Manager) State() State {
	if m.session != nil {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// Session returns the currently held session, nil when unauthenticated.
func (m *Manager) Session() *Session { return m.session }

// Invalidate drops the current session so the next EnsureAuthenticated
// call performs a full handshake.
func (m *Manager) Invalidate() { m.session = nil }

// EnsureAuthenticated returns a session that passed either a validity
// probe or a full handshake during this call.
//
// Held sessions are validated before being trusted rather than blindly
// reused; a stale session would otherwise surface as a cascade of
// collection errors instead of one clear auth failure. When validation
// fails the session is dropped and a single handshake is attempted. A
// failed or timed-out handshake leaves the Manager unauthenticated, never
// holding a partial session, and the typed error goes back to the caller.
func (m *Manager) EnsureAuthenticated(ctx context.Context) (*Session, error) {
	if m.session != nil {
		if m.auth.IsValid(ctx, m.session) {
			return m.session, nil
		}
		log.WithField("router", m.creds.Address).Info("router session expired, re-authenticating")
		m.session = nil
	}

	session, err := m.auth.Authenticate(ctx, m.creds)
	if err != nil {
		return nil, err
	}
	m.session = session
	return session, nil
}
