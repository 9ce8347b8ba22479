package routerauth

import (
	"context"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// probePath is a cheap authenticated endpoint used only to test whether a
// session cookie is still honoured.
const probePath = "/api/system/HostInfo"

// IsValid probes the device with the session's cookies and reports whether
// the session is still usable. HTTP 401, 403 and 404 all mean the firmware
// dropped the session; so does any transport failure. Every other answer
// counts as valid. IsValid never returns an error and never mutates the
// session's cookie state beyond what the probe response itself sets.
// "Expired" and "never authenticated" are indistinguishable here; the
// remedy is the same handshake either way.
func (a *Authenticator) IsValid(ctx context.Context, s *Session) bool {
	if s == nil {
		return false
	}
	timeout := a.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.Get(ctx, probePath)
	if err != nil {
		log.WithError(err).Debug("session probe failed, treating session as invalid")
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		log.WithField("status", resp.StatusCode).Debug("session probe rejected")
		return false
	}
	s.lastValidated = time.Now()
	return true
}
