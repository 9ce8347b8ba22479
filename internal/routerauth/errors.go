package routerauth

import "fmt"

// TransportError reports a network-level failure: connection refused, DNS,
// timeout, or a non-200 HTTP status from the device.
type TransportError struct {
	// Op names the handshake step that failed, e.g. "csrf fetch".
	Op string
	// Status is the HTTP status code when the device answered with a
	// non-200 response, zero otherwise.
	Status int
	// Err is the underlying transport error, nil for status failures.
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routerauth: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("routerauth: %s: unexpected HTTP status %d", e.Op, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a well-formed response that is missing expected
// tokens or fields, such as a login page without CSRF meta tags.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("routerauth: protocol error: %s", e.Reason)
}

// CryptoInputError reports malformed key-derivation inputs supplied by the
// device: an invalid hex salt or a non-positive iteration count.
type CryptoInputError struct {
	Reason string
}

func (e *CryptoInputError) Error() string {
	return fmt.Sprintf("routerauth: crypto input error: %s", e.Reason)
}

// ServerRejected reports a non-zero err code from the nonce-exchange stage.
type ServerRejected struct {
	Code int
}

func (e *ServerRejected) Error() string {
	return fmt.Sprintf("routerauth: nonce exchange rejected with code %d", e.Code)
}

// AuthenticationRejected reports a non-zero err code from the
// proof-submission stage: wrong password, account lockout, or a proof the
// firmware would not accept.
type AuthenticationRejected struct {
	Code     int
	Category string
}

func (e *AuthenticationRejected) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("routerauth: login rejected with code %d (category %s)", e.Code, e.Category)
	}
	return fmt.Sprintf("routerauth: login rejected with code %d", e.Code)
}
