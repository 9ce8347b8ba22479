// Package routerauth establishes and maintains authenticated sessions
// against the router's HTTP management API.
//
// The router uses a SCRAM-style salted challenge-response login layered
// under a CSRF token handshake: a token pair scraped from the landing page
// authorizes the nonce exchange, the nonce exchange returns the salt,
// iteration count, server nonce and a refreshed token pair, and the client
// proof derived from those closes the login. All requests of one attempt
// share a single cookie-bearing client; the accumulated jar is the
// session.
//
// The package exposes the handshake (Authenticator.Authenticate), the
// cheap validity probe (Authenticator.IsValid) and the per-device state
// machine (Manager.EnsureAuthenticated) the polling loop drives.
package routerauth
