package routerauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// Device login endpoints.
const (
	noncePath = "/api/system/user_login_nonce"
	proofPath = "/api/system/user_login_proof"
)

// DefaultHandshakeTimeout bounds a full login attempt, including the
// server-side PBKDF2 work the firmware performs on the proof request.
const DefaultHandshakeTimeout = 30 * time.Second

// DefaultProbeTimeout bounds the lightweight session validity probe.
const DefaultProbeTimeout = 5 * time.Second

// Credentials identifies one router login. Immutable for the process
// lifetime; the auth manager owns the only copy.
type Credentials struct {
	// Address is the router host or host:port, without scheme.
	Address string
	// Username is the management account name.
	Username string
	// Password is the management account password. It is never sent on
	// the wire; only the derived proof is.
	Password string
}

// Authenticator performs the SCRAM-under-CSRF handshake and session
// validity probes. The zero value is usable; timeouts fall back to the
// package defaults.
type Authenticator struct {
	// HandshakeTimeout bounds a full Authenticate call.
	HandshakeTimeout time.Duration
	// ProbeTimeout bounds an IsValid probe.
	ProbeTimeout time.Duration
}

type nonceRequest struct {
	Data struct {
		Username   string `json:"username"`
		FirstNonce string `json:"firstnonce"`
	} `json:"data"`
	CSRF csrfPair `json:"csrf"`
}

type nonceResponse struct {
	Err         int    `json:"err"`
	Salt        string `json:"salt"`
	Iterations  int    `json:"iterations"`
	ServerNonce string `json:"servernonce"`
	CSRFParam   string `json:"csrf_param"`
	CSRFToken   string `json:"csrf_token"`
}

type proofRequest struct {
	Data struct {
		ClientProof string `json:"clientproof"`
		FinalNonce  string `json:"finalnonce"`
	} `json:"data"`
	CSRF csrfPair `json:"csrf"`
}

type proofResponse struct {
	Err           int    `json:"err"`
	Level         int    `json:"level"`
	ErrorCategory string `json:"errorCategory"`
}

// Authenticate runs the full handshake against the router and returns an
// authenticated Session. The sequence is strict: CSRF fetch, nonce
// exchange, proof submission, each over the same cookie-bearing client so
// the server-issued session cookie accumulates in one jar. Any failed step
// aborts the attempt with a typed error; there are no partial retries, and
// nonces are never reused across attempts.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	timeout := a.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("routerauth: create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar}
	baseURL := "http://" + creds.Address

	log.WithField("router", creds.Address).Debug("starting router handshake")

	// Step 1: the landing-page CSRF pair. Valid for the nonce POST only.
	firstCSRF, err := fetchCSRF(ctx, client, baseURL)
	if err != nil {
		return nil, err
	}

	// Step 2: fresh client nonce for this attempt.
	clientNonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	// Step 3: nonce exchange.
	var nonceReq nonceRequest
	nonceReq.Data.Username = creds.Username
	nonceReq.Data.FirstNonce = clientNonce
	nonceReq.CSRF = firstCSRF

	var nonceResp nonceResponse
	if err = postJSON(ctx, client, baseURL+noncePath, &nonceReq, &nonceResp, "nonce exchange"); err != nil {
		return nil, err
	}
	if nonceResp.Err != 0 {
		return nil, &ServerRejected{Code: nonceResp.Err}
	}
	if nonceResp.ServerNonce == "" || nonceResp.Salt == "" {
		return nil, &ProtocolError{Reason: "nonce response missing servernonce or salt"}
	}
	// The response embeds a second CSRF pair; the first one is spent and
	// must not be echoed again. The proof POST uses this pair.
	secondCSRF := csrfPair{Param: nonceResp.CSRFParam, Token: nonceResp.CSRFToken}
	if secondCSRF.Param == "" || secondCSRF.Token == "" {
		return nil, &ProtocolError{Reason: "nonce response missing refreshed csrf pair"}
	}

	// Step 4: derive the proof from this attempt's challenge.
	proof, err := computeProof(creds.Password, nonceResp.Salt, nonceResp.Iterations, clientNonce, nonceResp.ServerNonce)
	if err != nil {
		return nil, err
	}

	// Step 5: proof submission.
	var proofReq proofRequest
	proofReq.Data.ClientProof = proof
	proofReq.Data.FinalNonce = nonceResp.ServerNonce
	proofReq.CSRF = secondCSRF

	var proofResp proofResponse
	if err = postJSON(ctx, client, baseURL+proofPath, &proofReq, &proofResp, "proof submission"); err != nil {
		return nil, err
	}
	if proofResp.Err != 0 {
		return nil, &AuthenticationRejected{Code: proofResp.Err, Category: proofResp.ErrorCategory}
	}

	log.WithFields(log.Fields{"router": creds.Address, "level": proofResp.Level}).Info("router login successful")

	return &Session{
		baseURL:       baseURL,
		client:        client,
		level:         proofResp.Level,
		lastValidated: time.Now(),
	}, nil
}

// postJSON sends one handshake POST and decodes the JSON reply. A non-200
// status is a TransportError; an undecodable body is a ProtocolError.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any, op string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("routerauth: encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	setAPIHeaders(req)

	resp, err := client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: op, Status: resp.StatusCode}
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProtocolError{Reason: op + " response is not valid JSON: " + err.Error()}
	}
	return nil
}
