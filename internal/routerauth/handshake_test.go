package routerauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// mockRouter emulates the device's login surface closely enough to
// exercise the full handshake: CSRF meta tags on the landing page, the
// nonce and proof endpoints with their csrf-pair rotation, and a cookie
// gated HostInfo probe. It verifies submitted proofs with the same
// derivation the firmware uses.
type mockRouter struct {
	t        *testing.T
	password string
	srv      *httptest.Server

	mu          sync.Mutex
	salt        string
	iterations  int
	firstNonce  string
	serverNonce string
	sessions    map[string]bool

	rejectNonceCode     int
	rejectProofCode     int
	rejectProofCategory string

	pageCalls  int
	nonceCalls int
	proofCalls int
	probeCalls int
}

// Static token pairs; the page pair authorizes only the nonce POST, the
// nonce pair only the proof POST.
var (
	pageCSRF  = csrfPair{Param: "csrf_page_param", Token: "csrf_page_token"}
	freshCSRF = csrfPair{Param: "csrf_fresh_param", Token: "csrf_fresh_token"}
)

func newMockRouter(t *testing.T, password string) *mockRouter {
	m := &mockRouter{
		t:          t,
		password:   password,
		salt:       "a5c94253c216f67bca2baff8dacad895813d1c07092f22abef2e8b95ce10a053",
		iterations: 100,
		sessions:   make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/html/index.html", m.handlePage)
	mux.HandleFunc(noncePath, m.handleNonce)
	mux.HandleFunc(proofPath, m.handleProof)
	mux.HandleFunc(probePath, m.handleProbe)
	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockRouter) address() string {
	return strings.TrimPrefix(m.srv.URL, "http://")
}

func (m *mockRouter) counts() (page, nonce, proof, probe int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageCalls, m.nonceCalls, m.proofCalls, m.probeCalls
}

// expireSessions simulates a firmware-side session timeout.
func (m *mockRouter) expireSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]bool)
}

func (m *mockRouter) handlePage(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	m.pageCalls++
	m.mu.Unlock()
	fmt.Fprintf(w, `<html><head>
<meta name="csrf_param" content="%s">
<meta name="csrf_token" content="%s">
</head><body>login</body></html>`, pageCSRF.Param, pageCSRF.Token)
}

func (m *mockRouter) handleNonce(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonceCalls++

	var req nonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.t.Errorf("nonce request body: %v", err)
	}
	if req.CSRF != pageCSRF {
		m.t.Errorf("nonce POST carried csrf %+v, want landing-page pair", req.CSRF)
	}
	if r.Header.Get("_ResponseFormat") != "JSON" || r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
		m.t.Error("nonce POST missing required vendor headers")
	}

	if m.rejectNonceCode != 0 {
		_ = json.NewEncoder(w).Encode(nonceResponse{Err: m.rejectNonceCode})
		return
	}

	m.firstNonce = req.Data.FirstNonce
	m.serverNonce = req.Data.FirstNonce + "9iA0gSjJSDwO6e2zD2zdGa7AxTGLdE8d"
	_ = json.NewEncoder(w).Encode(nonceResponse{
		Err:         0,
		Salt:        m.salt,
		Iterations:  m.iterations,
		ServerNonce: m.serverNonce,
		CSRFParam:   freshCSRF.Param,
		CSRFToken:   freshCSRF.Token,
	})
}

func (m *mockRouter) handleProof(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proofCalls++

	var req proofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.t.Errorf("proof request body: %v", err)
	}
	if req.CSRF == pageCSRF {
		m.t.Error("proof POST reused the landing-page csrf pair instead of the refreshed one")
	}
	if req.CSRF != freshCSRF {
		m.t.Errorf("proof POST carried csrf %+v, want refreshed pair", req.CSRF)
	}
	if req.Data.FinalNonce != m.serverNonce {
		m.t.Errorf("finalnonce %q, want server nonce %q", req.Data.FinalNonce, m.serverNonce)
	}

	expected, err := computeProof(m.password, m.salt, m.iterations, m.firstNonce, m.serverNonce)
	if err != nil {
		m.t.Fatalf("mock proof derivation: %v", err)
	}

	if m.rejectProofCode != 0 || req.Data.ClientProof != expected {
		code := m.rejectProofCode
		category := m.rejectProofCategory
		if code == 0 {
			code = 40401
			category = "user_pass_err"
		}
		_ = json.NewEncoder(w).Encode(proofResponse{Err: code, ErrorCategory: category})
		return
	}

	id := make([]byte, 16)
	_, _ = rand.Read(id)
	sessionID := hex.EncodeToString(id)
	m.sessions[sessionID] = true
	http.SetCookie(w, &http.Cookie{Name: "SessionID", Value: sessionID, Path: "/"})
	_ = json.NewEncoder(w).Encode(proofResponse{Err: 0, Level: 2})
}

func (m *mockRouter) handleProbe(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeCalls++

	cookie, err := r.Cookie("SessionID")
	if err != nil || !m.sessions[cookie.Value] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	fmt.Fprint(w, `{"Hosts":[]}`)
}

func (m *mockRouter) creds(password string) Credentials {
	return Credentials{Address: m.address(), Username: "admin", Password: password}
}

func TestAuthenticateSuccess(t *testing.T) {
	mock := newMockRouter(t, "187237")
	auth := &Authenticator{}

	session, err := auth.Authenticate(context.Background(), mock.creds("187237"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if session.Level() != 2 {
		t.Errorf("session level = %d, want 2", session.Level())
	}

	// The returned session must carry the server cookie: an authenticated
	// GET against the probe endpoint succeeds.
	resp, err := session.Get(context.Background(), probePath)
	if err != nil {
		t.Fatalf("authenticated GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated GET status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	mock := newMockRouter(t, "187237")
	auth := &Authenticator{}

	_, err := auth.Authenticate(context.Background(), mock.creds("wrong"))
	var rejected *AuthenticationRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("got %v, want AuthenticationRejected", err)
	}
	if rejected.Code != 40401 || rejected.Category != "user_pass_err" {
		t.Errorf("rejection = %+v, want code 40401 category user_pass_err", rejected)
	}
}

func TestAuthenticateNonceRejected(t *testing.T) {
	mock := newMockRouter(t, "187237")
	mock.rejectNonceCode = 10003
	auth := &Authenticator{}

	_, err := auth.Authenticate(context.Background(), mock.creds("187237"))
	var rejected *ServerRejected
	if !errors.As(err, &rejected) {
		t.Fatalf("got %v, want ServerRejected", err)
	}
	if rejected.Code != 10003 {
		t.Errorf("rejection code = %d, want 10003", rejected.Code)
	}
	if _, _, proofCalls, _ := mock.counts(); proofCalls != 0 {
		t.Errorf("proof endpoint was called %d times after nonce rejection", proofCalls)
	}
}

func TestAuthenticateUnreachable(t *testing.T) {
	mock := newMockRouter(t, "187237")
	addr := mock.address()
	mock.srv.Close()

	auth := &Authenticator{}
	_, err := auth.Authenticate(context.Background(), Credentials{Address: addr, Username: "admin", Password: "187237"})
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("got %v, want TransportError", err)
	}
}

func TestAuthenticateMissingCSRFTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><head></head><body>no tags here</body></html>")
	}))
	defer srv.Close()

	auth := &Authenticator{}
	_, err := auth.Authenticate(context.Background(), Credentials{
		Address:  strings.TrimPrefix(srv.URL, "http://"),
		Username: "admin",
		Password: "187237",
	})
	var protocol *ProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("got %v, want ProtocolError", err)
	}
}

func TestAuthenticateNonceHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/html/index.html", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<meta name="csrf_param" content="p"><meta name="csrf_token" content="t">`)
	})
	mux.HandleFunc(noncePath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	auth := &Authenticator{}
	_, err := auth.Authenticate(context.Background(), Credentials{
		Address:  strings.TrimPrefix(srv.URL, "http://"),
		Username: "admin",
		Password: "187237",
	})
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if transport.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", transport.Status)
	}
}
