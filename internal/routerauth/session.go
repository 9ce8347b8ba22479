package routerauth

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// Request headers the firmware requires on every API call; without
// _ResponseFormat the device answers with HTML wrappers instead of JSON.
const (
	headerContentType    = "application/json; charset=utf-8"
	headerRequestedWith  = "XMLHttpRequest"
	headerResponseFormat = "JSON"
)

// Session is an authenticated context against one router. It owns the
// http.Client whose cookie jar carries the server-issued session cookie,
// and is handed to data collectors for further authenticated requests.
// A Session is owned by its caller; the auth manager only touches it
// transiently while validating.
type Session struct {
	baseURL       string
	client        *http.Client
	level         int
	lastValidated time.Time
}

// BaseURL returns the http://host root the session authenticates against.
func (s *Session) BaseURL() string { return s.baseURL }

// Level reports the access level the firmware granted at login.
func (s *Session) Level() int { return s.level }

// LastValidated reports when the session last passed a validity probe or
// completed a handshake.
func (s *Session) LastValidated() time.Time { return s.lastValidated }

// Get issues an authenticated GET against a device API path.
func (s *Session) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	setAPIHeaders(req)
	return s.client.Do(req)
}

// PostJSON issues an authenticated POST with a JSON body against a device
// API path.
func (s *Session) PostJSON(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	setAPIHeaders(req)
	return s.client.Do(req)
}

func setAPIHeaders(req *http.Request) {
	req.Header.Set("Content-Type", headerContentType)
	req.Header.Set("X-Requested-With", headerRequestedWith)
	req.Header.Set("_ResponseFormat", headerResponseFormat)
}
