// Package switchauth logs in to the managed switch's HTTP API. Unlike the
// router's challenge-response login this is a single POST that returns an
// opaque transaction id; the id plus the granted user level authorize all
// later data requests.
package switchauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// loginPath is the switch login endpoint.
const loginPath = "/data/login.json"

// defaultTimeout bounds the login request.
const defaultTimeout = 10 * time.Second

// Token is an authenticated switch context: the transaction id and user
// level returned by a successful login, consumed by the switch collectors
// as query parameters or headers on every request.
type Token struct {
	// TID is the opaque transaction id (_tid_ on the wire).
	TID string
	// UserLevel is the access level granted to the account.
	UserLevel int
}

// RejectedError reports a login the switch refused, carrying the device's
// numeric error code.
type RejectedError struct {
	Code int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("switchauth: login rejected with errorcode %d", e.Code)
}

// Client performs switch logins.
type Client struct {
	// Timeout bounds the login request; zero means the package default.
	Timeout time.Duration

	httpClient *http.Client
}

type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Operation string `json:"operation"`
}

type loginResponse struct {
	Success   bool `json:"success"`
	ErrorCode int  `json:"errorcode"`
	Data      *struct {
		TID       string `json:"_tid_"`
		UserLevel int    `json:"usrLvl"`
	} `json:"data"`
}

// Login authenticates against the switch and returns its transaction
// token. operation selects the access mode the firmware expects,
// typically "write" for a collector that also reads counters.
func (c *Client) Login(ctx context.Context, address, username, password, operation string) (Token, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(loginRequest{Username: username, Password: password, Operation: operation})
	if err != nil {
		return Token{}, fmt.Errorf("switchauth: encode login request: %w", err)
	}

	url := "http://" + address + loginPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("switchauth: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("switchauth: login request to %s: %w", address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("switchauth: login to %s returned HTTP %d", address, resp.StatusCode)
	}

	var decoded loginResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Token{}, fmt.Errorf("switchauth: decode login response: %w", err)
	}
	if !decoded.Success || decoded.Data == nil || decoded.Data.TID == "" {
		return Token{}, &RejectedError{Code: decoded.ErrorCode}
	}

	log.WithFields(log.Fields{"switch": address, "level": decoded.Data.UserLevel}).Info("switch login successful")
	return Token{TID: decoded.Data.TID, UserLevel: decoded.Data.UserLevel}, nil
}
