package routerauth

import (
	"context"
	"io"
	"net/http"
	"regexp"
)

// loginPagePath is the static landing page that embeds the CSRF meta tags.
const loginPagePath = "/html/index.html"

var (
	csrfParamRe = regexp.MustCompile(`<meta name="csrf_param" content="([^"]+)"`)
	csrfTokenRe = regexp.MustCompile(`<meta name="csrf_token" content="([^"]+)"`)
)

// csrfPair is one anti-CSRF token pair scraped from the landing page or
// returned inside a handshake response. A pair is valid for exactly one
// state-changing request.
type csrfPair struct {
	Param string `json:"csrf_param"`
	Token string `json:"csrf_token"`
}

// fetchCSRF loads the device landing page and extracts the CSRF pair from
// its meta tags. The GET also seeds the cookie jar shared by the rest of
// the handshake, so it must run on the same client as the later POSTs.
func fetchCSRF(ctx context.Context, client *http.Client, baseURL string) (csrfPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+loginPagePath, nil)
	if err != nil {
		return csrfPair{}, &TransportError{Op: "csrf fetch", Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return csrfPair{}, &TransportError{Op: "csrf fetch", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return csrfPair{}, &TransportError{Op: "csrf fetch", Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return csrfPair{}, &TransportError{Op: "csrf fetch", Err: err}
	}

	param := csrfParamRe.FindSubmatch(body)
	token := csrfTokenRe.FindSubmatch(body)
	if param == nil || token == nil {
		return csrfPair{}, &ProtocolError{Reason: "login page has no csrf_param/csrf_token meta tags"}
	}
	return csrfPair{Param: string(param[1]), Token: string(token[1])}, nil
}
