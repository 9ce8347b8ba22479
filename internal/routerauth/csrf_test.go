package routerauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchCSRF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><head>
<meta charset="utf-8">
<meta name="csrf_param" content="Nas3wacGs">
<meta name="csrf_token" content="fBc4Fg0xGMb7dW0PJnbiBGKMOXKyOUZh">
</head></html>`)
	}))
	defer srv.Close()

	pair, err := fetchCSRF(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("fetchCSRF: %v", err)
	}
	if pair.Param != "Nas3wacGs" || pair.Token != "fBc4Fg0xGMb7dW0PJnbiBGKMOXKyOUZh" {
		t.Errorf("pair = %+v", pair)
	}
}

func TestFetchCSRFMissingTag(t *testing.T) {
	// Param present, token absent: still a protocol error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<meta name="csrf_param" content="only_param">`)
	}))
	defer srv.Close()

	_, err := fetchCSRF(context.Background(), srv.Client(), srv.URL)
	var protocol *ProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("got %v, want ProtocolError", err)
	}
}

func TestFetchCSRFServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fetchCSRF(context.Background(), srv.Client(), srv.URL)
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("got %v, want TransportError", err)
	}
}
