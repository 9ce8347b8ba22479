package switchauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/login.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["username"] != "admin" || body["password"] != "secret" || body["operation"] != "write" {
			t.Errorf("body = %v", body)
		}
		fmt.Fprint(w, `{"success":true,"data":{"_tid_":"8f3a1c","usrLvl":15}}`)
	}))
	defer srv.Close()

	c := &Client{}
	token, err := c.Login(context.Background(), strings.TrimPrefix(srv.URL, "http://"), "admin", "secret", "write")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token.TID != "8f3a1c" || token.UserLevel != 15 {
		t.Errorf("token = %+v", token)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":false,"errorcode":-21}`)
	}))
	defer srv.Close()

	c := &Client{}
	_, err := c.Login(context.Background(), strings.TrimPrefix(srv.URL, "http://"), "admin", "bad", "write")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("got %v, want RejectedError", err)
	}
	if rejected.Code != -21 {
		t.Errorf("code = %d, want -21", rejected.Code)
	}
}

func TestLoginEmptyData(t *testing.T) {
	// success=true with a null data object still counts as a rejection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":null}`)
	}))
	defer srv.Close()

	c := &Client{}
	_, err := c.Login(context.Background(), strings.TrimPrefix(srv.URL, "http://"), "admin", "pw", "write")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("got %v, want RejectedError", err)
	}
}

func TestLoginUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	c := &Client{}
	if _, err := c.Login(context.Background(), addr, "admin", "pw", "write"); err == nil {
		t.Fatal("Login succeeded against a closed server")
	}
}
