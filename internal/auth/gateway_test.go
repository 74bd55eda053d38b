// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pni-chat/pni-tui/internal/api"
	"github.com/pni-chat/pni-tui/internal/creds"
	"github.com/pni-chat/pni-tui/internal/session"
)

// fakeBackend records calls and returns canned responses.
type fakeBackend struct {
	token       string
	tokenErr    error
	registerErr error

	lastUser   string
	lastDigest string
	setToken   string
	cleared    bool
}

func (f *fakeBackend) Token(ctx context.Context, username, digest string) (*api.TokenResponse, error) {
	f.lastUser, f.lastDigest = username, digest
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return &api.TokenResponse{AccessToken: f.token, Username: username}, nil
}

func (f *fakeBackend) Register(ctx context.Context, username, digest string) (*api.TokenResponse, error) {
	f.lastUser, f.lastDigest = username, digest
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &api.TokenResponse{AccessToken: f.token, Username: username}, nil
}

func (f *fakeBackend) SetToken(token string) { f.setToken = token }
func (f *fakeBackend) ClearToken()           { f.setToken = ""; f.cleared = true }

func newTestGateway(t *testing.T, backend *fakeBackend) (*Gateway, *session.Session, *creds.Store) {
	t.Helper()
	store, err := creds.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	sess := session.New()
	return NewGateway(sess, store, backend), sess, store
}

func TestLoginSuccess(t *testing.T) {
	backend := &fakeBackend{token: "tok-1"}
	g, sess, store := newTestGateway(t, backend)

	var loginFired bool
	g.OnLogin(func() { loginFired = true })

	if err := g.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if !sess.Authenticated() || sess.DisplayName() != "alice" {
		t.Errorf("session not installed: token=%q name=%q", sess.Token(), sess.DisplayName())
	}
	if backend.setToken != "tok-1" {
		t.Errorf("client token = %q", backend.setToken)
	}
	if backend.lastDigest == "secret" {
		t.Error("raw password sent to the server")
	}
	stored, _ := store.AuthToken()
	if stored != "tok-1" {
		t.Errorf("stored token = %q", stored)
	}
	if !loginFired {
		t.Error("onLogin not fired")
	}
}

func TestLoginValidation(t *testing.T) {
	backend := &fakeBackend{token: "tok"}
	g, sess, _ := newTestGateway(t, backend)

	var vErr *ValidationError
	if err := g.Login(context.Background(), "  ", "secret"); !errors.As(err, &vErr) {
		t.Errorf("empty username error = %v", err)
	}
	if err := g.Login(context.Background(), "alice", ""); !errors.As(err, &vErr) {
		t.Errorf("empty password error = %v", err)
	}
	if backend.lastUser != "" {
		t.Error("validation failure reached the server")
	}
	if sess.Authenticated() {
		t.Error("session touched by failed validation")
	}
}

func TestLoginServerFailureLeavesSessionUntouched(t *testing.T) {
	backend := &fakeBackend{tokenErr: &api.APIError{Status: 400, Detail: "incorrect username or password"}}
	g, sess, store := newTestGateway(t, backend)

	err := g.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("error type = %T", err)
	}
	if sess.Authenticated() {
		t.Error("session authenticated after failed login")
	}
	token, _ := store.AuthToken()
	if token != "" {
		t.Error("token stored after failed login")
	}
}

func TestLoginThrottle(t *testing.T) {
	backend := &fakeBackend{tokenErr: &api.APIError{Status: 400, Detail: "nope"}}
	g, _, _ := newTestGateway(t, backend)

	var throttled bool
	for i := 0; i < 10; i++ {
		if err := g.Login(context.Background(), "alice", "wrong"); errors.Is(err, ErrThrottled) {
			throttled = true
			break
		}
	}
	if !throttled {
		t.Error("rapid attempts never throttled")
	}
}

func TestRegisterMismatchIsLocal(t *testing.T) {
	backend := &fakeBackend{token: "tok"}
	g, _, _ := newTestGateway(t, backend)

	var vErr *ValidationError
	err := g.Register(context.Background(), "bob", "one", "two")
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if backend.lastUser != "" {
		t.Error("mismatch reached the server")
	}
}

func TestRegisterSuccessSignsIn(t *testing.T) {
	backend := &fakeBackend{token: "tok-new"}
	g, sess, _ := newTestGateway(t, backend)

	if err := g.Register(context.Background(), "bob", "pw", "pw"); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if !sess.Authenticated() || sess.Token() != "tok-new" {
		t.Error("register did not sign in")
	}
}

func TestLogout(t *testing.T) {
	backend := &fakeBackend{token: "tok"}
	g, sess, store := newTestGateway(t, backend)

	var logoutFired bool
	g.OnLogout(func() { logoutFired = true })

	if err := g.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	g.Logout()

	if sess.Authenticated() {
		t.Error("session still authenticated")
	}
	if !backend.cleared {
		t.Error("client token not cleared")
	}
	token, _ := store.AuthToken()
	if token != "" {
		t.Error("stored token survived logout")
	}
	if !logoutFired {
		t.Error("onLogout not fired")
	}
}

func TestResume(t *testing.T) {
	backend := &fakeBackend{}
	g, sess, store := newTestGateway(t, backend)

	ok, err := g.Resume()
	if err != nil || ok {
		t.Errorf("Resume() on empty store = (%v, %v)", ok, err)
	}

	store.SetAuthToken("saved-tok")
	store.SetDisplayName("carol")

	ok, err = g.Resume()
	if err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if !ok {
		t.Fatal("Resume() = false with a stored token")
	}
	if sess.Token() != "saved-tok" || sess.DisplayName() != "carol" {
		t.Errorf("session = %q/%q", sess.Token(), sess.DisplayName())
	}
	if backend.setToken != "saved-tok" {
		t.Errorf("client token = %q", backend.setToken)
	}
}
