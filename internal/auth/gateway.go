// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the sign-in, registration, and logout flows,
// tying the service client to the session and the credential store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pni-chat/pni-tui/internal/api"
	"github.com/pni-chat/pni-tui/internal/creds"
	"github.com/pni-chat/pni-tui/internal/session"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrThrottled is returned when login attempts come faster than the
// local limiter allows.
var ErrThrottled = errors.New("too many attempts, slow down")

// ValidationError reports a problem with the entered credentials that
// was caught locally, before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// =============================================================================
// GATEWAY
// =============================================================================

// Backend is the slice of the service client the gateway needs.
type Backend interface {
	Token(ctx context.Context, username, passwordDigest string) (*api.TokenResponse, error)
	Register(ctx context.Context, username, passwordDigest string) (*api.TokenResponse, error)
	SetToken(token string)
	ClearToken()
}

// Gateway runs the auth flows. Not safe for concurrent logins; the UI
// serializes auth actions behind a single prompt.
type Gateway struct {
	sess    *session.Session
	store   *creds.Store
	backend Backend

	// SECURITY: local throttle on credential attempts, 1 per 2s
	// sustained with a small burst.
	limiter *rate.Limiter

	onLogin  func()
	onLogout func()
}

// NewGateway creates a gateway around the given session, store, and client.
func NewGateway(sess *session.Session, store *creds.Store, backend Backend) *Gateway {
	return &Gateway{
		sess:    sess,
		store:   store,
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(0.5), 5),
	}
}

// OnLogin sets the callback fired after a successful login or register.
func (g *Gateway) OnLogin(fn func()) {
	g.onLogin = fn
}

// OnLogout sets the callback fired after logout, including forced expiry.
func (g *Gateway) OnLogout(fn func()) {
	g.onLogout = fn
}

// =============================================================================
// FLOWS
// =============================================================================

// Login exchanges credentials for a token and installs the identity in
// the session, store, and client. On failure the session is untouched.
func (g *Gateway) Login(ctx context.Context, identifier, secret string) error {
	if err := validateCredentials(identifier, secret); err != nil {
		return err
	}
	if !g.limiter.Allow() {
		return ErrThrottled
	}

	digest := api.PasswordDigest(identifier, secret)
	resp, err := g.backend.Token(ctx, identifier, digest)
	if err != nil {
		return err
	}

	g.install(resp)
	return nil
}

// Register creates an account and signs in with the returned token.
// Local checks run first; a mismatch never reaches the server.
func (g *Gateway) Register(ctx context.Context, identifier, secret, confirm string) error {
	if err := validateCredentials(identifier, secret); err != nil {
		return err
	}
	if secret != confirm {
		return &ValidationError{Field: "password", Reason: "passwords do not match"}
	}
	if !g.limiter.Allow() {
		return ErrThrottled
	}

	digest := api.PasswordDigest(identifier, secret)
	resp, err := g.backend.Register(ctx, identifier, digest)
	if err != nil {
		return err
	}

	g.install(resp)
	return nil
}

// Logout signs the user out. Any in-flight stream dies with the session.
// Store failures are logged, not returned; the in-memory sign-out always
// happens.
func (g *Gateway) Logout() {
	g.sess.ClearAuth()
	g.backend.ClearToken()
	if err := g.store.ClearAuth(); err != nil {
		log.Printf("auth: failed to clear stored credentials: %v", err)
	}
	if g.onLogout != nil {
		g.onLogout()
	}
}

// Expire is the forced-logout path taken when the server rejects the
// token. Identical to Logout; the caller surfaces the expiry notice.
func (g *Gateway) Expire() {
	g.Logout()
}

// Resume installs a previously stored identity without a network call.
// Returns false when no token is stored.
func (g *Gateway) Resume() (bool, error) {
	token, err := g.store.AuthToken()
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}
	name, err := g.store.DisplayName()
	if err != nil {
		return false, err
	}

	g.sess.SetAuth(token, name)
	g.backend.SetToken(token)
	return true, nil
}

// install records a fresh identity everywhere it lives.
func (g *Gateway) install(resp *api.TokenResponse) {
	g.sess.SetAuth(resp.AccessToken, resp.Username)
	g.backend.SetToken(resp.AccessToken)

	if err := g.store.SetAuthToken(resp.AccessToken); err != nil {
		log.Printf("auth: failed to persist token: %v", err)
	}
	if err := g.store.SetDisplayName(resp.Username); err != nil {
		log.Printf("auth: failed to persist display name: %v", err)
	}

	if g.onLogin != nil {
		g.onLogin()
	}
}

// validateCredentials runs the local checks shared by login and register.
func validateCredentials(identifier, secret string) error {
	if strings.TrimSpace(identifier) == "" {
		return &ValidationError{Field: "username", Reason: "cannot be empty"}
	}
	if secret == "" {
		return &ValidationError{Field: "password", Reason: "cannot be empty"}
	}
	return nil
}
