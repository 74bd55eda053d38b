// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the client's mutable runtime state: who is signed
// in, which chat is active, and whether a reply stream is in flight.
package session

import (
	"context"
	"errors"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrStreamActive is returned when a stream is started while another
	// stream is still in flight.
	ErrStreamActive = errors.New("a reply stream is already in flight")

	// ErrNotAuthenticated is returned by operations that require a
	// signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// =============================================================================
// STATE
// =============================================================================

// State describes what the session is currently doing.
type State int

const (
	// StateIdle means no reply stream is in flight.
	StateIdle State = iota
	// StateStreaming means an assistant reply is being received.
	StateStreaming
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the single source of truth for auth, active chat, and
// streaming state. All methods are safe for concurrent use.
// IMPORTANT: hold Session by pointer; the zero value is a usable
// signed-out idle session.
type Session struct {
	mu sync.Mutex

	token       string
	displayName string

	activeChatID string

	state      State
	cancelFunc context.CancelFunc
	generation uint64
}

// New creates an empty session.
func New() *Session {
	return &Session{}
}

// =============================================================================
// AUTH
// =============================================================================

// SetAuth records the signed-in identity.
func (s *Session) SetAuth(token, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.displayName = displayName
}

// ClearAuth signs the session out and aborts any in-flight stream.
// A dead token cannot produce a useful reply, so the stream goes with it.
func (s *Session) ClearAuth() {
	s.mu.Lock()
	cancel := s.takeCancelLocked()
	s.token = ""
	s.displayName = ""
	s.activeChatID = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Token returns the current auth token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// DisplayName returns the signed-in user's display name.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// =============================================================================
// ACTIVE CHAT
// =============================================================================

// SetActiveChat records which chat the user is looking at.
func (s *Session) SetActiveChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChatID = chatID
}

// ActiveChat returns the id of the chat the user is looking at, or ""
// when none is selected.
func (s *Session) ActiveChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeChatID
}

// =============================================================================
// STREAMING
// =============================================================================

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Streaming reports whether a reply stream is in flight.
func (s *Session) Streaming() bool {
	return s.State() == StateStreaming
}

// BeginStream transitions to StateStreaming and stores the cancel handle
// for the new stream. It fails with ErrStreamActive if a stream is
// already in flight; callers must finish or cancel that one first.
// The returned generation identifies this stream for EndStream.
func (s *Session) BeginStream(cancel context.CancelFunc) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStreaming {
		return 0, ErrStreamActive
	}
	s.state = StateStreaming
	s.cancelFunc = cancel
	s.generation++
	return s.generation, nil
}

// EndStream returns the session to idle and releases the cancel handle.
// The cancel function is always invoked so the stream's context cannot
// leak. Stale generations are ignored; a newer stream owns the state.
func (s *Session) EndStream(generation uint64) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	cancel := s.takeCancelLocked()
	s.state = StateIdle
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// CancelStream aborts the in-flight stream, if any. Safe to call at any
// time, from any goroutine, repeatedly. The session stays in
// StateStreaming until the stream's owner observes the cancellation and
// calls EndStream; during that window the cancel handle has already been
// consumed, so further CancelStream calls are no-ops while BeginStream
// still refuses with ErrStreamActive.
func (s *Session) CancelStream() {
	s.mu.Lock()
	cancel := s.takeCancelLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// takeCancelLocked removes and returns the cancel handle. Callers invoke
// it after unlocking so user callbacks wired to the context never run
// under the session lock.
func (s *Session) takeCancelLocked() context.CancelFunc {
	cancel := s.cancelFunc
	s.cancelFunc = nil
	return cancel
}
