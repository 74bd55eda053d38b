// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller implements the streaming session state machine: it
// owns the active chat, the single in-flight reply stream, and the rules
// for cancelling, finishing, or failing that stream.
package controller

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pni-chat/pni-tui/internal/api"
	"github.com/pni-chat/pni-tui/internal/directory"
	"github.com/pni-chat/pni-tui/internal/model"
	"github.com/pni-chat/pni-tui/internal/session"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned when a directory mutation is attempted while a
	// reply stream is in flight.
	ErrBusy = directory.ErrBusy

	// ErrNotAuthenticated is returned by operations that need a
	// signed-in user.
	ErrNotAuthenticated = session.ErrNotAuthenticated
)

// =============================================================================
// CONTROLLER
// =============================================================================

// Backend is the slice of the service client the controller needs.
type Backend interface {
	ChatHistory(ctx context.Context, chatID string) ([]api.HistoryMessage, error)
	SendMessageStream(ctx context.Context, opts api.SendOptions, callback api.StreamCallback) (string, error)
}

// Controller drives message exchange against the active chat. Surfaces
// call it from their event loops or worker goroutines; internal state is
// mutex-guarded and the session enforces the one-stream invariant.
type Controller struct {
	sess    *session.Session
	dir     *directory.Directory
	backend Backend

	// onExpire is the forced-logout path taken on a 401. Never invoked
	// with c.mu held: the logout path re-enters the controller via Reset.
	onExpire func()

	// mu guards sinks and attachment only; the directory and session
	// carry their own locks.
	mu         sync.Mutex
	sinks      fanout
	attachment *model.Attachment

	// selectGen serializes selection: the latest requested id wins and
	// stale completions drop their renders.
	selectGen atomic.Uint64
}

// New creates a controller. onExpire is invoked whenever the server
// rejects the token mid-operation.
func New(sess *session.Session, dir *directory.Directory, backend Backend, onExpire func()) *Controller {
	if onExpire == nil {
		onExpire = func() {}
	}
	return &Controller{
		sess:     sess,
		dir:      dir,
		backend:  backend,
		onExpire: onExpire,
	}
}

// AddSink registers a presentation surface. Register before the first
// operation; sinks are not removed.
func (c *Controller) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

func (c *Controller) fan() fanout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinks
}

// Session exposes the underlying session for surfaces that need to read
// streaming state.
func (c *Controller) Session() *session.Session {
	return c.sess
}

// Directory exposes the chat sequence for surfaces rendering the sidebar.
func (c *Controller) Directory() *directory.Directory {
	return c.dir
}

// =============================================================================
// ATTACHMENT
// =============================================================================

// Attach queues a file for the next send, replacing any pending one.
func (c *Controller) Attach(att model.Attachment) {
	c.mu.Lock()
	c.attachment = &att
	c.mu.Unlock()
}

// ClearAttachment drops the pending attachment.
func (c *Controller) ClearAttachment() {
	c.mu.Lock()
	c.attachment = nil
	c.mu.Unlock()
}

// PendingAttachment returns the queued attachment, or nil.
func (c *Controller) PendingAttachment() *model.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// takeAttachment consumes the pending attachment.
func (c *Controller) takeAttachment() *model.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	att := c.attachment
	c.attachment = nil
	return att
}

// =============================================================================
// SEND
// =============================================================================

// Send posts a message to the active chat and streams the reply. Blocks
// until the stream finishes; surfaces run it in a worker goroutine.
// A second send while streaming is rejected silently, never queued.
func (c *Controller) Send(ctx context.Context, text string) error {
	if text == "" && c.PendingAttachment() == nil {
		return nil
	}
	if !c.sess.Authenticated() {
		return ErrNotAuthenticated
	}
	chatID := c.sess.ActiveChat()
	if chatID == "" {
		return directory.ErrNotFound
	}

	// A chat switch after this point owns the transcript; this send's
	// renders are dropped once sendGen goes stale.
	sendGen := c.selectGen.Load()

	streamCtx, cancel := context.WithCancel(ctx)
	gen, err := c.sess.BeginStream(cancel)
	if err != nil {
		cancel()
		log.Printf("controller: send rejected, %v", err)
		return nil
	}

	fan := c.fan()
	defer func() {
		c.sess.EndStream(gen)
		fan.StreamingChanged(false)
	}()

	att := c.takeAttachment()
	display := model.ComposeDisplay(text, att)
	userMsg := model.NewUserMessage(display)

	// Optimistic render before the request leaves.
	fan.AppendMessage(userMsg)

	// Buffered so a reselect before server confirmation still shows it.
	wasLocal := c.dir.AppendLocal(chatID, userMsg)

	fan.StreamingChanged(true)

	opts := api.SendOptions{Message: text, ChatID: chatID}
	if att != nil {
		opts.FileName = att.FileName
		opts.File = bytes.NewReader(att.Data)
	}

	var buffer strings.Builder
	_, streamErr := c.backend.SendMessageStream(streamCtx, opts, func(chunk string) {
		buffer.WriteString(chunk)
		if c.stale(sendGen) {
			return
		}
		// The whole accumulated buffer every time; re-rendering must be
		// idempotent per increment.
		fan.StreamUpdate(buffer.String())
	})

	switch {
	case streamErr == nil:
		c.finishSend(ctx, fan, chatID, wasLocal, sendGen)

	case errors.Is(streamErr, context.Canceled):
		// Deliberate abort: drop the partial reply, keep the user
		// message, leave a local chat local.
		if !c.stale(sendGen) {
			fan.StreamRemove()
		}

	case errors.Is(streamErr, api.ErrUnauthorized):
		if !c.stale(sendGen) {
			fan.StreamRemove()
		}
		c.expire(fan)

	default:
		if !c.stale(sendGen) {
			fan.StreamFailed(buffer.String(), streamErr.Error())
		}
	}

	return nil
}

// finishSend runs the completion steps: conversion of a local draft,
// directory refresh, and selection restore.
func (c *Controller) finishSend(ctx context.Context, fan fanout, chatID string, wasLocal bool, sendGen uint64) {
	if wasLocal {
		// The server has adopted the chat under the same id; its
		// buffered draft is no longer the source of truth.
		c.dir.MarkRemote(chatID)
	}

	if err := c.dir.Load(ctx); err != nil {
		log.Printf("controller: directory refresh failed: %v", err)
		return
	}

	fan.DirectoryChanged()
	if c.stale(sendGen) {
		// A newer selection owns the highlight.
		return
	}
	// Reload clears all selection markers; restore the active one.
	fan.SelectionChanged(chatID)
}

// Cancel aborts the in-flight stream, if any.
func (c *Controller) Cancel() {
	c.sess.CancelStream()
}

// =============================================================================
// SELECT
// =============================================================================

// Select makes a chat active. An in-flight stream is aborted
// unconditionally; the user's switch always wins over a generation in
// progress. Concurrent selects serialize on "latest requested id wins":
// a stale select drops its renders.
func (c *Controller) Select(ctx context.Context, id string) error {
	if !c.sess.Authenticated() {
		return ErrNotAuthenticated
	}

	gen := c.selectGen.Add(1)

	c.sess.CancelStream()

	fan := c.fan()

	// Abandoned empty drafts are not persisted or shown; a vanished id
	// falls back to the first entry, or a fresh draft when the directory
	// is empty.
	chatID, isLocal, buffered := c.dir.ResolveSelection(c.sess.ActiveChat(), id)

	c.ClearAttachment()

	if c.stale(gen) {
		return nil
	}
	c.sess.SetActiveChat(chatID)

	fan.ClearTranscript()
	fan.DirectoryChanged()
	fan.SelectionChanged(chatID)

	if isLocal {
		// Local drafts render from the buffer; the server knows nothing.
		for _, msg := range buffered {
			fan.AppendMessage(msg)
		}
		return nil
	}

	history, err := c.backend.ChatHistory(ctx, chatID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.expire(fan)
			return err
		}
		if !c.stale(gen) {
			fan.AppendMessage(model.NewAssistantMessage("Failed to load chat history: " + err.Error()))
		}
		return err
	}

	if c.stale(gen) {
		return nil
	}
	for _, m := range history {
		fan.AppendMessage(model.Message{
			Role:      model.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return nil
}

// stale reports whether a newer select has been requested since gen.
func (c *Controller) stale(gen uint64) bool {
	return c.selectGen.Load() != gen
}

// expire runs the forced-logout path for a rejected token and tells the
// user why their state just vanished.
func (c *Controller) expire(fan fanout) {
	fan.Notice("Session expired, please sign in again.")
	c.onExpire()
}

// Transcript returns the messages of a chat: the buffered draft for a
// local chat, the server history otherwise. Used for export.
func (c *Controller) Transcript(ctx context.Context, chatID string) ([]model.Message, error) {
	chat := c.dir.Get(chatID)
	if chat == nil {
		return nil, directory.ErrNotFound
	}
	if chat.IsLocal() {
		return chat.Ref.Messages(), nil
	}

	history, err := c.backend.ChatHistory(ctx, chatID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			c.expire(c.fan())
		}
		return nil, err
	}
	out := make([]model.Message, 0, len(history))
	for _, m := range history {
		out = append(out, model.Message{
			Role:      model.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// =============================================================================
// DIRECTORY OPERATIONS
// =============================================================================

// Load refreshes the directory from the server.
func (c *Controller) Load(ctx context.Context) error {
	err := c.dir.Load(ctx)
	c.fan().DirectoryChanged()
	return err
}

// CreateChat inserts a fresh local draft and selects it. Rejected while
// streaming; creating mid-stream would tear the transcript out from
// under the reply.
func (c *Controller) CreateChat(ctx context.Context) error {
	if !c.sess.Authenticated() {
		return ErrNotAuthenticated
	}
	if c.sess.Streaming() {
		return ErrBusy
	}

	return c.Select(ctx, c.dir.CreateLocal())
}

// Delete removes a chat. Rejected with ErrBusy while streaming. When the
// deleted chat was active, selection falls back to the first remaining
// entry, or a fresh draft when none remain.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if c.sess.Streaming() {
		return ErrBusy
	}

	wasActive := c.sess.ActiveChat() == id

	if err := c.dir.Delete(ctx, id); err != nil {
		return err
	}

	fan := c.fan()
	fan.DirectoryChanged()

	if wasActive {
		// The id no longer resolves; Select falls back per policy.
		return c.Select(ctx, id)
	}
	return nil
}

// Reset clears everything tied to the signed-in user. Wired to logout.
func (c *Controller) Reset() {
	c.sess.CancelStream()
	c.dir.Clear()
	c.ClearAttachment()

	fan := c.fan()
	fan.ClearTranscript()
	fan.DirectoryChanged()
	fan.SelectionChanged("")
}
