// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package directory maintains the ordered list of conversation threads
// mirrored from the server, plus any local drafts the server has not
// seen yet.
package directory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pni-chat/pni-tui/internal/api"
	"github.com/pni-chat/pni-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned when a mutation is attempted while a reply
	// stream is in flight.
	ErrBusy = errors.New("a reply is streaming, try again when it finishes")

	// ErrNotFound is returned when a chat id does not resolve.
	ErrNotFound = errors.New("chat not found")
)

// =============================================================================
// DIRECTORY
// =============================================================================

// Backend is the slice of the service client the directory needs.
type Backend interface {
	ListChats(ctx context.Context) ([]api.ChatSummary, error)
	DeleteChat(ctx context.Context, chatID string) error
}

// Directory owns the chat sequence, newest first. Mutations arrive from
// worker goroutines while surfaces read concurrently, so every access
// goes through d.mu. Queries return copies; the live chats never leave
// the lock.
type Directory struct {
	backend Backend

	// busy reports whether directory mutations are currently blocked.
	busy func() bool

	// onExpire is the forced-logout path taken on a 401. It is only ever
	// invoked with d.mu released: the logout path re-enters the directory
	// to clear it.
	onExpire func()

	mu    sync.RWMutex
	chats []*model.Chat
}

// New creates an empty directory.
func New(backend Backend, busy func() bool, onExpire func()) *Directory {
	if busy == nil {
		busy = func() bool { return false }
	}
	return &Directory{
		backend:  backend,
		busy:     busy,
		onExpire: onExpire,
	}
}

// expire runs the forced-logout callback. Callers must not hold d.mu.
func (d *Directory) expire() {
	if d.onExpire != nil {
		d.onExpire()
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load fetches the authoritative list and replaces the sequence
// wholesale. On any failure the sequence is emptied, never left partial;
// a 401 additionally forces logout.
func (d *Directory) Load(ctx context.Context) error {
	summaries, err := d.backend.ListChats(ctx)
	if err != nil {
		d.mu.Lock()
		d.chats = nil
		d.mu.Unlock()
		if errors.Is(err, api.ErrUnauthorized) {
			d.expire()
		}
		return err
	}

	chats := make([]*model.Chat, 0, len(summaries))
	for _, s := range summaries {
		chats = append(chats, &model.Chat{
			ID:      s.ID,
			Name:    s.Name,
			Preview: s.Preview,
			Ref:     model.RemoteRef(),
		})
	}

	d.mu.Lock()
	d.chats = chats
	d.mu.Unlock()
	return nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateLocal inserts a fresh local draft at the front and returns its
// id.
func (d *Directory) CreateLocal() string {
	chat := model.NewLocalChat()
	d.mu.Lock()
	d.chats = append([]*model.Chat{chat}, d.chats...)
	d.mu.Unlock()
	return chat.ID
}

// Remove drops a chat from the sequence without touching the server.
// Used for abandoned local drafts.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	d.removeLocked(id)
	d.mu.Unlock()
}

func (d *Directory) removeLocked(id string) {
	for i, c := range d.chats {
		if c.ID == id {
			d.chats = append(d.chats[:i], d.chats[i+1:]...)
			return
		}
	}
}

// Delete removes a chat on the server and then locally. Rejected with
// ErrBusy while a stream is in flight. Local drafts are removed without
// a server call; the server never knew about them.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if d.busy() {
		return ErrBusy
	}

	d.mu.RLock()
	chat := d.findLocked(id)
	if chat == nil {
		d.mu.RUnlock()
		return ErrNotFound
	}
	isLocal := chat.IsLocal()
	d.mu.RUnlock()

	if !isLocal {
		if err := d.backend.DeleteChat(ctx, id); err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				d.expire()
			}
			return err
		}
	}

	d.Remove(id)
	return nil
}

// AppendLocal buffers a message in a local draft, reporting whether the
// chat exists and is local. Remote chats are untouched; the server holds
// their history.
func (d *Directory) AppendLocal(id string, msg model.Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	chat := d.findLocked(id)
	if chat == nil || !chat.IsLocal() {
		return false
	}
	chat.AppendLocal(msg)
	return true
}

// MarkRemote converts a chat to a server-side reference, dropping any
// buffered draft. No-op when the id does not resolve.
func (d *Directory) MarkRemote(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if chat := d.findLocked(id); chat != nil {
		chat.MarkRemote(id)
	}
}

// ResolveSelection resolves the target of a chat switch in one step:
// the previous selection is dropped if it was an untouched local draft,
// then the requested id is resolved, falling back to the newest chat and
// finally to a fresh draft when the directory is empty. Returns the
// resolved id, whether it is local, and a copy of any buffered messages.
func (d *Directory) ResolveSelection(prevID, id string) (string, bool, []model.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prevID != "" && prevID != id {
		if prev := d.findLocked(prevID); prev != nil && prev.IsLocal() && prev.Ref.Len() == 0 {
			d.removeLocked(prevID)
		}
	}

	chat := d.findLocked(id)
	if chat == nil && len(d.chats) > 0 {
		chat = d.chats[0]
	}
	if chat == nil {
		chat = model.NewLocalChat()
		d.chats = append([]*model.Chat{chat}, d.chats...)
	}
	return chat.ID, chat.IsLocal(), chat.Ref.Messages()
}

// Clear empties the sequence. Used on logout.
func (d *Directory) Clear() {
	d.mu.Lock()
	d.chats = nil
	d.mu.Unlock()
}

// =============================================================================
// QUERIES
// =============================================================================

func (d *Directory) findLocked(id string) *model.Chat {
	for _, c := range d.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Get returns a copy of the chat with the given id, or nil.
func (d *Directory) Get(id string) *model.Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if chat := d.findLocked(id); chat != nil {
		return chat.Clone()
	}
	return nil
}

// First returns a copy of the newest chat, or nil when the directory is
// empty.
func (d *Directory) First() *model.Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.chats) == 0 {
		return nil
	}
	return d.chats[0].Clone()
}

// Len returns the number of chats.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.chats)
}

// Chats returns a snapshot of the sequence, newest first.
func (d *Directory) Chats() []*model.Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cloneLocked(d.chats)
}

func (d *Directory) cloneLocked(chats []*model.Chat) []*model.Chat {
	out := make([]*model.Chat, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}
	return out
}

// Filter returns a snapshot of the chats whose name contains the query,
// case insensitively. A blank query returns everything. Pure view; the
// sequence is untouched.
// UNICODE: names and queries are NFC-normalized and case-folded so
// "ЧАТ" matches "чат".
func (d *Directory) Filter(query string) []*model.Chat {
	if query == "" {
		return d.Chats()
	}

	folder := cases.Fold()
	needle := folder.String(norm.NFC.String(query))

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*model.Chat
	for _, c := range d.chats {
		name := folder.String(norm.NFC.String(c.Name))
		if strings.Contains(name, needle) {
			out = append(out, c.Clone())
		}
	}
	return out
}
