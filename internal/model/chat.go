// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"github.com/google/uuid"

	"github.com/pni-chat/pni-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultChatName is the display name for a freshly created local draft.
	DefaultChatName = "New chat"

	// EmptyChatLabel is shown in the directory for a chat with no preview
	// and no buffered messages.
	EmptyChatLabel = "Empty chat"

	// PreviewMaxRunes is the clamp applied to directory entry labels.
	PreviewMaxRunes = 30
)

// =============================================================================
// CHAT REFERENCE
// =============================================================================

// RefKind discriminates between a local draft and a server-side chat.
type RefKind int

const (
	// RefLocal marks a chat that exists only in this client. Its messages
	// live in the Ref buffer until the server adopts the chat.
	RefLocal RefKind = iota

	// RefRemote marks a chat the server knows about. Its history is
	// fetched on demand and never buffered here.
	RefRemote
)

// ChatRef is a tagged reference to where a chat's history lives.
// A local ref carries the buffered messages; a remote ref carries nothing,
// the server is the source of truth.
type ChatRef struct {
	kind     RefKind
	messages []Message
}

// LocalRef returns a reference for a local draft with no messages yet.
func LocalRef() ChatRef {
	return ChatRef{kind: RefLocal}
}

// RemoteRef returns a reference to a server-side chat.
func RemoteRef() ChatRef {
	return ChatRef{kind: RefRemote}
}

// Kind reports whether the reference is local or remote.
func (r ChatRef) Kind() RefKind {
	return r.kind
}

// IsLocal reports whether the chat exists only on this client.
func (r ChatRef) IsLocal() bool {
	return r.kind == RefLocal
}

// Messages returns the buffered messages of a local ref. Remote refs
// always return nil. The returned slice is a copy; callers cannot mutate
// the buffer through it.
func (r ChatRef) Messages() []Message {
	if r.kind != RefLocal || len(r.messages) == 0 {
		return nil
	}
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Len returns the number of buffered messages. Remote refs report zero.
func (r ChatRef) Len() int {
	if r.kind != RefLocal {
		return 0
	}
	return len(r.messages)
}

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a single entry in the chat directory.
type Chat struct {
	// ID identifies the chat. Local drafts carry a client-generated UUID
	// until the server assigns its own id on first successful send.
	ID string

	// Name is the server-assigned chat name, empty for local drafts.
	Name string

	// Preview is the server-provided last-message preview, empty for
	// local drafts.
	Preview string

	// Ref says where the chat's history lives.
	Ref ChatRef
}

// NewLocalChat creates a fresh local draft with a client-generated id.
func NewLocalChat() *Chat {
	return &Chat{
		ID:   uuid.NewString(),
		Name: DefaultChatName,
		Ref:  LocalRef(),
	}
}

// IsLocal reports whether this chat exists only on this client.
func (c *Chat) IsLocal() bool {
	return c.Ref.IsLocal()
}

// AppendLocal buffers a message in a local draft. Appending to a remote
// chat is a no-op; the server holds its history.
func (c *Chat) AppendLocal(m Message) {
	if !c.Ref.IsLocal() {
		return
	}
	c.Ref.messages = append(c.Ref.messages, m)
}

// MarkRemote converts the chat to a server-side reference under the given
// id. Any buffered draft messages are dropped; the server history is now
// authoritative.
func (c *Chat) MarkRemote(id string) {
	c.ID = id
	c.Ref = RemoteRef()
}

// Clone returns an independent copy of the chat, including a copy of any
// buffered draft messages.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Ref = ChatRef{kind: c.Ref.kind, messages: c.Ref.Messages()}
	return &out
}

// LastLocalMessage returns the most recent buffered message of a local
// draft, or false when none exists.
func (c *Chat) LastLocalMessage() (Message, bool) {
	if !c.Ref.IsLocal() || len(c.Ref.messages) == 0 {
		return Message{}, false
	}
	return c.Ref.messages[len(c.Ref.messages)-1], true
}

// DisplayText returns the label shown for this chat in the directory.
// Preference order: server preview, then the last buffered local message,
// then the empty-chat label. The result is clamped to PreviewMaxRunes
// with a trailing ellipsis when longer.
func (c *Chat) DisplayText() string {
	text := c.Preview
	if text == "" {
		if last, ok := c.LastLocalMessage(); ok {
			text = util.FirstLine(last.Content)
		}
	}
	if text == "" {
		text = EmptyChatLabel
	}
	return util.ClampEllipsis(text, PreviewMaxRunes)
}
