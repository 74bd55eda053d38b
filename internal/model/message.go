// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, messages, and
// attachments exchanged with the PNI service.
package model

import (
	"time"

	"github.com/pni-chat/pni-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "PNI"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a chat. Messages are immutable
// once created; streaming accumulation happens in the controller, not here.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// Preview returns a single-line preview of the message content,
// clamped to max runes.
func (m Message) Preview(max int) string {
	return util.TruncateRunes(util.FirstLine(m.Content), max)
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is a file queued for the next outbound message.
// At most one attachment is pending at any time; the controller clears it
// after a send consumes it or when the active chat changes.
type Attachment struct {
	FileName string
	Data     []byte
}

// Marker returns the display marker appended to an outbound message that
// carries this attachment.
func (a Attachment) Marker() string {
	return "(Attached file: " + a.FileName + ")"
}

// ComposeDisplay builds the transcript text for an outbound message,
// appending the attachment marker when one is present.
func ComposeDisplay(text string, att *Attachment) string {
	if att == nil {
		return text
	}
	if text == "" {
		return att.Marker()
	}
	return text + "\n\n" + att.Marker()
}
