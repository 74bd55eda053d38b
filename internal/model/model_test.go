// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestNewLocalChat(t *testing.T) {
	c := NewLocalChat()

	if c.ID == "" {
		t.Error("expected a generated id")
	}
	if c.Name != DefaultChatName {
		t.Errorf("Name = %q, want %q", c.Name, DefaultChatName)
	}
	if !c.IsLocal() {
		t.Error("new chat should be local")
	}
	if c.Ref.Len() != 0 {
		t.Errorf("new chat has %d buffered messages, want 0", c.Ref.Len())
	}

	c2 := NewLocalChat()
	if c.ID == c2.ID {
		t.Error("two local chats share an id")
	}
}

func TestAppendLocal(t *testing.T) {
	c := NewLocalChat()
	c.AppendLocal(NewUserMessage("hello"))
	c.AppendLocal(NewAssistantMessage("hi there"))

	if got := c.Ref.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}

	last, ok := c.LastLocalMessage()
	if !ok {
		t.Fatal("expected a last message")
	}
	if last.Role != RoleAssistant || last.Content != "hi there" {
		t.Errorf("last = %+v", last)
	}
}

func TestAppendLocalIgnoredOnRemote(t *testing.T) {
	c := NewLocalChat()
	c.MarkRemote("42")
	c.AppendLocal(NewUserMessage("should be dropped"))

	if c.Ref.Len() != 0 {
		t.Error("remote chat buffered a message")
	}
	if _, ok := c.LastLocalMessage(); ok {
		t.Error("remote chat reported a last local message")
	}
}

func TestMarkRemoteDropsBuffer(t *testing.T) {
	c := NewLocalChat()
	c.AppendLocal(NewUserMessage("draft text"))
	c.MarkRemote("server-7")

	if c.IsLocal() {
		t.Error("chat still local after MarkRemote")
	}
	if c.ID != "server-7" {
		t.Errorf("ID = %q, want server-7", c.ID)
	}
	if msgs := c.Ref.Messages(); msgs != nil {
		t.Errorf("buffered messages survived MarkRemote: %v", msgs)
	}
}

func TestRefMessagesIsCopy(t *testing.T) {
	c := NewLocalChat()
	c.AppendLocal(NewUserMessage("original"))

	msgs := c.Ref.Messages()
	msgs[0].Content = "mutated"

	last, _ := c.LastLocalMessage()
	if last.Content != "original" {
		t.Error("caller mutated the internal buffer")
	}
}

func TestDisplayText(t *testing.T) {
	long := strings.Repeat("a", 40)

	tests := []struct {
		name  string
		setup func() *Chat
		want  string
	}{
		{
			name:  "empty local draft",
			setup: NewLocalChat,
			want:  EmptyChatLabel,
		},
		{
			name: "server preview wins",
			setup: func() *Chat {
				c := NewLocalChat()
				c.Preview = "from server"
				c.AppendLocal(NewUserMessage("local draft"))
				return c
			},
			want: "from server",
		},
		{
			name: "falls back to last local message",
			setup: func() *Chat {
				c := NewLocalChat()
				c.AppendLocal(NewUserMessage("first"))
				c.AppendLocal(NewAssistantMessage("second reply"))
				return c
			},
			want: "second reply",
		},
		{
			name: "long preview clamped with ellipsis",
			setup: func() *Chat {
				c := NewLocalChat()
				c.Preview = long
				return c
			},
			want: strings.Repeat("a", 30) + "...",
		},
		{
			name: "exactly thirty runes kept whole",
			setup: func() *Chat {
				c := NewLocalChat()
				c.Preview = strings.Repeat("b", 30)
				return c
			},
			want: strings.Repeat("b", 30),
		},
		{
			name: "remote with empty preview",
			setup: func() *Chat {
				c := NewLocalChat()
				c.MarkRemote("9")
				return c
			},
			want: EmptyChatLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.setup().DisplayText(); got != tt.want {
				t.Errorf("DisplayText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoleDisplayName(t *testing.T) {
	if RoleUser.DisplayName() != "You" {
		t.Errorf("user display = %q", RoleUser.DisplayName())
	}
	if RoleAssistant.DisplayName() != "PNI" {
		t.Errorf("assistant display = %q", RoleAssistant.DisplayName())
	}
}

func TestComposeDisplay(t *testing.T) {
	att := &Attachment{FileName: "report.pdf"}

	tests := []struct {
		name string
		text string
		att  *Attachment
		want string
	}{
		{"no attachment", "hello", nil, "hello"},
		{"text plus attachment", "hello", att, "hello\n\n(Attached file: report.pdf)"},
		{"attachment only", "", att, "(Attached file: report.pdf)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeDisplay(tt.text, tt.att); got != tt.want {
				t.Errorf("ComposeDisplay() = %q, want %q", got, tt.want)
			}
		})
	}
}
