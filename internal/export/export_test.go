// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pni-chat/pni-tui/internal/model"
)

func testTranscript() (*model.Chat, []model.Message) {
	chat := &model.Chat{ID: "42", Name: "Trip planning", Ref: model.RemoteRef()}
	msgs := []model.Message{
		{Role: model.RoleUser, Content: "where to go?", Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{Role: model.RoleAssistant, Content: "Somewhere **warm**.", Timestamp: time.Date(2025, 6, 1, 10, 0, 5, 0, time.UTC)},
	}
	return chat, msgs
}

func TestMarkdownExport(t *testing.T) {
	chat, msgs := testTranscript()
	out, err := (&MarkdownExporter{}).Export(chat, msgs)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	s := string(out)
	if !strings.HasPrefix(s, "# Trip planning\n") {
		t.Errorf("missing title header:\n%s", s)
	}
	if !strings.Contains(s, "## You\n") || !strings.Contains(s, "## PNI\n") {
		t.Errorf("missing role headers:\n%s", s)
	}
	if !strings.Contains(s, "Somewhere **warm**.") {
		t.Error("assistant content missing")
	}
	if strings.Contains(s, "2025-06-01T") {
		t.Error("timestamps present without IncludeTimestamps")
	}
}

func TestMarkdownExportTimestamps(t *testing.T) {
	chat, msgs := testTranscript()
	out, err := (&MarkdownExporter{IncludeTimestamps: true}).Export(chat, msgs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "2025-06-01T10:00:00Z") {
		t.Error("timestamps missing despite IncludeTimestamps")
	}
}

func TestMarkdownExportEmpty(t *testing.T) {
	chat, _ := testTranscript()
	if _, err := (&MarkdownExporter{}).Export(chat, nil); err == nil {
		t.Error("expected error for empty transcript")
	}
	if _, err := (&MarkdownExporter{}).Export(nil, nil); err == nil {
		t.Error("expected error for nil chat")
	}
}

func TestJSONExportRoundTrip(t *testing.T) {
	chat, msgs := testTranscript()
	out, err := (&JSONExporter{}).Export(chat, msgs)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	var doc struct {
		ChatID   string          `json:"chat_id"`
		Name     string          `json:"name"`
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.ChatID != "42" || doc.Name != "Trip planning" {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Messages) != 2 || doc.Messages[1].Role != model.RoleAssistant {
		t.Errorf("messages = %+v", doc.Messages)
	}
}

func TestWriteFile(t *testing.T) {
	chat, msgs := testTranscript()
	dir := t.TempDir()

	path, err := WriteFile(&MarkdownExporter{}, dir, chat, msgs)
	if err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if !strings.HasPrefix(path, dir) || !strings.HasSuffix(path, ".md") {
		t.Errorf("path = %q", path)
	}
	if !strings.Contains(path, "trip-planning") {
		t.Errorf("filename not derived from chat name: %q", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "# Trip planning") {
		t.Error("written content wrong")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Trip planning", "trip-planning"},
		{"what?!//", "what"},
		{"Чат", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
