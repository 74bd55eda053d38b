// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders a chat transcript to a file for saving or
// sharing. Markdown and JSON formats are supported.
package export

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pni-chat/pni-tui/internal/model"
	"github.com/pni-chat/pni-tui/internal/util"
)

// =============================================================================
// EXPORTER INTERFACE
// =============================================================================

// Exporter converts a transcript to a target format.
type Exporter interface {
	// Export renders the transcript and returns the content.
	Export(chat *model.Chat, messages []model.Message) ([]byte, error)

	// FileExtension returns the appropriate file extension.
	FileExtension() string
}

// =============================================================================
// MARKDOWN
// =============================================================================

// MarkdownExporter renders a transcript as a Markdown document.
type MarkdownExporter struct {
	// IncludeTimestamps adds a per-message timestamp line.
	IncludeTimestamps bool
}

// Export converts the transcript to Markdown.
func (e *MarkdownExporter) Export(chat *model.Chat, messages []model.Message) ([]byte, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat is nil")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("transcript has no messages")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", chat.Name))
	sb.WriteString(fmt.Sprintf("Exported %s\n\n---\n\n", time.Now().Format("2006-01-02 15:04")))

	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("## %s\n\n", msg.Role.DisplayName()))
		if e.IncludeTimestamps && !msg.Timestamp.IsZero() {
			sb.WriteString(fmt.Sprintf("_%s_\n\n", msg.Timestamp.Format(time.RFC3339)))
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}

	return []byte(sb.String()), nil
}

// FileExtension returns ".md".
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// JSON
// =============================================================================

// JSONExporter renders the complete transcript as indented JSON.
type JSONExporter struct{}

// jsonDocument is the exported JSON shape.
type jsonDocument struct {
	ChatID   string          `json:"chat_id"`
	Name     string          `json:"name"`
	Exported time.Time       `json:"exported"`
	Messages []model.Message `json:"messages"`
}

// Export converts the transcript to JSON.
func (e *JSONExporter) Export(chat *model.Chat, messages []model.Message) ([]byte, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat is nil")
	}
	doc := jsonDocument{
		ChatID:   chat.ID,
		Name:     chat.Name,
		Exported: time.Now(),
		Messages: messages,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns ".json".
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// WriteFile renders the transcript and writes it atomically under dir,
// returning the path. The filename derives from the chat name.
func WriteFile(exp Exporter, dir string, chat *model.Chat, messages []model.Message) (string, error) {
	content, err := exp.Export(chat, messages)
	if err != nil {
		return "", err
	}

	name := sanitizeFilename(chat.Name)
	if name == "" {
		name = "chat"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, time.Now().Format("20060102-150405"), exp.FileExtension()))

	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// sanitizeFilename keeps a conservative character set for portability.
func sanitizeFilename(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteByte('-')
		}
	}
	return strings.Trim(sb.String(), "-")
}
