// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the presentation surfaces: the full-screen
// terminal UI, the plain line mode, and the login gate. Every surface
// implements controller.Sink.
package ui

import (
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// Renderer renders assistant markdown for terminal display. The whole
// accumulated reply is re-rendered on every streaming update, so Render
// must be idempotent for a given input. User text is never run through
// it.
type Renderer struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
	wrap     int
	theme    string
}

// NewRenderer creates a renderer for the given theme ("auto", "dark",
// "light") and word-wrap width (0 picks a default).
func NewRenderer(theme string, wrap int) *Renderer {
	if wrap <= 0 {
		wrap = 80
	}
	r := &Renderer{wrap: wrap, theme: theme}
	r.renderer = newTermRenderer(theme, wrap)
	return r
}

func newTermRenderer(theme string, wrap int) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	switch theme {
	case "dark":
		style = glamour.WithStandardStyle("dark")
	case "light":
		style = glamour.WithStandardStyle("light")
	}

	tr, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		// Render falls back to the raw text.
		return nil
	}
	return tr
}

// Resize rebuilds the renderer for a new wrap width.
func (r *Renderer) Resize(wrap int) {
	if wrap <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if wrap == r.wrap {
		return
	}
	r.wrap = wrap
	r.renderer = newTermRenderer(r.theme, wrap)
}

// Render converts markdown to styled terminal text. Returns the input
// unchanged when rendering is unavailable or fails.
func (r *Renderer) Render(content string) string {
	r.mu.Lock()
	tr := r.renderer
	r.mu.Unlock()

	if tr == nil {
		return content
	}
	rendered, err := tr.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
