// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import "github.com/pni-chat/pni-tui/internal/model"

// =============================================================================
// RENDER SINK
// =============================================================================

// Sink is a presentation surface fed by the controller. Every registered
// sink receives every event, in order, so any number of surfaces stay in
// step without duplicated control paths.
//
// Methods are invoked from whichever goroutine runs the operation;
// implementations deliver into their own event loop.
type Sink interface {
	// AppendMessage adds a finished message to the transcript.
	AppendMessage(msg model.Message)

	// StreamUpdate replaces the in-progress assistant message with the
	// full accumulated buffer. Called once per chunk.
	StreamUpdate(buffer string)

	// StreamRemove removes the in-progress assistant message entirely.
	// No-op when none is shown.
	StreamRemove()

	// StreamFailed replaces the in-progress assistant message with the
	// partial content annotated by an error notice.
	StreamFailed(partial, notice string)

	// ClearTranscript empties the transcript view.
	ClearTranscript()

	// DirectoryChanged signals that the chat list must be re-read.
	DirectoryChanged()

	// SelectionChanged signals the active chat, "" when none.
	SelectionChanged(chatID string)

	// StreamingChanged signals entry to and exit from streaming.
	StreamingChanged(streaming bool)

	// Notice surfaces a transient user-facing message.
	Notice(text string)
}

// fanout delivers one event to every sink.
type fanout []Sink

func (f fanout) AppendMessage(msg model.Message) {
	for _, s := range f {
		s.AppendMessage(msg)
	}
}

func (f fanout) StreamUpdate(buffer string) {
	for _, s := range f {
		s.StreamUpdate(buffer)
	}
}

func (f fanout) StreamRemove() {
	for _, s := range f {
		s.StreamRemove()
	}
}

func (f fanout) StreamFailed(partial, notice string) {
	for _, s := range f {
		s.StreamFailed(partial, notice)
	}
}

func (f fanout) ClearTranscript() {
	for _, s := range f {
		s.ClearTranscript()
	}
}

func (f fanout) DirectoryChanged() {
	for _, s := range f {
		s.DirectoryChanged()
	}
}

func (f fanout) SelectionChanged(chatID string) {
	for _, s := range f {
		s.SelectionChanged(chatID)
	}
}

func (f fanout) StreamingChanged(streaming bool) {
	for _, s := range f {
		s.StreamingChanged(streaming)
	}
}

func (f fanout) Notice(text string) {
	for _, s := range f {
		s.Notice(text)
	}
}
