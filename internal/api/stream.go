// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// STREAMING: the reply arrives as a raw chunked text body, not SSE.
// Concatenating the chunks in order yields the full reply.

// =============================================================================
// STREAMING TYPES
// =============================================================================

// readChunkSize is the buffer size for a single body read.
const readChunkSize = 4 * 1024

// StreamCallback is called once per received chunk, in order, from the
// goroutine running the stream.
type StreamCallback func(chunk string)

// SendOptions carries the parts of a send_message_stream request.
type SendOptions struct {
	Message  string
	ChatID   string
	FileName string    // empty when no attachment
	File     io.Reader // nil when no attachment
}

// StreamError represents a failure during streaming, preserving the
// content received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STREAMING SEND
// =============================================================================

// SendMessageStream posts a message and streams the assistant reply.
// The callback receives each chunk as it arrives; the full reply is
// returned on success. Cancelling ctx aborts the stream; the error then
// unwraps to context.Canceled. Other failures return a *StreamError
// carrying the partial content.
func (c *Client) SendMessageStream(ctx context.Context, opts SendOptions, callback StreamCallback) (string, error) {
	if c.token == "" {
		return "", ErrNotConfigured
	}

	body, contentType, err := buildMultipart(opts)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send_message_stream", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.streamer.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &StreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return "", newAPIError(resp.StatusCode, raw)
	}

	return c.readStream(ctx, resp.Body, callback)
}

// readStream pulls chunks off the body until EOF, cancellation, or the
// idle watchdog fires.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, callback StreamCallback) (string, error) {
	var full strings.Builder
	buf := make([]byte, readChunkSize)

	var idle *time.Timer
	if c.idleTimeout > 0 {
		// The watchdog closes the body, which unblocks the Read below
		// with an error. Reset on every chunk.
		idle = time.AfterFunc(c.idleTimeout, func() { body.Close() })
		defer idle.Stop()
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if idle != nil {
				idle.Reset(c.idleTimeout)
			}
			chunk := string(buf[:n])
			full.WriteString(chunk)
			if callback != nil {
				callback(chunk)
			}
		}
		if err != nil {
			if err == io.EOF {
				return full.String(), nil
			}
			if ctx.Err() != nil {
				return full.String(), ctx.Err()
			}
			if idle != nil && !idle.Stop() {
				// Watchdog already fired; report a timeout, not the
				// closed-body read error it caused.
				return full.String(), &StreamError{
					Partial: full.String(),
					Err:     fmt.Errorf("no data received for %s", c.idleTimeout),
				}
			}
			return full.String(), &StreamError{Partial: full.String(), Err: err}
		}
	}
}

// buildMultipart assembles the multipart form for a send request.
// Field names match the service contract: message, chat_id, file.
func buildMultipart(opts SendOptions) (io.Reader, string, error) {
	var buf strings.Builder
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("message", opts.Message); err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	if err := w.WriteField("chat_id", opts.ChatID); err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	if opts.File != nil {
		part, err := w.CreateFormFile("file", opts.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to build form: %w", err)
		}
		if _, err := io.Copy(part, opts.File); err != nil {
			return nil, "", fmt.Errorf("failed to read attachment: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}

	return strings.NewReader(buf.String()), w.FormDataContentType(), nil
}
