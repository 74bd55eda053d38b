// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the PNI chat service.
//
// The service exposes a small JSON API for auth and the chat directory,
// plus one streaming endpoint that returns the assistant reply as a raw
// chunked text body.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps non-streaming response bodies.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for all non-streaming requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests. No client
	// timeout; the stream's lifetime is controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates an authenticated call was made without a token.
	ErrNotConfigured = errors.New("auth token not configured")

	// ErrUnauthorized indicates the server rejected the token (401).
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError represents a non-success response from the service, carrying
// the status code and the server's detail message.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server error (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server error (status %d)", e.Status)
}

// Is maps 401 responses onto ErrUnauthorized so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// detailEnvelope is the server's error body: {"detail": "..."}.
type detailEnvelope struct {
	Detail string `json:"detail"`
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// TokenResponse is the envelope returned by login and register.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
}

// ChatSummary is one directory entry as the server reports it.
type ChatSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Preview string `json:"preview"`
}

// chatsResponse is the envelope for the chat directory.
type chatsResponse struct {
	Chats []ChatSummary `json:"chats"`
}

// HistoryMessage is one transcript entry as the server reports it.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// historyResponse is the envelope for a chat transcript.
type historyResponse struct {
	Messages []HistoryMessage `json:"messages"`
}

// credentialsRequest is the login/register request body.
type credentialsRequest struct {
	Username       string `json:"username"`
	PasswordDigest string `json:"password_digest"`
}

// chatIDRequest addresses a single chat.
type chatIDRequest struct {
	ChatID string `json:"chat_id"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the PNI chat service.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	streamer    *http.Client
	idleTimeout time.Duration
}

// NewClient creates a client for the service at baseURL. The token is
// set later, after login.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedHTTPClient,
		streamer:   sharedStreamingClient,
	}
}

// WithTimeout overrides the bound for non-streaming requests.
// Creates a dedicated client; the shared pooled client keeps its default.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	dedicated := *sharedHTTPClient
	dedicated.Timeout = timeout
	c.httpClient = &dedicated
	return c
}

// WithIdleTimeout sets the streaming idle watchdog: if no chunk arrives
// within the window the stream is aborted. 0 disables the watchdog.
func (c *Client) WithIdleTimeout(timeout time.Duration) *Client {
	c.idleTimeout = timeout
	return c
}

// SetToken installs the bearer token for authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() {
	c.token = ""
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// AUTH ENDPOINTS
// =============================================================================

// Token exchanges credentials for an access token.
func (c *Client) Token(ctx context.Context, username, passwordDigest string) (*TokenResponse, error) {
	var out TokenResponse
	req := credentialsRequest{Username: username, PasswordDigest: passwordDigest}
	if err := c.postJSON(ctx, "/token", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its first access token.
func (c *Client) Register(ctx context.Context, username, passwordDigest string) (*TokenResponse, error) {
	var out TokenResponse
	req := credentialsRequest{Username: username, PasswordDigest: passwordDigest}
	if err := c.postJSON(ctx, "/register", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// DIRECTORY ENDPOINTS
// =============================================================================

// ListChats fetches the chat directory, newest first.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	var out chatsResponse
	if err := c.getJSON(ctx, "/get_chats", &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// ChatHistory fetches the full transcript of a chat.
func (c *Client) ChatHistory(ctx context.Context, chatID string) ([]HistoryMessage, error) {
	var out historyResponse
	if err := c.postJSON(ctx, "/get_chat_history", chatIDRequest{ChatID: chatID}, &out, true); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// DeleteChat removes a chat on the server.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.postJSON(ctx, "/delete_chat", chatIDRequest{ChatID: chatID}, nil, true)
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c.token == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, true)
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any, authed bool) error {
	if authed && c.token == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, authed)
	return c.do(req, out)
}

func (c *Client) setHeaders(req *http.Request, authed bool) {
	req.Header.Set("Accept", "application/json")
	if authed && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newAPIError builds an APIError from the response body, extracting the
// server's detail message when the body follows the error envelope.
func newAPIError(status int, body []byte) *APIError {
	var env detailEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Detail != "" {
		return &APIError{Status: status, Detail: env.Detail}
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return &APIError{Status: status, Detail: detail}
}
