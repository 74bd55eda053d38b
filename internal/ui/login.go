// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/pni-chat/pni-tui/internal/auth"
)

// =============================================================================
// LOGIN GATE
// =============================================================================

// LoginGate runs the mandatory sign-in prompt before any app surface
// appears. It loops until a login or registration succeeds, or the user
// gives up.
type LoginGate struct {
	gateway *auth.Gateway
	in      *bufio.Reader
}

// NewLoginGate creates the gate around an auth gateway.
func NewLoginGate(gateway *auth.Gateway) *LoginGate {
	return &LoginGate{
		gateway: gateway,
		in:      bufio.NewReader(os.Stdin),
	}
}

// Run prompts until authenticated. Returns an error only when input is
// no longer available.
func (g *LoginGate) Run(ctx context.Context) error {
	fmt.Println("Sign in to PNI chat. Type 'register' to create an account, 'quit' to leave.")

	for {
		fmt.Print("username: ")
		identifier, err := g.readLine()
		if err != nil {
			return err
		}

		switch strings.ToLower(identifier) {
		case "quit", "q", "exit":
			return errors.New("sign-in aborted")
		case "register":
			if g.register(ctx) {
				return nil
			}
			continue
		case "":
			continue
		}

		secret, err := g.readPassword("password: ")
		if err != nil {
			return err
		}

		if err := g.gateway.Login(ctx, identifier, secret); err != nil {
			fmt.Println(loginErrorText(err))
			continue
		}
		return nil
	}
}

// register runs the account-creation prompts; reports success.
func (g *LoginGate) register(ctx context.Context) bool {
	fmt.Print("new username: ")
	identifier, err := g.readLine()
	if err != nil {
		return false
	}

	secret, err := g.readPassword("password: ")
	if err != nil {
		return false
	}
	confirm, err := g.readPassword("repeat password: ")
	if err != nil {
		return false
	}

	if err := g.gateway.Register(ctx, identifier, secret, confirm); err != nil {
		fmt.Println(loginErrorText(err))
		return false
	}
	return true
}

func (g *LoginGate) readLine() (string, error) {
	line, err := g.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo when stdin is a terminal, falling
// back to a plain read otherwise (tests, pipes).
func (g *LoginGate) readPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return g.readLine()
}

// loginErrorText maps auth failures to a short user-facing line.
func loginErrorText(err error) string {
	var vErr *auth.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	if errors.Is(err, auth.ErrThrottled) {
		return "too many attempts, wait a moment"
	}
	return "sign-in failed: " + err.Error()
}
