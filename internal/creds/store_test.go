// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package creds

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAuthTokenRoundTrip(t *testing.T) {
	s := newTestStore(t)

	token, err := s.AuthToken()
	if err != nil {
		t.Fatalf("AuthToken() error: %v", err)
	}
	if token != "" {
		t.Errorf("fresh store token = %q, want empty", token)
	}

	if err := s.SetAuthToken("tok-123"); err != nil {
		t.Fatalf("SetAuthToken() error: %v", err)
	}
	token, err = s.AuthToken()
	if err != nil {
		t.Fatalf("AuthToken() error: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}

	// Overwrite
	if err := s.SetAuthToken("tok-456"); err != nil {
		t.Fatalf("SetAuthToken() error: %v", err)
	}
	token, _ = s.AuthToken()
	if token != "tok-456" {
		t.Errorf("token = %q, want tok-456", token)
	}
}

func TestClearAuth(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetAuthToken("tok"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDisplayName("alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSidebarCollapsed(true); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAuth(); err != nil {
		t.Fatalf("ClearAuth() error: %v", err)
	}

	token, _ := s.AuthToken()
	if token != "" {
		t.Errorf("token survived ClearAuth: %q", token)
	}
	name, _ := s.DisplayName()
	if name != "" {
		t.Errorf("display name survived ClearAuth: %q", name)
	}

	// Preferences are not auth state and must survive.
	collapsed, _ := s.SidebarCollapsed()
	if !collapsed {
		t.Error("sidebar preference lost by ClearAuth")
	}
}

func TestSidebarCollapsedDefault(t *testing.T) {
	s := newTestStore(t)

	collapsed, err := s.SidebarCollapsed()
	if err != nil {
		t.Fatalf("SidebarCollapsed() error: %v", err)
	}
	if collapsed {
		t.Error("default should be expanded")
	}

	if err := s.SetSidebarCollapsed(true); err != nil {
		t.Fatal(err)
	}
	collapsed, _ = s.SidebarCollapsed()
	if !collapsed {
		t.Error("collapsed preference not persisted")
	}
}

func TestSelectedModel(t *testing.T) {
	s := newTestStore(t)

	model, err := s.SelectedModel()
	if err != nil {
		t.Fatal(err)
	}
	if model != "" {
		t.Errorf("fresh store model = %q, want empty", model)
	}

	if err := s.SetSelectedModel("pni-large"); err != nil {
		t.Fatal(err)
	}
	model, _ = s.SelectedModel()
	if model != "pni-large" {
		t.Errorf("model = %q, want pni-large", model)
	}

	// Empty selection reverts to the server default.
	if err := s.SetSelectedModel(""); err != nil {
		t.Fatal(err)
	}
	model, _ = s.SelectedModel()
	if model != "" {
		t.Errorf("model = %q after reset, want empty", model)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetAuthToken("persisted"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	token, err := s2.AuthToken()
	if err != nil {
		t.Fatal(err)
	}
	if token != "persisted" {
		t.Errorf("token = %q after reopen, want persisted", token)
	}
}
