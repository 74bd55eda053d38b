// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// PASSWORD DIGEST
// =============================================================================

const (
	// digestIterations is the PBKDF2 iteration count. Must match the
	// server; changing it invalidates every stored credential.
	digestIterations = 100_000

	// digestKeySize is the derived key length in bytes.
	digestKeySize = 32
)

// PasswordDigest derives the credential sent in place of the raw
// password, using PBKDF2-SHA-256. The salt is the lowercased username,
// so the digest is stable across clients for the same account.
// SECURITY: the raw password never leaves this function.
func PasswordDigest(username, password string) string {
	salt := []byte(strings.ToLower(username))
	key := pbkdf2.Key([]byte(password), salt, digestIterations, digestKeySize, sha256.New)
	return hex.EncodeToString(key)
}
