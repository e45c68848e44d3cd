// Copyright (c) 2025 the gh-dir-diff authors
// SPDX-License-Identifier: MIT

package state

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/kleewho/gh-dir-diff/internal/util"
)

// =============================================================================
// SIGNING KEY MANAGEMENT
// =============================================================================

// KeyEnvVar is the environment variable holding the state-signing
// secret. A value set here takes precedence over the key file.
const KeyEnvVar = "GHDIRDIFF_STATE_KEY"

// keyFileName is the name of the generated key file inside the data
// directory.
const keyFileName = ".state_key"

// KeySize is the size of the derived signing key in bytes.
const KeySize = 32

// pbkdf2Iterations follows the OWASP recommendation for PBKDF2-SHA-256.
// The derivation runs once at startup, so the cost is acceptable.
const pbkdf2Iterations = 600_000

// keyContext is the domain-separation salt for key derivation. Fixed
// rather than random so a configured passphrase derives the same key
// across restarts without extra storage.
var keyContext = []byte("gh-dir-diff/state-token/v1")

// DeriveKey stretches a passphrase-style secret into a signing key.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), keyContext, pbkdf2Iterations, KeySize, sha256.New)
}

// LoadKey resolves the signing key, in order of precedence:
//
//  1. KeyEnvVar, derived with PBKDF2
//  2. an existing key file in dir (must not be group/world readable)
//  3. a freshly generated key, persisted to dir for later runs
func LoadKey(dir string) ([]byte, error) {
	if secret := strings.TrimSpace(os.Getenv(KeyEnvVar)); secret != "" {
		return DeriveKey(secret), nil
	}

	path := filepath.Join(dir, keyFileName)
	if raw, err := os.ReadFile(path); err == nil {
		if err := checkKeyFilePerms(path); err != nil {
			return nil, err
		}
		key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("key file %s is not valid hex: %w", path, err)
		}
		if len(key) < KeySize {
			return nil, fmt.Errorf("key file %s holds %d bytes, need %d", path, len(key), KeySize)
		}
		return key, nil
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	encoded := []byte(hex.EncodeToString(key) + "\n")
	if err := util.AtomicWriteFile(path, encoded, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist signing key: %w", err)
	}
	return key, nil
}

// checkKeyFilePerms rejects key files readable by group or world.
// Skipped on Windows, where POSIX permission bits are not meaningful.
func checkKeyFilePerms(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %04o, want 0600", path, info.Mode().Perm())
	}
	return nil
}
