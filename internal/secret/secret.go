// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of pulseone-core.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package secret resolves the two secret-reference forms the collector
// accepts in config strings: "${SECRET:key}" (looked up from a backing
// store) and "ENC:<base64>" (decrypted in place with the master key).
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/smart-guard/pulseone-core/pkg/log"
)

var secretRefPattern = regexp.MustCompile(`\$\{SECRET:([A-Za-z0-9_.\-/]+)\}`)

const encPrefix = "ENC:"

// Manager resolves secret references against an in-memory key/value
// store (typically loaded from an env file or a mounted secrets volume)
// and decrypts ENC:<base64> blobs with a derived AES-GCM key.
type Manager struct {
	mu     sync.RWMutex
	values map[string]string
	aead   cipher.AEAD
}

// New derives the AEAD key from masterKey via HKDF-SHA256 and returns a
// Manager seeded with values. A nil/empty masterKey is valid: ENC:...
// values simply fail to decrypt until one is supplied (deployments that
// never use ENC: secrets don't need one).
func New(masterKey []byte, values map[string]string) (*Manager, error) {
	m := &Manager{values: map[string]string{}}
	for k, v := range values {
		m.values[k] = v
	}

	if len(masterKey) == 0 {
		return m, nil
	}

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte("pulseone-core/secret-manager"))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("secret: key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("secret: aes cipher init failed: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: gcm init failed: %w", err)
	}
	m.aead = aead
	return m, nil
}

// Set stores or overwrites a single key in the backing value map, used by
// callers loading secrets from a file watched for hot reload.
func (m *Manager) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Resolve decrypts s if it is an "ENC:..." blob and returns that result
// without expanding anything in it; otherwise it expands every
// "${SECRET:key}" reference in s against the backing store. An
// unresolvable SECRET reference is left untouched in the output and
// logged (masked), the other references are still expanded, and the
// returned error names the unresolved key.
func (m *Manager) Resolve(s string) (string, error) {
	if strings.HasPrefix(s, encPrefix) {
		return m.decrypt(strings.TrimPrefix(s, encPrefix))
	}

	var resolveErr error
	out := secretRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := secretRefPattern.FindStringSubmatch(match)[1]
		m.mu.RLock()
		val, ok := m.values[key]
		m.mu.RUnlock()
		if !ok {
			log.Warnf("secret: no value for reference %q", Mask(match))
			resolveErr = fmt.Errorf("secret: unresolved reference %q", key)
			return match
		}
		return val
	})
	return out, resolveErr
}

func (m *Manager) decrypt(b64 string) (string, error) {
	if m.aead == nil {
		return "", errors.New("secret: no master key configured, cannot decrypt ENC: value")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("secret: invalid base64: %w", err)
	}
	nonceLen := m.aead.NonceSize()
	if len(raw) < nonceLen {
		return "", errors.New("secret: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceLen], raw[nonceLen:]
	plain, err := m.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secret: decryption failed: %w", err)
	}
	return string(plain), nil
}

// Encrypt produces an "ENC:<base64>" blob for plaintext, for use by
// operator tooling that writes config files; the collector itself only
// ever decrypts.
func (m *Manager) Encrypt(plaintext string) (string, error) {
	if m.aead == nil {
		return "", errors.New("secret: no master key configured, cannot encrypt")
	}
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := m.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// sensitiveKeyPattern matches config keys that must be masked in logs.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)`)

// Mask redacts s for safe inclusion in log lines: a string of 8 bytes or
// fewer becomes "****", a longer one keeps only its first 4 and last 2
// bytes around "...".
func Mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-2:]
}

// IsSensitiveKey reports whether a config key name looks like it holds a
// credential, for callers deciding whether to mask a value before
// logging it.
func IsSensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(key)
}

