// Package keycrypt implements the authenticated encryption primitive used to
// protect secrets at rest (PDF passwords, tenant-identifying data, wrapped
// data-encryption keys).
//
// Envelope text format: base64(iv) ":" base64(tag) ":" base64(ciphertext).
// The IV is freshly generated per call, so encrypting the same plaintext twice
// never yields the same envelope.
package keycrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeySize is the required key length in bytes (AES-256).
	KeySize = 32

	envelopeSeparator = ":"
	envelopeSegments  = 3
)

// ErrIntegrity indicates that authentication-tag verification failed on
// decrypt: the envelope was tampered with or a different key was used.
// It is fatal to the calling operation and must never be retried with the
// same inputs.
var ErrIntegrity = errors.New("keycrypt: integrity check failed")

// ErrMalformedEnvelope indicates input that does not split into exactly
// three base64 segments.
var ErrMalformedEnvelope = errors.New("keycrypt: malformed envelope")

// Key is fixed-length symmetric key material.
type Key [KeySize]byte

// KeyFromHex parses a hex-encoded configuration secret into a Key.
// Malformed key material is a startup error, not a per-call one.
func KeyFromHex(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return k, fmt.Errorf("keycrypt: decoding hex key: %w", err)
	}
	if len(raw) != KeySize {
		return k, fmt.Errorf("keycrypt: key must be %d bytes, got %d", KeySize, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

// NewRandomKey generates a fresh random key, e.g. a tenant DEK.
func NewRandomKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return k, fmt.Errorf("keycrypt: generating key: %w", err)
	}
	return k, nil
}

// Encrypt seals plaintext under key with AES-256-GCM and returns the
// self-contained envelope text.
func Encrypt(plaintext []byte, key Key) (string, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("keycrypt: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("keycrypt: creating GCM: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("keycrypt: generating IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)

	// gcm.Seal appends the tag to the ciphertext; the envelope keeps the two
	// apart so consumers can reject truncated input before decrypting.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	enc := base64.StdEncoding
	return enc.EncodeToString(iv) + envelopeSeparator +
		enc.EncodeToString(tag) + envelopeSeparator +
		enc.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt. It returns ErrIntegrity if
// the authentication tag does not verify, and ErrMalformedEnvelope if the
// input does not have the expected three-segment shape.
func Decrypt(envelope string, key Key) ([]byte, error) {
	parts := strings.Split(envelope, envelopeSeparator)
	if len(parts) != envelopeSegments {
		return nil, ErrMalformedEnvelope
	}

	enc := base64.StdEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad IV segment", ErrMalformedEnvelope)
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad tag segment", ErrMalformedEnvelope)
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext segment", ErrMalformedEnvelope)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("keycrypt: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keycrypt: creating GCM: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, ErrMalformedEnvelope
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		// cipher.Open does not distinguish tamper causes; everything here is
		// an integrity failure, never a silent decrypt.
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
