package keycrypt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testKey(t *testing.T, hexStr string) Key {
	t.Helper()
	k, err := KeyFromHex(hexStr)
	if err != nil {
		t.Fatalf("KeyFromHex failed: %v", err)
	}
	return k
}

const (
	keyHexA = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	keyHexB = "ffeeddccbbaa99887766554433221100ffeeddccbbaa99887766554433221100"
)

func TestKeyFromHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid 32-byte key", keyHexA, false},
		{"valid with surrounding whitespace", "  " + keyHexA + "\n", false},
		{"too short", "deadbeef", true},
		{"too long", keyHexA + "00", true},
		{"not hex", strings.Repeat("zz", 32), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeyFromHex(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("KeyFromHex() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t, keyHexA)

	plaintexts := [][]byte{
		[]byte("statement password"),
		[]byte(""),
		[]byte("user-42"),
		bytes.Repeat([]byte{0x00, 0xff}, 512),
	}

	for _, p := range plaintexts {
		envelope, err := Encrypt(p, key)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if got := strings.Count(envelope, envelopeSeparator); got != 2 {
			t.Errorf("expected 2 separators in envelope, got %d: %q", got, envelope)
		}

		out, err := Decrypt(envelope, key)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(out, p) {
			t.Errorf("round trip mismatch: got %q, want %q", out, p)
		}
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	key := testKey(t, keyHexA)

	a, err := Encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	b, err := Encrypt([]byte("same plaintext"), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical envelopes")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	envelope, err := Encrypt([]byte("secret"), testKey(t, keyHexA))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = Decrypt(envelope, testKey(t, keyHexB))
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity with wrong key, got %v", err)
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key := testKey(t, keyHexA)
	envelope, err := Encrypt([]byte("secret"), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip a character inside the ciphertext segment.
	parts := strings.Split(envelope, envelopeSeparator)
	ct := []byte(parts[2])
	if ct[0] == 'A' {
		ct[0] = 'B'
	} else {
		ct[0] = 'A'
	}
	parts[2] = string(ct)
	tampered := strings.Join(parts, envelopeSeparator)

	if _, err := Decrypt(tampered, key); err == nil {
		t.Error("expected error decrypting tampered envelope, got nil")
	}
}

func TestDecrypt_MalformedEnvelope(t *testing.T) {
	key := testKey(t, keyHexA)

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"one segment", "YWJj"},
		{"two segments", "YWJj:YWJj"},
		{"four segments", "YWJj:YWJj:YWJj:YWJj"},
		{"non-base64 iv", "!!!:YWJj:YWJj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.input, key)
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestNewRandomKey(t *testing.T) {
	a, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey failed: %v", err)
	}
	b, err := NewRandomKey()
	if err != nil {
		t.Fatalf("NewRandomKey failed: %v", err)
	}
	if a == b {
		t.Error("two random keys were identical")
	}
}
