package fieldcrypt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"grc-core/internal/domain"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKey(1))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return c
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, pt := range []string{"a", "alice@acme.test", "ünïcødé ✓", strings.Repeat("x", 4096)} {
		tok, err := c.Encrypt(pt)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", pt, err)
		}
		if tok == pt || tok == "" {
			t.Fatalf("Encrypt(%q) returned %q", pt, tok)
		}
		got, err := c.Decrypt(tok)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != pt {
			t.Fatalf("round trip mismatch: got %q want %q", got, pt)
		}
	}
}

func TestEncrypt_Empty(t *testing.T) {
	c := newTestCipher(t)
	tok, err := c.Encrypt("")
	if err != nil || tok != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v", tok, err)
	}
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	c := newTestCipher(t)
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	if a == b {
		t.Fatalf("expected fresh nonce per encryption")
	}
}

func TestIsEncrypted(t *testing.T) {
	c := newTestCipher(t)
	tok, _ := c.Encrypt("alice@acme.test")

	if !IsEncrypted(tok) {
		t.Fatalf("IsEncrypted(token) = false")
	}

	plain := []string{
		"alice@acme.test",
		"nscB",
		strings.Repeat("A", 80),
		tokenPrefix + strings.Repeat("A", 10),
		tok[:len(tok)-30],
		tok + "!",
	}
	for _, p := range plain {
		if IsEncrypted(p) {
			t.Fatalf("IsEncrypted(%q) = true", p)
		}
	}
}

func TestIfNeeded_Idempotent(t *testing.T) {
	c := newTestCipher(t)

	once, err := c.EncryptIfNeeded("x")
	if err != nil {
		t.Fatalf("EncryptIfNeeded: %v", err)
	}
	twice, err := c.EncryptIfNeeded(once)
	if err != nil {
		t.Fatalf("EncryptIfNeeded: %v", err)
	}
	if once != twice {
		t.Fatalf("EncryptIfNeeded not idempotent")
	}

	if v, _ := c.DecryptIfNeeded("plain"); v != "plain" {
		t.Fatalf("DecryptIfNeeded changed plaintext: %q", v)
	}
	if v, _ := c.DecryptIfNeeded(once); v != "x" {
		t.Fatalf("DecryptIfNeeded(token) = %q", v)
	}
}

func TestDecrypt_Failures(t *testing.T) {
	c := newTestCipher(t)
	tok, _ := c.Encrypt("secret value")

	tampered := []byte(tok)
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	other, _ := NewCipher(testKey(2))

	cases := map[string]func() error{
		"tampered": func() error { _, err := c.Decrypt(string(tampered)); return err },
		"garbage":  func() error { _, err := c.Decrypt("not a token"); return err },
		"wrong key": func() error {
			_, err := other.Decrypt(tok)
			return err
		},
		"unknown version": func() error {
			raw, _ := enc.DecodeString(tok)
			raw[2] = 0x7f
			_, err := c.Decrypt(enc.EncodeToString(raw))
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			if err := fn(); !errors.Is(err, domain.ErrDecrypt) {
				t.Fatalf("expected ErrDecrypt, got %v", err)
			}
		})
	}
}

func TestKeyRing_DecryptsWithPrevious(t *testing.T) {
	old, _ := NewCipher(testKey(9))
	tok, _ := old.Encrypt("legacy")

	ring, err := NewCipher(testKey(1), testKey(9))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	got, err := ring.Decrypt(tok)
	if err != nil || got != "legacy" {
		t.Fatalf("Decrypt with previous key: %q %v", got, err)
	}

	fresh, _ := ring.Encrypt("new")
	if _, err := old.Decrypt(fresh); err == nil {
		t.Fatalf("new tokens must use the current key")
	}
}

func TestNewCipher_BadKey(t *testing.T) {
	if _, err := NewCipher([]byte("short")); !errors.Is(err, domain.ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
}
