// Package fieldcrypt encrypts individual column values at rest.
//
// A token is base64url(magic || version || nonce || ciphertext || tag). The
// magic and version bytes are authenticated as associated data, so a token can
// be recognised without decrypting it and cannot be re-labelled.
package fieldcrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"grc-core/internal/domain"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	magic0  byte = 0x9e
	magic1  byte = 0xc7
	version byte = 0x01

	headerSize = 3
	nonceSize  = chacha20poly1305.NonceSizeX
	tagSize    = chacha20poly1305.Overhead

	// Overhead is the number of raw bytes a token adds to its plaintext.
	Overhead = headerSize + nonceSize + tagSize
)

var (
	enc = base64.RawURLEncoding

	// tokenPrefix is the encoding of magic || version. Three bytes map to
	// exactly four characters so every token starts with it.
	tokenPrefix = enc.EncodeToString([]byte{magic0, magic1, version})

	minTokenLen = enc.EncodedLen(Overhead)
)

// Cipher encrypts with the current key and decrypts with the current key or
// any previous one.
type Cipher struct {
	current  cipher.AEAD
	previous []cipher.AEAD
}

func NewCipher(key []byte, previous ...[]byte) (*Cipher, error) {
	cur, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("current key: %w", domain.ErrKeyUnavailable)
	}
	c := &Cipher{current: cur}
	for i, k := range previous {
		a, err := chacha20poly1305.NewX(k)
		if err != nil {
			return nil, fmt.Errorf("previous key %d: %w", i, domain.ErrKeyUnavailable)
		}
		c.previous = append(c.previous, a)
	}
	return c, nil
}

// Encrypt returns "" for "" and a fresh token otherwise.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	out := make([]byte, headerSize+nonceSize, headerSize+nonceSize+len(plaintext)+tagSize)
	out[0], out[1], out[2] = magic0, magic1, version

	nonce := out[headerSize:]
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	out = c.current.Seal(out, nonce, []byte(plaintext), out[:headerSize])
	return enc.EncodeToString(out), nil
}

// Decrypt fails with domain.ErrDecrypt on malformed input, unknown version or
// authentication failure.
func (c *Cipher) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := parseToken(token)
	if err != nil {
		return "", err
	}

	header := raw[:headerSize]
	nonce := raw[headerSize : headerSize+nonceSize]
	body := raw[headerSize+nonceSize:]

	if pt, err := c.current.Open(nil, nonce, body, header); err == nil {
		return string(pt), nil
	}
	for _, prev := range c.previous {
		if pt, err := prev.Open(nil, nonce, body, header); err == nil {
			return string(pt), nil
		}
	}
	return "", fmt.Errorf("authentication failed: %w", domain.ErrDecrypt)
}

// IsEncrypted inspects framing only and never decrypts.
func IsEncrypted(value string) bool {
	_, err := parseToken(value)
	return err == nil
}

// LooksLikeToken reports whether value carries the token prefix. Values that
// do but fail IsEncrypted are damaged tokens, not plaintext.
func LooksLikeToken(value string) bool {
	return strings.HasPrefix(value, tokenPrefix)
}

func (c *Cipher) IsEncrypted(value string) bool { return IsEncrypted(value) }

// EncryptIfNeeded leaves existing tokens untouched.
func (c *Cipher) EncryptIfNeeded(value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}
	return c.Encrypt(value)
}

// DecryptIfNeeded returns value unchanged unless it is a token.
func (c *Cipher) DecryptIfNeeded(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	return c.Decrypt(value)
}

func parseToken(token string) ([]byte, error) {
	if len(token) < minTokenLen || !strings.HasPrefix(token, tokenPrefix) {
		return nil, fmt.Errorf("not a token: %w", domain.ErrDecrypt)
	}
	for i := 0; i < len(token); i++ {
		if !isURLAlphabet(token[i]) {
			return nil, fmt.Errorf("invalid token alphabet: %w", domain.ErrDecrypt)
		}
	}
	raw, err := enc.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token encoding: %w", domain.ErrDecrypt)
	}
	if len(raw) < Overhead || raw[0] != magic0 || raw[1] != magic1 {
		return nil, fmt.Errorf("invalid token framing: %w", domain.ErrDecrypt)
	}
	if raw[2] != version {
		return nil, fmt.Errorf("unknown token version %d: %w", raw[2], domain.ErrDecrypt)
	}
	return raw, nil
}

func isURLAlphabet(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '-' || b == '_'
}
