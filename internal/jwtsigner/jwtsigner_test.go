package jwtsigner

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = bytes.Repeat([]byte("k"), 32)

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short"), "grc-core"); !errors.Is(err, ErrShortKey) {
		t.Fatalf("expected ErrShortKey, got %v", err)
	}
}

func TestSignParseRoundTrip(t *testing.T) {
	s, err := New(testKey, "grc-core")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	in := s.Registered("jti-1", now, time.Minute)
	tok, err := s.Sign(in)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	var out jwt.RegisteredClaims
	if err := s.Parse(tok, &out); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.ID != "jti-1" || out.Issuer != "grc-core" {
		t.Fatalf("unexpected claims %+v", out)
	}
}

func TestParseRejects(t *testing.T) {
	s, _ := New(testKey, "grc-core")
	other, _ := New(bytes.Repeat([]byte("x"), 32), "grc-core")
	wrongIss, _ := New(testKey, "someone-else")
	now := time.Now()

	expired, _ := s.Sign(s.Registered("a", now.Add(-2*time.Hour), time.Hour))
	foreign, _ := other.Sign(other.Registered("b", now, time.Hour))
	issuer, _ := wrongIss.Sign(wrongIss.Registered("c", now, time.Hour))
	noExp, _ := s.Sign(jwt.RegisteredClaims{Issuer: "grc-core", IssuedAt: jwt.NewNumericDate(now)})
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, s.Registered("d", now, time.Hour)).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"expired":   expired,
		"wrong key": foreign,
		"issuer":    issuer,
		"no exp":    noExp,
		"alg none":  none,
		"garbage":   "not.a.token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			var c jwt.RegisteredClaims
			if err := s.Parse(tok, &c); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
