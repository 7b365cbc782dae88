// Package jwtsigner signs and verifies HS256 JWTs with a key from the key
// manager.
package jwtsigner

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLen is the shortest HMAC key accepted.
const MinKeyLen = 32

var ErrShortKey = errors.New("jwt signing key shorter than 32 bytes")

// Signer holds an HMAC key for issuing and parsing JWTs.
type Signer struct {
	key    []byte
	Issuer string
	// Leeway tolerates clock skew on exp/iat.
	Leeway time.Duration
}

func New(key []byte, iss string) (*Signer, error) {
	if len(key) < MinKeyLen {
		return nil, ErrShortKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k, Issuer: iss}, nil
}

// Sign stamps the issuer on claims and signs them.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.key)
}

// Parse verifies signature, algorithm, issuer and expiry into claims.
func (s *Signer) Parse(token string, claims jwt.Claims) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	if s.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(s.Leeway))
	}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil {
		return err
	}
	if !tok.Valid {
		return errors.New("token not valid")
	}
	return nil
}

// Registered builds the standard claims for a token valid for ttl from now.
func (s *Signer) Registered(id string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        id,
	}
}
