package impl

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algoArgon2id = "argon2id"

var (
	ErrEmptyPassword  = errors.New("empty password")
	ErrInvalidHash    = errors.New("invalid password hash encoding")
	ErrUnsupportedAlg = errors.New("unsupported password hash algorithm")
)

type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB (e.g., 64*1024 = 64MB)
	Threads uint8  // parallelism
	KeyLen  uint32 // bytes
	SaltLen uint32 // bytes
}

// DefaultArgon2Params is the cost used for new hashes.
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024, // 64 MiB
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

// PasswordServiceImpl hashes with argon2id into PHC strings:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
type PasswordServiceImpl struct {
	cur Argon2Params
}

func NewPasswordServiceArgon2id() *PasswordServiceImpl {
	return NewArgon2Hasher(DefaultArgon2Params)
}

func NewArgon2Hasher(p Argon2Params) *PasswordServiceImpl {
	return &PasswordServiceImpl{cur: p}
}

func (p *PasswordServiceImpl) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, p.cur.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, p.cur.Time, p.cur.Memory, p.cur.Threads, p.cur.KeyLen)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algoArgon2id, argon2.Version,
		p.cur.Memory, p.cur.Time, p.cur.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify recomputes the hash with the parameters stored in encoded.
func (p *PasswordServiceImpl) Verify(password, encoded string) (bool, error) {
	params, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parsePHC(encoded string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return params, nil, nil, ErrInvalidHash
	}
	if parts[1] != algoArgon2id {
		return params, nil, nil, ErrUnsupportedAlg
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return params, nil, nil, ErrUnsupportedAlg
	}
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return params, nil, nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return params, nil, nil, ErrInvalidHash
		}
		switch k {
		case "m":
			params.Memory = uint32(n)
		case "t":
			params.Time = uint32(n)
		case "p":
			if n > 255 {
				return params, nil, nil, ErrInvalidHash
			}
			params.Threads = uint8(n)
		default:
			return params, nil, nil, ErrInvalidHash
		}
	}
	if params.Memory == 0 || params.Time == 0 || params.Threads == 0 {
		return params, nil, nil, ErrInvalidHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, ErrInvalidHash
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return params, nil, nil, ErrInvalidHash
	}
	return params, salt, hash, nil
}
