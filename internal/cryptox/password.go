// Package cryptox implements password hashing for the credential store.
//
// Hashes are argon2id encoded in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
//
// with salt and key in unpadded standard base64. The parameters travel with
// the hash, so they can be raised later without invalidating stored
// credentials.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/wadai/internal/common"
	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned for stored hashes that do not parse.
var ErrInvalidHash = errors.New("invalid password hash")

// Params are the argon2id cost parameters.
type Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultParams matches the cost used for key derivation elsewhere in the
// project: 64 MiB, one pass, four lanes.
var DefaultParams = Params{Memory: 64 * 1024, Time: 1, Threads: 4, SaltLen: 16, KeyLen: 32}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher struct {
	params Params
	dummy  string
}

func NewPasswordHasher(p Params) *PasswordHasher {
	h := &PasswordHasher{params: p}
	// a well-formed hash with the current parameters for DummyVerify
	h.dummy, _, _ = h.Hash([]byte("wadai-dummy-password"))
	return h
}

func deriveKey(password, salt []byte, p Params) []byte {
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// Hash returns the PHC encoded hash and the base64 salt embedded in it.
func (h *PasswordHasher) Hash(password []byte) (encoded string, salt string, err error) {
	rawSalt := common.GenerateRandByteArray(int(h.params.SaltLen))
	if rawSalt == nil {
		return "", "", errors.New("salt generation failed")
	}

	key := deriveKey(password, rawSalt, h.params)
	salt = base64.RawStdEncoding.EncodeToString(rawSalt)

	encoded = fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Threads,
		salt, base64.RawStdEncoding.EncodeToString(key))

	return encoded, salt, nil
}

// Verify compares password against a PHC encoded hash in constant time.
func (h *PasswordHasher) Verify(password []byte, encoded string) (bool, error) {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	other := deriveKey(password, salt, p)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

// DummyVerify spends the same work as Verify against a throwaway hash. Use it
// when the account does not exist so response timing does not reveal that.
func (h *PasswordHasher) DummyVerify(password []byte) {
	_, _ = h.Verify(password, h.dummy)
}

func decodeHash(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrInvalidHash
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrInvalidHash
	}

	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}
