// Package password hashes staff credentials with Argon2id and stores them in
// the PHC string format.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const MinLength = 8

type params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

var current = params{memory: 64 * 1024, time: 1, threads: 4, keyLen: 32, saltLen: 16}

var b64 = base64.RawStdEncoding

func Hash(password string) (string, error) {
	salt := make([]byte, current.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, current.time, current.memory, current.threads, current.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, current.memory, current.time, current.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether password matches encoded. Malformed hashes never match.
func Verify(password, encoded string) bool {
	p, salt, key, ok := decode(encoded)
	if !ok {
		return false
	}
	check := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, check) == 1
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// VerifyNone burns the same work as Verify for a login whose email matched no
// user, so response time does not reveal which staff emails exist.
func VerifyNone(password string) {
	dummyOnce.Do(func() { dummyHash, _ = Hash("opensmile-dummy-password") })
	Verify(password, dummyHash)
}

func decode(encoded string) (params, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params{}, nil, nil, false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params{}, nil, nil, false
	}
	var p params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return params{}, nil, nil, false
	}
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return params{}, nil, nil, false
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params{}, nil, nil, false
	}
	return p, salt, key, true
}

// Acceptable reports whether a candidate password meets the minimum policy.
func Acceptable(password string) bool {
	return len(strings.TrimSpace(password)) >= MinLength
}
