// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Hashing algorithms selectable by configuration.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Default argon2id parameters.
const (
	DefaultArgon2Time      = 1
	DefaultArgon2MemoryKiB = 64 * 1024
	DefaultArgon2Threads   = 4

	argon2SaltLen = 16
	argon2KeyLen  = 32
)

const argon2Prefix = "$argon2id$"

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("HASH_EMPTY_PASSWORD").Wrapf(ErrValidation, "password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash was produced by another algorithm
	// or with a weaker work factor than the hasher is configured for.
	NeedsUpgrade(hash string) bool
}

// HasherConfig selects the hashing algorithm and its work factor.
type HasherConfig struct {
	Algorithm       string
	BcryptCost      int
	Argon2Time      uint32
	Argon2MemoryKiB uint32
	Argon2Threads   uint8
}

// NewPasswordHasher builds the hasher named by cfg.Algorithm. An empty
// algorithm selects bcrypt.
func NewPasswordHasher(cfg HasherConfig) (PasswordHasher, error) {
	switch cfg.Algorithm {
	case "", AlgorithmBcrypt:
		return NewBcryptHasher(cfg.BcryptCost)
	case AlgorithmArgon2id:
		return NewArgon2idHasher(cfg.Argon2Time, cfg.Argon2MemoryKiB, cfg.Argon2Threads), nil
	default:
		return nil, oops.Code("HASH_UNKNOWN_ALGORITHM").
			With("algorithm", cfg.Algorithm).
			Errorf("unknown hashing algorithm %q", cfg.Algorithm)
	}
}

// Argon2idHasher implements PasswordHasher using argon2id. Bcrypt hashes are
// still verified so stored credentials survive an algorithm switch.
type Argon2idHasher struct {
	time    uint32
	memory  uint32
	threads uint8
}

// NewArgon2idHasher creates an Argon2idHasher. Zero values select the defaults.
func NewArgon2idHasher(time, memoryKiB uint32, threads uint8) *Argon2idHasher {
	if time == 0 {
		time = DefaultArgon2Time
	}
	if memoryKiB == 0 {
		memoryKiB = DefaultArgon2MemoryKiB
	}
	if threads == 0 {
		threads = DefaultArgon2Threads
	}
	return &Argon2idHasher{time: time, memory: memoryKiB, threads: threads}
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("HASH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches an argon2id or bcrypt hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		return verifyBcrypt(password, encodedHash)
	}
	return verifyArgon2id(password, encodedHash)
}

// NeedsUpgrade returns true for non-argon2id hashes and for argon2id hashes
// computed with cheaper parameters than configured.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	params, err := parseArgon2id(encodedHash)
	if err != nil {
		return true
	}
	return params.time < h.time || params.memory < h.memory || params.threads < uint32(h.threads)
}

type argon2Params struct {
	memory, time, threads uint32
	salt, key             []byte
}

func parseArgon2id(encodedHash string) (*argon2Params, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, oops.Code("HASH_INVALID").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, oops.Code("HASH_INVALID").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("HASH_INVALID").With("version", version).Errorf("unsupported argon2 version")
	}

	var p argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	if p.threads == 0 || p.threads > 255 {
		return nil, oops.Code("HASH_INVALID").Errorf("threads value %d out of range", p.threads)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, oops.Code("HASH_INVALID").Wrap(err)
	}
	if len(p.key) == 0 || len(p.key) > 1<<10 {
		return nil, oops.Code("HASH_INVALID").Errorf("invalid hash key length: %d", len(p.key))
	}
	return &p, nil
}

func verifyArgon2id(password, encodedHash string) (bool, error) {
	p, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, uint8(p.threads), uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}
