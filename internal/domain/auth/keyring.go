package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when a presented key matches no configured hash.
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// Keyring verifies raw API keys against the configured hashes.
type Keyring struct {
	keys       []APIKey
	identities map[string]*Identity
}

// NewKeyring builds a keyring. Every key must reference a known identity.
func NewKeyring(keys []APIKey, identities []Identity) (*Keyring, error) {
	byID := make(map[string]*Identity, len(identities))
	for i := range identities {
		id := identities[i]
		byID[id.ID] = &id
	}
	for i, k := range keys {
		if _, ok := byID[k.IdentityID]; !ok {
			return nil, fmt.Errorf("api_keys[%d]: unknown identity %q", i, k.IdentityID)
		}
		if DetectHashType(k.Hash) == "unknown" {
			return nil, fmt.Errorf("api_keys[%d]: %w", i, ErrUnknownHashType)
		}
	}
	return &Keyring{keys: keys, identities: byID}, nil
}

// Empty reports whether no keys are configured.
func (k *Keyring) Empty() bool {
	return k == nil || len(k.keys) == 0
}

// Authenticate returns the identity bound to rawKey.
func (k *Keyring) Authenticate(rawKey string) (*Identity, error) {
	if k == nil || rawKey == "" {
		return nil, ErrInvalidKey
	}
	for _, candidate := range k.keys {
		match, err := VerifyKey(rawKey, candidate.Hash)
		if err != nil || !match {
			continue
		}
		return k.identities[candidate.IdentityID], nil
	}
	return nil, ErrInvalidKey
}

// argon2idParams are the OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format:
// $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// HashKeySHA256 returns the "sha256:<hex>" form accepted for development keys.
func HashKeySHA256(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// DetectHashType returns "argon2id", "sha256" or "unknown".
func DetectHashType(storedHash string) string {
	switch {
	case strings.HasPrefix(storedHash, "$argon2id$"):
		return "argon2id"
	case strings.HasPrefix(storedHash, "sha256:") && len(storedHash) == len("sha256:")+64:
		return "sha256"
	default:
		return "unknown"
	}
}

// VerifyKey verifies a raw key against a stored hash.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawKey, storedHash)
	case "sha256":
		computed := HashKeySHA256(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare converts the panics argon2 raises on malformed
// parameters (t=0, p=0) into errors.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
