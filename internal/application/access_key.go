package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidKeyHash         = errors.New("invalid access key hash format")
	ErrIncompatibleKeyVersion = errors.New("incompatible access key hash version")
)

// accessKeyFormat versions the stored hash layout:
//
//	$limskey$1$<base64url user id>$argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>
const (
	accessKeyScheme = "limskey"
	accessKeyFormat = 1
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams is sized for verification on every request.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// AccessKey is the bearer credential "<userID>.<secret>". The user id may
// contain dots; the secret may not.
type AccessKey struct {
	UserID string
	Secret string
}

// NewAccessKey pairs a user id with a freshly generated secret.
func NewAccessKey(userID, secret string) (AccessKey, error) {
	if strings.TrimSpace(userID) == "" {
		return AccessKey{}, errors.New("access key needs a user id")
	}
	if secret == "" || strings.Contains(secret, ".") {
		return AccessKey{}, errors.New("access key secret must be non-empty and free of dots")
	}
	return AccessKey{UserID: userID, Secret: secret}, nil
}

// ParseAccessKey splits a bearer token at its last dot.
func ParseAccessKey(token string) (AccessKey, error) {
	token = strings.TrimSpace(token)
	sep := strings.LastIndex(token, ".")
	if sep <= 0 || sep == len(token)-1 {
		return AccessKey{}, fmt.Errorf("malformed access key: %w", ErrUnauthorized)
	}
	return AccessKey{UserID: token[:sep], Secret: token[sep+1:]}, nil
}

// String renders the bearer token.
func (k AccessKey) String() string {
	return k.UserID + "." + k.Secret
}

// material is the argon2 input. Binding the user id means a hash copied onto
// another user row never verifies.
func (k AccessKey) material() []byte {
	return []byte(k.UserID + "\x00" + k.Secret)
}

// HashAccessKey derives the stored form of key.
func HashAccessKey(key AccessKey, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(key.material(), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return fmt.Sprintf("$%s$%d$%s$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		accessKeyScheme,
		accessKeyFormat,
		base64.RawURLEncoding.EncodeToString([]byte(key.UserID)),
		argon2.Version,
		params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyAccessKey checks key against an encoded hash. It returns
// ErrInvalidKeyHash or ErrIncompatibleKeyVersion for unusable hashes and
// ErrUnauthorized when the key does not match.
func VerifyAccessKey(encoded string, key AccessKey) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 9 || parts[0] != "" || parts[1] != accessKeyScheme || parts[4] != "argon2id" {
		return ErrInvalidKeyHash
	}

	if parts[2] != fmt.Sprint(accessKeyFormat) {
		return ErrIncompatibleKeyVersion
	}
	var version int
	if _, err := fmt.Sscanf(parts[5], "v=%d", &version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}
	if version != argon2.Version {
		return ErrIncompatibleKeyVersion
	}

	owner, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[6], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[7])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}
	stored, err := base64.RawStdEncoding.DecodeString(parts[8])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}

	if string(owner) != key.UserID {
		return fmt.Errorf("key issued to another user: %w", ErrUnauthorized)
	}

	computed := argon2.IDKey(key.material(), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(stored)))
	if subtle.ConstantTimeCompare(stored, computed) == 1 {
		return nil
	}
	return ErrUnauthorized
}
