package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters mandated for password and vault key-hash derivation.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	scryptMaxMem = 64 * 1024 * 1024

	saltLength  = 20
	tokenLength = 16 // 128 bits
)

// saltAlphabet is the printable ASCII alphabet salts are drawn from.
const saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" +
	"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// GenerateSalt returns a random 20-character salt drawn from the printable
// ASCII alphabet, suitable for password and vault key-hash derivation.
func GenerateSalt() (string, error) {
	buf := make([]byte, saltLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(saltAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate salt: %w", err)
		}
		buf[i] = saltAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// GenerateToken returns a random 128-bit bearer token, hex-encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// scryptHash runs scrypt with the parameters mandated for this server
// (N=32768, r=8, p=1, dklen=32, maxmem=64MiB) and returns the raw derived key.
func scryptHash(password, salt string) ([]byte, error) {
	maxMemUsage := int64(scryptMaxMem)
	blockBytes := int64(128 * scryptR)
	needed := blockBytes * int64(scryptN)
	if needed+blockBytes > maxMemUsage {
		return nil, fmt.Errorf("scrypt parameters exceed memory budget")
	}
	return scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
}

// HashPassword derives a user's password hash for storage, returning the
// lowercase hex digest of SHA-256(scrypt(password, salt)).
func HashPassword(password, salt string) (string, error) {
	derived, err := scryptHash(password, salt)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	sum := sha256.Sum256(derived)
	return hex.EncodeToString(sum[:]), nil
}

// HashVaultKey derives a vault's stored keyhash from its password and salt,
// using the same SHA-256(scrypt(password, salt)) construction as passwords.
func HashVaultKey(password, salt string) (string, error) {
	return HashPassword(password, salt)
}

// ConstantTimeEqual reports whether two hex-encoded hashes are equal,
// comparing in constant time to avoid leaking timing information about how
// much of the hash matched.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// VerifyPassword reports whether the supplied password, rehashed with salt,
// equals the stored hash. The comparison is constant-time.
func VerifyPassword(password, salt, stored string) (bool, error) {
	computed, err := HashPassword(password, salt)
	if err != nil {
		return false, err
	}
	return ConstantTimeEqual(computed, stored), nil
}

// VerifyVaultKey reports whether the supplied password, rehashed with the
// vault's salt, equals the vault's stored keyhash. The comparison is
// constant-time, guarding against the timing side-channel a naive `==`
// check would expose.
func VerifyVaultKey(password, salt, keyhash string) (bool, error) {
	return VerifyPassword(password, salt, keyhash)
}
