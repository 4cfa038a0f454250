package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSalt(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt, saltLength)

	other, err := GenerateSalt()
	require.NoError(t, err)
	assert.NotEqual(t, salt, other, "two generated salts should not collide")
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, tokenLength*2) // hex-encoded

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestHashPasswordDeterministic(t *testing.T) {
	salt := "fixedsaltfixedsalt01"

	h1, err := HashPassword("correct horse battery staple", salt)
	require.NoError(t, err)
	h2, err := HashPassword("correct horse battery staple", salt)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // sha256 hex digest
}

func TestHashPasswordDiffersBySaltAndPassword(t *testing.T) {
	h1, err := HashPassword("password-one", "salt-aaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)

	h2, err := HashPassword("password-two", "salt-aaaaaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	h3, err := HashPassword("password-one", "salt-bbbbbbbbbbbbbbbbbbb")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestVerifyPassword(t *testing.T) {
	salt := "verifysaltverifysalt"
	stored, err := HashPassword("hunter2", salt)
	require.NoError(t, err)

	ok, err := VerifyPassword("hunter2", salt, stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong-password", salt, stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyVaultKey(t *testing.T) {
	salt := "vaultsaltvaultsalt01"
	keyhash, err := HashVaultKey("vault-password", salt)
	require.NoError(t, err)

	ok, err := VerifyVaultKey("vault-password", salt, keyhash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyVaultKey("not-the-password", salt, keyhash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abcdef", "abcdef"))
	assert.False(t, ConstantTimeEqual("abcdef", "abcdeg"))
	assert.False(t, ConstantTimeEqual("abc", "abcdef"))
	assert.False(t, ConstantTimeEqual("", "abc"))
	assert.True(t, ConstantTimeEqual("", ""))
}
