package access

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vaultsync/pkg/store"
)

func newTestChecker(t *testing.T) (*Checker, *store.Store) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewChecker(s), s
}

func TestCheckOwnerAndShared(t *testing.T) {
	c, s := newTestChecker(t)

	owner, err := s.CreateUser(store.User{Email: "owner@example.com"})
	require.NoError(t, err)
	other, err := s.CreateUser(store.User{Email: "other@example.com"})
	require.NoError(t, err)
	v, err := s.CreateVault(store.Vault{OwnerID: owner.ID, Name: "v"})
	require.NoError(t, err)

	ok, err := c.Check(v.ID, owner.ID, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Check(v.ID, other.ID, true)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.ShareVault(v.ID, other.ID))
	ok, err = c.Check(v.ID, other.ID, true)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGetDistinguishesNotFoundFromAuthDenied(t *testing.T) {
	c, s := newTestChecker(t)

	owner, err := s.CreateUser(store.User{Email: "owner2@example.com"})
	require.NoError(t, err)
	other, err := s.CreateUser(store.User{Email: "other2@example.com"})
	require.NoError(t, err)
	v, err := s.CreateVault(store.Vault{OwnerID: owner.ID, Name: "v"})
	require.NoError(t, err)

	_, err = c.Get(9999, owner.ID, true)
	require.Error(t, err)
	require.Equal(t, KindNotFound, KindOf(err))

	_, err = c.Get(v.ID, other.ID, false)
	require.Error(t, err)
	require.Equal(t, KindAuthDenied, KindOf(err))

	got, err := c.Get(v.ID, owner.ID, false)
	require.NoError(t, err)
	require.Equal(t, v.ID, got.ID)
}
