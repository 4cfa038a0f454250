package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaultsync.db")
	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedVault(t *testing.T, s *Store) (User, Vault) {
	t.Helper()
	u, err := s.CreateUser(User{Email: "owner@example.com", PasswordHash: "h", PasswordSalt: "s", DisplayName: "Owner"})
	require.NoError(t, err)
	v, err := s.CreateVault(Vault{OwnerID: u.ID, Name: "vault", Password: "pw", KeyHash: "kh", Salt: "salt"})
	require.NoError(t, err)
	return u, v
}

func TestCreateAndResolveUser(t *testing.T) {
	s := newTestStore(t)
	u, err := s.CreateUser(User{Email: "a@example.com", PasswordHash: "h1", PasswordSalt: "s1", DisplayName: "A"})
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	got, ok, err := s.GetUserByEmail("a@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u.ID, got.ID)

	_, ok, err = s.GetUserByEmail("missing@example.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	u, err := s.CreateUser(User{Email: "b@example.com", PasswordHash: "h", PasswordSalt: "s", DisplayName: "B"})
	require.NoError(t, err)

	require.NoError(t, s.IssueToken(u.ID, "tok-123"))

	resolved, ok, err := s.ResolveToken("tok-123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u.ID, resolved.ID)

	require.NoError(t, s.RevokeToken("tok-123"))
	_, ok, err = s.ResolveToken("tok-123")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVaultAccessOwnerAndShared(t *testing.T) {
	s := newTestStore(t)
	owner, v := seedVault(t, s)

	other, err := s.CreateUser(User{Email: "other@example.com", PasswordHash: "h", PasswordSalt: "s", DisplayName: "Other"})
	require.NoError(t, err)

	ok, err := s.CheckVaultAccess(v.ID, owner.ID, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CheckVaultAccess(v.ID, other.ID, false)
	require.NoError(t, err)
	require.False(t, ok, "non-owner must not pass an owner-only check")

	ok, err = s.CheckVaultAccess(v.ID, other.ID, true)
	require.NoError(t, err)
	require.False(t, ok, "unshared user must not pass even with include_shared")

	require.NoError(t, s.ShareVault(v.ID, other.ID))
	ok, err = s.CheckVaultAccess(v.ID, other.ID, true)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CheckVaultAccess(v.ID, 0, false)
	require.NoError(t, err, "existence-only check needs no user")
	require.True(t, ok)
}

func TestVaultAccessExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	owner, v := seedVault(t, s)

	require.NoError(t, s.SoftDeleteVault(v.ID))

	ok, err := s.CheckVaultAccess(v.ID, owner.ID, false)
	require.NoError(t, err)
	require.False(t, ok)

	ids, err := s.ListDeletedVaults()
	require.NoError(t, err)
	require.Contains(t, ids, v.ID)
}

func TestInsertAndGetRecord(t *testing.T) {
	s := newTestStore(t)
	_, v := seedVault(t, s)

	r, err := s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "deadbeef", Size: 10, Device: "dev1"})
	require.NoError(t, err)
	require.NotZero(t, r.ID)
	require.Equal(t, "", r.RelatedPath)

	got, ok, err := s.GetRecord(v.ID, r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r.Hash, got.Hash)
}

func TestHashCountAndVaultSize(t *testing.T) {
	s := newTestStore(t)
	_, v := seedVault(t, s)

	count, err := s.HashCount(v.ID, "abc")
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "abc", Size: 5})
	require.NoError(t, err)
	_, err = s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "abc", Size: 7})
	require.NoError(t, err)

	count, err = s.HashCount(v.ID, "abc")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	size, err := s.GetVaultSize(v.ID)
	require.NoError(t, err)
	require.Equal(t, int64(12), size, "vault size sums all historical revisions")
}

func TestGetDeletedLatestPerPath(t *testing.T) {
	s := newTestStore(t)
	_, v := seedVault(t, s)

	_, err := s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "h1", Size: 1})
	require.NoError(t, err)
	_, err = s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Deleted: true})
	require.NoError(t, err)
	_, err = s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "b.md", Hash: "h2", Size: 1})
	require.NoError(t, err)

	deleted, err := s.GetDeleted(v.ID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, "a.md", deleted[0].Path)
}

func TestGetHistoryOrderingAndBound(t *testing.T) {
	s := newTestStore(t)
	_, v := seedVault(t, s)

	r1, err := s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "h1"})
	require.NoError(t, err)
	r2, err := s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "h2"})
	require.NoError(t, err)
	r3, err := s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "h3"})
	require.NoError(t, err)

	all, err := s.GetHistory(v.ID, "a.md", 0)
	require.NoError(t, err)
	require.Equal(t, []int64{r3.ID, r2.ID, r1.ID}, idsOf(all))

	bounded, err := s.GetHistory(v.ID, "a.md", r3.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{r2.ID, r1.ID}, idsOf(bounded))
}

func TestGetUpdatesSeamAndPrecondition(t *testing.T) {
	s := newTestStore(t)
	_, v := seedVault(t, s)

	maxID, records, err := s.GetUpdates(v.ID, 0, false)
	require.NoError(t, err)
	require.Zero(t, maxID)
	require.Empty(t, records)

	r1, err := s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Hash: "h1", Size: 1})
	require.NoError(t, err)
	_, err = s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "a.md", Deleted: true})
	require.NoError(t, err)
	r3, err := s.InsertRecord(DocumentRecord{VaultID: v.ID, Path: "b.md", Hash: "h2", Size: 2})
	require.NoError(t, err)

	maxID, records, err = s.GetUpdates(v.ID, 0, false)
	require.NoError(t, err)
	require.Equal(t, r3.ID, maxID)
	require.Len(t, records, 2, "one latest record per touched path")

	maxID, records, err = s.GetUpdates(v.ID, maxID, false)
	require.NoError(t, err)
	require.Equal(t, r3.ID, maxID)
	require.Empty(t, records, "last == max_id returns no records")

	_, _, err = s.GetUpdates(v.ID, maxID+1, false)
	require.Error(t, err, "last > max_id violates the caller's precondition")

	maxID, records, err = s.GetUpdates(v.ID, 0, true)
	require.NoError(t, err)
	require.Equal(t, r3.ID, maxID)
	require.Len(t, records, 1, "initial=true filters out the deleted latest record")
	require.Equal(t, "b.md", records[0].Path)
	_ = r1
}

func TestPendingUploadIdempotency(t *testing.T) {
	s := newTestStore(t)
	_, v := seedVault(t, s)

	require.NoError(t, s.InsertPending(v.ID, "hash1"))
	require.NoError(t, s.InsertPending(v.ID, "hash1"), "duplicate insert must not error")

	stale, err := s.ListStalePending(time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, s.DeletePending(v.ID, "hash1"))
	require.NoError(t, s.DeletePending(v.ID, "hash1"), "deleting an absent row must not error")
}

func idsOf(records []DocumentRecord) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
