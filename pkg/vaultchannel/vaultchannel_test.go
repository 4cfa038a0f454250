package vaultchannel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vaultsync/pkg/access"
	"github.com/cuemby/vaultsync/pkg/store"
)

type fakeConn struct {
	id       string
	received chan store.DocumentRecord
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, received: make(chan store.DocumentRecord, 16)}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Enqueue(record store.DocumentRecord) {
	f.received <- record
}

func (f *fakeConn) DeviceName() string { return "device-" + f.id }

func newTestHub(t *testing.T) (*Hub, *store.Store) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "db.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewHub(access.NewChecker(s)), s
}

func TestJoinInvalidKeyAndAccessDenied(t *testing.T) {
	h, s := newTestHub(t)

	owner, err := s.CreateUser(store.User{Email: "owner@example.com"})
	require.NoError(t, err)
	other, err := s.CreateUser(store.User{Email: "other@example.com"})
	require.NoError(t, err)
	v, err := s.CreateVault(store.Vault{OwnerID: owner.ID, Name: "v", KeyHash: "correcthash"})
	require.NoError(t, err)

	c := newFakeConn("c1")
	err = h.Join(c, owner.ID, v.ID, "wronghash")
	require.Error(t, err)
	require.Equal(t, access.KindInvalidKey, access.KindOf(err))

	err = h.Join(c, other.ID, v.ID, "correcthash")
	require.Error(t, err)
	require.Equal(t, access.KindAuthDenied, access.KindOf(err))

	err = h.Join(c, 9999999, 9999999, "x")
	require.Error(t, err)
	require.Equal(t, access.KindNotFound, access.KindOf(err))
}

func TestJoinBroadcastLeave(t *testing.T) {
	h, s := newTestHub(t)

	owner, err := s.CreateUser(store.User{Email: "owner2@example.com"})
	require.NoError(t, err)
	v, err := s.CreateVault(store.Vault{OwnerID: owner.ID, Name: "v", KeyHash: "key"})
	require.NoError(t, err)

	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	require.NoError(t, h.Join(c1, owner.ID, v.ID, "key"))
	require.NoError(t, h.Join(c2, owner.ID, v.ID, "key"))

	rec := store.DocumentRecord{VaultID: v.ID, ID: 1, Path: "a.md"}
	h.Broadcast(rec)

	select {
	case got := <-c1.received:
		require.Equal(t, rec.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("c1 did not receive broadcast")
	}
	select {
	case got := <-c2.received:
		require.Equal(t, rec.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("c2 did not receive broadcast")
	}

	h.Leave(v.ID, c1)
	h.Leave(v.ID, c2)

	// Broadcasting to a vault with no members must not panic or block.
	h.Broadcast(rec)
}

func TestStatusListsLiveChannelsAndDevices(t *testing.T) {
	h, s := newTestHub(t)

	owner, err := s.CreateUser(store.User{Email: "owner4@example.com"})
	require.NoError(t, err)
	v, err := s.CreateVault(store.Vault{OwnerID: owner.ID, Name: "v", KeyHash: "key"})
	require.NoError(t, err)

	require.Empty(t, h.Status())

	c1 := newFakeConn("c1")
	require.NoError(t, h.Join(c1, owner.ID, v.ID, "key"))

	statuses := h.Status()
	require.Len(t, statuses, 1)
	require.Equal(t, v.ID, statuses[0].VaultID)
	require.Equal(t, []string{"device-c1"}, statuses[0].Devices)

	h.Leave(v.ID, c1)
	require.Empty(t, h.Status())
}

func TestBroadcastPreservesPerConnectionOrder(t *testing.T) {
	h, s := newTestHub(t)

	owner, err := s.CreateUser(store.User{Email: "owner3@example.com"})
	require.NoError(t, err)
	v, err := s.CreateVault(store.Vault{OwnerID: owner.ID, Name: "v", KeyHash: "key"})
	require.NoError(t, err)

	c := newFakeConn("c1")
	require.NoError(t, h.Join(c, owner.ID, v.ID, "key"))

	for i := int64(1); i <= 5; i++ {
		h.Broadcast(store.DocumentRecord{VaultID: v.ID, ID: i})
	}

	for i := int64(1); i <= 5; i++ {
		select {
		case got := <-c.received:
			require.Equal(t, i, got.ID)
		case <-time.After(time.Second):
			t.Fatalf("missing broadcast %d", i)
		}
	}
}
