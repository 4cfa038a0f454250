// Package access implements the vault access checker (C3): a thin read
// layer over pkg/store deciding whether a user may read/write a vault, and
// the shared error-kind vocabulary (Section 7 of the protocol design) that
// pkg/vaultchannel and pkg/syncconn classify failures into.
package access

import (
	"errors"
	"fmt"

	"github.com/cuemby/vaultsync/pkg/store"
)

// Kind is one of the terminal error categories the sync protocol's
// dispatch loop and HTTP equivalents collapse every failure into.
type Kind string

const (
	KindAuthMissing Kind = "auth_missing"
	KindAuthDenied  Kind = "auth_denied"
	KindNotFound    Kind = "not_found"
	KindInvalidKey  Kind = "invalid_key"
	KindValidation  Kind = "validation"
	KindInternal    Kind = "internal"
)

// Error carries a Kind alongside the usual wrapped cause, so callers at the
// protocol boundary can map it to the right close/reply behavior without
// re-deriving intent from error text.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind wrapping err (which may be nil).
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Checker is the vault access checker (C3).
type Checker struct {
	store *store.Store
}

// NewChecker returns a Checker backed by s.
func NewChecker(s *store.Store) *Checker {
	return &Checker{store: s}
}

// Check implements check(vault_id, user_id, include_shared): the vault must
// exist and be undeleted; userID 0 means existence-only.
func (c *Checker) Check(vaultID, userID int64, includeShared bool) (bool, error) {
	ok, err := c.store.CheckVaultAccess(vaultID, userID, includeShared)
	if err != nil {
		return false, New(KindInternal, err)
	}
	return ok, nil
}

// Get implements get(vault_id, user_id, include_shared), returning the
// vault row itself when access is permitted. It distinguishes a missing
// vault (KindNotFound) from one that exists but this user may not touch
// (KindAuthDenied) — the distinction join() needs to choose between
// VaultNotFound and AuthDenied.
func (c *Checker) Get(vaultID, userID int64, includeShared bool) (store.Vault, error) {
	v, exists, err := c.store.GetVaultRaw(vaultID)
	if err != nil {
		return store.Vault{}, New(KindInternal, err)
	}
	if !exists {
		return store.Vault{}, New(KindNotFound, fmt.Errorf("vault %d not found", vaultID))
	}
	if userID == 0 || v.OwnerID == userID {
		return v, nil
	}
	if !includeShared {
		return store.Vault{}, New(KindAuthDenied, fmt.Errorf("user %d is not the owner of vault %d", userID, vaultID))
	}

	ok, err := c.store.CheckVaultAccess(vaultID, userID, true)
	if err != nil {
		return store.Vault{}, New(KindInternal, err)
	}
	if !ok {
		return store.Vault{}, New(KindAuthDenied, fmt.Errorf("user %d has no share on vault %d", userID, vaultID))
	}
	return v, nil
}
