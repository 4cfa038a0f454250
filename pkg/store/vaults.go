package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Vault is a sync namespace owned by exactly one user, optionally shared
// with others via VaultShare rows.
type Vault struct {
	ID        int64
	OwnerID   int64
	Name      string
	Password  string
	KeyHash   string
	Salt      string
	Deleted   bool
	CreatedAt time.Time
}

// CreateVault inserts a new vault row.
func (s *Store) CreateVault(v Vault) (Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.conn.Exec(
		`INSERT INTO vaults (owner_id, name, password, key_hash, salt, deleted, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		v.OwnerID, v.Name, v.Password, v.KeyHash, v.Salt, now.Unix(),
	)
	if err != nil {
		return Vault{}, fmt.Errorf("insert vault: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Vault{}, fmt.Errorf("last insert id: %w", err)
	}
	v.ID = id
	v.CreatedAt = now
	v.Deleted = false
	return v, nil
}

// ShareVault grants a non-owner user access to a vault.
func (s *Store) ShareVault(vaultID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(
		`INSERT OR IGNORE INTO vault_shares (vault_id, user_id) VALUES (?, ?)`,
		vaultID, userID,
	)
	if err != nil {
		return fmt.Errorf("share vault: %w", err)
	}
	return nil
}

// SoftDeleteVault marks a vault deleted; the purger hard-deletes it once
// vault_age has elapsed since this call.
func (s *Store) SoftDeleteVault(vaultID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(
		`UPDATE vaults SET deleted = 1, deleted_at = ? WHERE id = ?`,
		time.Now().UTC().Unix(), vaultID,
	)
	if err != nil {
		return fmt.Errorf("soft delete vault: %w", err)
	}
	return nil
}

// GetVault implements C3's get(vault_id, user_id, include_shared).
//
// userID of 0 means "no user supplied" (existence-only check). The vault
// must exist and have deleted=false. When includeShared is false the caller
// must be the owner; when true the caller may also be a VaultShare member.
func (s *Store) GetVault(vaultID, userID int64, includeShared bool) (Vault, bool, error) {
	row := s.conn.QueryRow(
		`SELECT id, owner_id, name, password, key_hash, salt, deleted, created_at
		 FROM vaults WHERE id = ? AND deleted = 0`, vaultID)
	v, ok, err := scanVault(row)
	if err != nil || !ok {
		return Vault{}, false, err
	}
	if userID == 0 {
		return v, true, nil
	}
	if v.OwnerID == userID {
		return v, true, nil
	}
	if !includeShared {
		return Vault{}, false, nil
	}

	var exists int
	err = s.conn.QueryRow(
		`SELECT 1 FROM vault_shares WHERE vault_id = ? AND user_id = ?`, vaultID, userID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return Vault{}, false, nil
	}
	if err != nil {
		return Vault{}, false, fmt.Errorf("check vault share: %w", err)
	}
	return v, true, nil
}

// GetVaultRaw fetches an undeleted vault by id regardless of ownership or
// sharing, so callers can distinguish "vault does not exist" from "vault
// exists but this user may not touch it".
func (s *Store) GetVaultRaw(vaultID int64) (Vault, bool, error) {
	row := s.conn.QueryRow(
		`SELECT id, owner_id, name, password, key_hash, salt, deleted, created_at
		 FROM vaults WHERE id = ? AND deleted = 0`, vaultID)
	return scanVault(row)
}

// CheckVaultAccess implements C3's check(vault_id, user_id, include_shared).
func (s *Store) CheckVaultAccess(vaultID, userID int64, includeShared bool) (bool, error) {
	_, ok, err := s.GetVault(vaultID, userID, includeShared)
	return ok, err
}

func scanVault(row *sql.Row) (Vault, bool, error) {
	var v Vault
	var deleted int
	var createdAt int64
	err := row.Scan(&v.ID, &v.OwnerID, &v.Name, &v.Password, &v.KeyHash, &v.Salt, &deleted, &createdAt)
	if err == sql.ErrNoRows {
		return Vault{}, false, nil
	}
	if err != nil {
		return Vault{}, false, fmt.Errorf("scan vault: %w", err)
	}
	v.Deleted = deleted != 0
	v.CreatedAt = time.Unix(createdAt, 0).UTC()
	return v, true, nil
}

// ListDeletedVaults returns the ids of all vaults with deleted=true, for the
// purger's sweep.
func (s *Store) ListDeletedVaults() ([]int64, error) {
	rows, err := s.conn.Query(`SELECT id FROM vaults WHERE deleted = 1`)
	if err != nil {
		return nil, fmt.Errorf("list deleted vaults: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted vault id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListDeletedVaultsOlderThan returns the ids of vaults with deleted=true
// whose deleted_at is at or before cutoff (both in whole seconds) — the
// purger's vault_age gate. A vault soft-deleted before deleted_at existed
// (deleted_at NULL) is treated as immediately eligible.
func (s *Store) ListDeletedVaultsOlderThan(cutoff time.Time) ([]int64, error) {
	rows, err := s.conn.Query(
		`SELECT id FROM vaults WHERE deleted = 1 AND (deleted_at IS NULL OR deleted_at <= ?)`,
		cutoff.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list deleted vaults older than cutoff: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted vault id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteVaultShares removes all VaultShare rows for a vault.
func (s *Store) DeleteVaultShares(vaultID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`DELETE FROM vault_shares WHERE vault_id = ?`, vaultID)
	if err != nil {
		return fmt.Errorf("delete vault shares: %w", err)
	}
	return nil
}

// DeleteVault removes the vault row itself. Callers are expected to have
// already removed its records, shares, and blob directory.
func (s *Store) DeleteVault(vaultID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`DELETE FROM vaults WHERE id = ?`, vaultID)
	if err != nil {
		return fmt.Errorf("delete vault: %w", err)
	}
	return nil
}
