package store

import (
	"fmt"
	"time"
)

// PendingFile records a blob upload that has not yet been confirmed by a
// DocumentRecord insert, so the purger can reclaim abandoned uploads.
type PendingFile struct {
	ID        int64
	VaultID   int64
	Hash      string
	Type      string
	CreatedAt time.Time
}

// PendingUploadType is the only PendingFile type this server currently
// writes; the column exists to leave room for future kinds without a
// migration.
const PendingUploadType = "upload"

// InsertPending records the start of a blob upload. Idempotent on duplicate
// (vault_id, hash): a second insert for the same pair is a no-op.
func (s *Store) InsertPending(vaultID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(
		`INSERT OR IGNORE INTO pending_files (vault_id, hash, type, created_at)
		 VALUES (?, ?, ?, ?)`,
		vaultID, hash, PendingUploadType, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert pending: %w", err)
	}
	return nil
}

// DeletePending removes a pending-upload row on successful DocumentRecord
// commit. Idempotent: deleting an absent row is not an error.
func (s *Store) DeletePending(vaultID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(
		`DELETE FROM pending_files WHERE vault_id = ? AND hash = ?`, vaultID, hash,
	)
	if err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	return nil
}

// ListStalePending returns pending_files rows with type=upload created at or
// before olderThan (both in whole seconds), for the purger's stale-upload
// sweep.
func (s *Store) ListStalePending(olderThan time.Time) ([]PendingFile, error) {
	rows, err := s.conn.Query(
		`SELECT id, vault_id, hash, type, created_at
		 FROM pending_files WHERE type = ? AND created_at <= ?`,
		PendingUploadType, olderThan.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()

	var out []PendingFile
	for rows.Next() {
		var p PendingFile
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.VaultID, &p.Hash, &p.Type, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePendingByID removes a single pending_files row by its own id, used
// by the purger after it has reclaimed the blob on disk.
func (s *Store) DeletePendingByID(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`DELETE FROM pending_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete pending by id: %w", err)
	}
	return nil
}

// DeleteVaultPending removes every pending_files row for vaultID. Used only
// by the purger, after the vault has been soft-deleted.
func (s *Store) DeleteVaultPending(vaultID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`DELETE FROM pending_files WHERE vault_id = ?`, vaultID)
	if err != nil {
		return fmt.Errorf("delete vault pending: %w", err)
	}
	return nil
}
