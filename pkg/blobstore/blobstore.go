// Package blobstore implements the content-addressed blob store (C1): a
// local-disk layout of <root>/<vault_id>/<hash[0:2]>/<hash[2:4]>/<hash[4:]>.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is a local-disk blob store rooted at a single directory.
type Store struct {
	root string
}

// New returns a Store rooted at root. The directory is created if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// PathOf returns the on-disk path for a (vault, hash) pair without touching
// the filesystem.
func (s *Store) PathOf(vaultID string, hash string) string {
	if len(hash) < 4 {
		return filepath.Join(s.root, vaultID, hash)
	}
	return filepath.Join(s.root, vaultID, hash[0:2], hash[2:4], hash[4:])
}

// OpenRead opens a blob for reading. The caller must Close it.
func (s *Store) OpenRead(vaultID, hash string) (io.ReadCloser, error) {
	f, err := os.Open(s.PathOf(vaultID, hash))
	if err != nil {
		return nil, fmt.Errorf("open blob for read: %w", err)
	}
	return f, nil
}

// OpenWrite opens a blob for writing, creating any missing intermediate
// directories. The store makes no atomicity guarantee across partial
// writes: an interrupted upload leaves a truncated file at the target
// path, which is exactly what the PendingFile row exists to let the purger
// detect and clean up. The caller must Close it.
func (s *Store) OpenWrite(vaultID, hash string) (io.WriteCloser, error) {
	path := s.PathOf(vaultID, hash)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open blob for write: %w", err)
	}
	return f, nil
}

// Remove deletes a single blob. Missing files are not an error.
func (s *Store) Remove(vaultID, hash string) error {
	if err := os.Remove(s.PathOf(vaultID, hash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// RemoveVaultDir removes a vault's entire blob directory, best-effort: used
// by the purger when a vault is hard-deleted. A missing directory is not an
// error.
func (s *Store) RemoveVaultDir(vaultID string) error {
	if err := os.RemoveAll(filepath.Join(s.root, vaultID)); err != nil {
		return fmt.Errorf("remove vault blob dir: %w", err)
	}
	return nil
}

// Stat returns the size in bytes of a blob.
func (s *Store) Stat(vaultID, hash string) (int64, error) {
	info, err := os.Stat(s.PathOf(vaultID, hash))
	if err != nil {
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), nil
}
