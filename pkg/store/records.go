package store

import (
	"database/sql"
	"fmt"
	"time"
)

// DocumentRecord is one entry in a vault's append-only revision log.
type DocumentRecord struct {
	ID          int64
	VaultID     int64
	Path        string
	RelatedPath string
	Hash        string
	Folder      bool
	Deleted     bool
	Size        int64
	Device      string
	Ctime       int64
	Mtime       int64
	CreatedAt   time.Time
}

// InsertRecord assigns a server-chosen monotonic id and created_at, inserts
// the record, and returns the populated copy. Commits atomically (a single
// autocommit statement; SQLite assigns the rowid under its own lock).
func (s *Store) InsertRecord(r DocumentRecord) (DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.conn.Exec(
		`INSERT INTO document_records
			(vault_id, path, relatedpath, hash, folder, deleted, size, device, ctime, mtime, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.VaultID, r.Path, r.RelatedPath, r.Hash, boolToInt(r.Folder), boolToInt(r.Deleted),
		r.Size, r.Device, r.Ctime, r.Mtime, now.Unix(),
	)
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return r, nil
}

// GetRecord returns a single record by (vault_id, record_id).
func (s *Store) GetRecord(vaultID, recordID int64) (DocumentRecord, bool, error) {
	row := s.conn.QueryRow(
		`SELECT id, vault_id, path, relatedpath, hash, folder, deleted, size, device, ctime, mtime, created_at
		 FROM document_records WHERE vault_id = ? AND id = ?`, vaultID, recordID)
	return scanRecord(row)
}

// GetVaultSize sums size over every record ever committed to the vault,
// including historical revisions — the billing/limit number.
func (s *Store) GetVaultSize(vaultID int64) (int64, error) {
	var total sql.NullInt64
	err := s.conn.QueryRow(
		`SELECT SUM(size) FROM document_records WHERE vault_id = ?`, vaultID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("get vault size: %w", err)
	}
	return total.Int64, nil
}

// HashCount returns the number of records in the vault referencing hash.
// Zero means the blob is not referenced and must be uploaded.
func (s *Store) HashCount(vaultID int64, hash string) (int, error) {
	var count int
	err := s.conn.QueryRow(
		`SELECT COUNT(*) FROM document_records WHERE vault_id = ? AND hash = ?`, vaultID, hash,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("hash count: %w", err)
	}
	return count, nil
}

// GetDeleted returns the latest record for each path in the vault whose
// latest record has deleted=true, ordered by id ascending.
func (s *Store) GetDeleted(vaultID int64) ([]DocumentRecord, error) {
	rows, err := s.conn.Query(
		`SELECT d.id, d.vault_id, d.path, d.relatedpath, d.hash, d.folder, d.deleted, d.size, d.device, d.ctime, d.mtime, d.created_at
		 FROM document_records d
		 JOIN (
		     SELECT path, MAX(id) AS max_id
		     FROM document_records
		     WHERE vault_id = ?
		     GROUP BY path
		 ) latest ON latest.path = d.path AND latest.max_id = d.id
		 WHERE d.vault_id = ? AND d.deleted = 1
		 ORDER BY d.id ASC`, vaultID, vaultID)
	if err != nil {
		return nil, fmt.Errorf("get deleted: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetHistory returns records for path with id < last (or unbounded if
// last==0), ordered by id descending.
func (s *Store) GetHistory(vaultID int64, path string, last int64) ([]DocumentRecord, error) {
	var rows *sql.Rows
	var err error
	if last == 0 {
		rows, err = s.conn.Query(
			`SELECT id, vault_id, path, relatedpath, hash, folder, deleted, size, device, ctime, mtime, created_at
			 FROM document_records WHERE vault_id = ? AND path = ? ORDER BY id DESC`, vaultID, path)
	} else {
		rows, err = s.conn.Query(
			`SELECT id, vault_id, path, relatedpath, hash, folder, deleted, size, device, ctime, mtime, created_at
			 FROM document_records WHERE vault_id = ? AND path = ? AND id < ? ORDER BY id DESC`, vaultID, path, last)
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetUpdates implements get_updates(vault_id, last, initial): computes
// max_id = max(id) in the vault (0 if empty). If last == max_id, returns
// (max_id, nil). If last > max_id the caller has violated a precondition.
// Otherwise returns, ordered ascending by id, the latest record per path
// among records with id > last, filtered to deleted=false when initial.
func (s *Store) GetUpdates(vaultID, last int64, initial bool) (int64, []DocumentRecord, error) {
	maxID, err := s.maxRecordID(vaultID)
	if err != nil {
		return 0, nil, err
	}
	if last == maxID {
		return maxID, nil, nil
	}
	if last > maxID {
		return 0, nil, fmt.Errorf("get updates: last version %d exceeds vault max %d", last, maxID)
	}

	rows, err := s.conn.Query(
		`SELECT d.id, d.vault_id, d.path, d.relatedpath, d.hash, d.folder, d.deleted, d.size, d.device, d.ctime, d.mtime, d.created_at
		 FROM document_records d
		 JOIN (
		     SELECT path, MAX(id) AS max_id
		     FROM document_records
		     WHERE vault_id = ? AND id > ?
		     GROUP BY path
		 ) latest ON latest.path = d.path AND latest.max_id = d.id
		 WHERE d.vault_id = ?
		 ORDER BY d.id ASC`, vaultID, last, vaultID)
	if err != nil {
		return 0, nil, fmt.Errorf("get updates: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return 0, nil, err
	}
	if initial {
		filtered := records[:0]
		for _, r := range records {
			if !r.Deleted {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	return maxID, records, nil
}

func (s *Store) maxRecordID(vaultID int64) (int64, error) {
	var maxID sql.NullInt64
	err := s.conn.QueryRow(
		`SELECT MAX(id) FROM document_records WHERE vault_id = ?`, vaultID,
	).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("max record id: %w", err)
	}
	return maxID.Int64, nil
}

// DeleteVaultRecords removes every DocumentRecord row for vaultID. Used only
// by the purger, after the vault has been soft-deleted.
func (s *Store) DeleteVaultRecords(vaultID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`DELETE FROM document_records WHERE vault_id = ?`, vaultID)
	if err != nil {
		return fmt.Errorf("delete vault records: %w", err)
	}
	return nil
}

func scanRecord(row *sql.Row) (DocumentRecord, bool, error) {
	var r DocumentRecord
	var folder, deleted int
	var createdAt int64
	err := row.Scan(&r.ID, &r.VaultID, &r.Path, &r.RelatedPath, &r.Hash, &folder, &deleted,
		&r.Size, &r.Device, &r.Ctime, &r.Mtime, &createdAt)
	if err == sql.ErrNoRows {
		return DocumentRecord{}, false, nil
	}
	if err != nil {
		return DocumentRecord{}, false, fmt.Errorf("scan record: %w", err)
	}
	r.Folder = folder != 0
	r.Deleted = deleted != 0
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return r, true, nil
}

func scanRecords(rows *sql.Rows) ([]DocumentRecord, error) {
	var records []DocumentRecord
	for rows.Next() {
		var r DocumentRecord
		var folder, deleted int
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.VaultID, &r.Path, &r.RelatedPath, &r.Hash, &folder, &deleted,
			&r.Size, &r.Device, &r.Ctime, &r.Mtime, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Folder = folder != 0
		r.Deleted = deleted != 0
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
