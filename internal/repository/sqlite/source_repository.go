package sqlite

import (
	"database/sql"
	"fmt"

	"platestation/internal/models"
)

// SourceRepository implements repository.SourceRepository for SQLite.
type SourceRepository struct {
	db *DB
}

// NewSourceRepository creates a new SQLite source repository.
func NewSourceRepository(db *DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// ReplaceAll swaps the cached list inside one transaction.
func (r *SourceRepository) ReplaceAll(sources []models.CameraSource) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sources`); err != nil {
		return fmt.Errorf("failed to clear sources: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sources (position, kind, device_index, url, host, display_name)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, s := range sources {
		if _, err := stmt.Exec(i, string(s.Kind), s.DeviceIndex, s.URL, s.Host, s.DisplayName); err != nil {
			return fmt.Errorf("failed to insert source %s: %w", s, err)
		}
	}

	return tx.Commit()
}

// List returns the cached sources in the order they were stored.
func (r *SourceRepository) List() ([]models.CameraSource, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT kind, device_index, url, host, display_name
		FROM sources ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.CameraSource
	for rows.Next() {
		var (
			s         models.CameraSource
			kind      string
			index     sql.NullInt64
			url, host sql.NullString
		)
		if err := rows.Scan(&kind, &index, &url, &host, &s.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		s.Kind = models.SourceKind(kind)
		s.DeviceIndex = int(index.Int64)
		s.URL = url.String
		s.Host = host.String
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
