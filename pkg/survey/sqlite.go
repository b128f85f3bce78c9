package survey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS surveys (
	id         TEXT PRIMARY KEY,
	format     TEXT NOT NULL DEFAULT 'json',
	definition TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteSource loads definitions from a surveys table.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLiteSource opens (and if needed creates) the database at path.
func OpenSQLiteSource(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open survey db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create survey table: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Load implements Source.
func (s *SQLiteSource) Load(ctx context.Context, surveyID string) (*Survey, error) {
	if err := CheckID(surveyID); err != nil {
		return nil, err
	}
	var format, definition string
	err := s.db.QueryRowContext(ctx,
		`SELECT format, definition FROM surveys WHERE id = ?`, surveyID).Scan(&format, &definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, surveyID)
	}
	if err != nil {
		return nil, fmt.Errorf("query survey %q: %w", surveyID, err)
	}
	sv, err := Decode(surveyID, []byte(definition), Format(format))
	if err != nil {
		return nil, fmt.Errorf("load survey %q: %w", surveyID, err)
	}
	if err := checkDomain(sv); err != nil {
		return nil, err
	}
	return sv, nil
}

// Put stores a definition, replacing any previous one with the same ID.
// The definition is decoded and domain-checked first so malformed documents
// are never stored.
func (s *SQLiteSource) Put(ctx context.Context, surveyID string, definition []byte, format Format) error {
	if err := CheckID(surveyID); err != nil {
		return err
	}
	sv, err := Decode(surveyID, definition, format)
	if err != nil {
		return err
	}
	if err := checkDomain(sv); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO surveys (id, format, definition, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET format = excluded.format,
		   definition = excluded.definition, updated_at = excluded.updated_at`,
		surveyID, string(format), string(definition), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store survey %q: %w", surveyID, err)
	}
	return nil
}

// List returns the stored survey IDs in lexical order.
func (s *SQLiteSource) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM surveys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan survey id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
