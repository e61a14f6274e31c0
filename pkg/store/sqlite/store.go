// Package sqlite provides a SQLite-backed sheet store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
	"github.com/lemonberrylabs/sheetroll/pkg/store/sqlite/migrations"
	"github.com/lemonberrylabs/sheetroll/pkg/store/sqlitemigrate"
)

// Store persists sheets and libraries in SQLite as JSON documents.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite sheet store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateSheet implements store.Store.
func (s *Store) CreateSheet(ctx context.Context, id string, sh *sheet.Sheet) (*store.SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, fmt.Errorf("sheet is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = store.NewID()
	}
	cp := *sh
	cp.ID = id
	body, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO sheets (id, name, body, revision, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
		id, cp.Name, string(body), toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sheet '%s': %w", id, store.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	return s.GetSheet(ctx, id)
}

// GetSheet implements store.Store.
func (s *Store) GetSheet(ctx context.Context, id string) (*store.SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, body, revision, created_at, updated_at FROM sheets WHERE id = ?`, id)
	rec, err := scanSheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sheet '%s': %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sheet: %w", err)
	}
	return rec, nil
}

// ListSheets implements store.Store.
func (s *Store) ListSheets(ctx context.Context) ([]*store.SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, body, revision, created_at, updated_at FROM sheets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	defer rows.Close()

	result := []*store.SheetRecord{}
	for rows.Next() {
		rec, err := scanSheet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sheet: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sheets: %w", err)
	}
	return result, nil
}

// UpdateSheet implements store.Store.
func (s *Store) UpdateSheet(ctx context.Context, id string, sh *sheet.Sheet) (*store.SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, fmt.Errorf("sheet is required")
	}
	cp := *sh
	cp.ID = id
	body, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sheets SET name = ?, body = ?, revision = revision + 1, updated_at = ? WHERE id = ?`,
		cp.Name, string(body), toMillis(time.Now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update sheet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("sheet '%s': %w", id, store.ErrNotFound)
	}
	return s.GetSheet(ctx, id)
}

// DeleteSheet implements store.Store.
func (s *Store) DeleteSheet(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sheets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sheet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sheet '%s': %w", id, store.ErrNotFound)
	}
	return nil
}

// PutLibrary implements store.Store.
func (s *Store) PutLibrary(ctx context.Context, lib *sheet.Library) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lib == nil || strings.TrimSpace(lib.ID) == "" {
		return fmt.Errorf("library id is required")
	}
	body, err := json.Marshal(lib)
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO libraries (id, name, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, body = excluded.body, updated_at = excluded.updated_at`,
		lib.ID, lib.Name, string(body), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put library: %w", err)
	}
	return nil
}

// GetLibrary implements store.Store.
func (s *Store) GetLibrary(ctx context.Context, id string) (*sheet.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var body string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT body FROM libraries WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library '%s': %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get library: %w", err)
	}
	return decodeLibrary(body)
}

// ListLibraries implements store.Store.
func (s *Store) ListLibraries(ctx context.Context) ([]*sheet.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT body FROM libraries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()

	result := []*sheet.Library{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		lib, err := decodeLibrary(body)
		if err != nil {
			return nil, err
		}
		result = append(result, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate libraries: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSheet(row rowScanner) (*store.SheetRecord, error) {
	var (
		rec                  store.SheetRecord
		body                 string
		revision             int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&rec.ID, &body, &revision, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var sh sheet.Sheet
	if err := json.Unmarshal([]byte(body), &sh); err != nil {
		return nil, fmt.Errorf("decode sheet %s: %w", rec.ID, err)
	}
	rec.Sheet = &sh
	rec.Revision = store.FormatRevision(revision)
	rec.CreateTime = fromMillis(createdAt)
	rec.UpdateTime = fromMillis(updatedAt)
	return &rec, nil
}

func decodeLibrary(body string) (*sheet.Library, error) {
	var lib sheet.Library
	if err := json.Unmarshal([]byte(body), &lib); err != nil {
		return nil, fmt.Errorf("decode library: %w", err)
	}
	return &lib, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
