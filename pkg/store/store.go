// Package store provides storage for character sheets and property template
// libraries. New returns the in-memory implementation; package
// store/sqlite provides a persistent one.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
)

var (
	// ErrNotFound is returned when a sheet or library does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when creating a sheet whose id is taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// SheetRecord is a stored sheet with its bookkeeping fields.
type SheetRecord struct {
	ID         string       `json:"id"`
	Sheet      *sheet.Sheet `json:"sheet"`
	Revision   string       `json:"revisionId"`
	CreateTime time.Time    `json:"createTime"`
	UpdateTime time.Time    `json:"updateTime"`
}

// Store persists sheets and libraries.
type Store interface {
	// CreateSheet stores s under id, or under a generated id when id is empty.
	CreateSheet(ctx context.Context, id string, s *sheet.Sheet) (*SheetRecord, error)
	GetSheet(ctx context.Context, id string) (*SheetRecord, error)
	// ListSheets returns every sheet ordered by id.
	ListSheets(ctx context.Context) ([]*SheetRecord, error)
	// UpdateSheet replaces the sheet stored under id and bumps its revision.
	UpdateSheet(ctx context.Context, id string, s *sheet.Sheet) (*SheetRecord, error)
	DeleteSheet(ctx context.Context, id string) error

	// PutLibrary creates or replaces a library.
	PutLibrary(ctx context.Context, lib *sheet.Library) error
	GetLibrary(ctx context.Context, id string) (*sheet.Library, error)
	ListLibraries(ctx context.Context) ([]*sheet.Library, error)
}

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}

// FormatRevision renders the n-th revision of a record.
func FormatRevision(n int64) string {
	return fmt.Sprintf("%06d-000", n)
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	sheets    map[string]*SheetRecord
	libraries map[string]*sheet.Library

	// Counter for generating revision ids
	revCounter int64
}

// New creates a new empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{
		sheets:    make(map[string]*SheetRecord),
		libraries: make(map[string]*sheet.Library),
	}
}

// CreateSheet implements Store.
func (s *MemoryStore) CreateSheet(ctx context.Context, id string, sh *sheet.Sheet) (*SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, fmt.Errorf("sheet is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sheets[id]; exists {
		return nil, fmt.Errorf("sheet '%s': %w", id, ErrAlreadyExists)
	}

	s.revCounter++
	now := time.Now().UTC()
	rec := &SheetRecord{
		ID:         id,
		Sheet:      withID(sh, id),
		Revision:   FormatRevision(s.revCounter),
		CreateTime: now,
		UpdateTime: now,
	}
	s.sheets[id] = rec
	return copyRecord(rec), nil
}

// GetSheet implements Store.
func (s *MemoryStore) GetSheet(ctx context.Context, id string) (*SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sheets[id]
	if !ok {
		return nil, fmt.Errorf("sheet '%s': %w", id, ErrNotFound)
	}
	return copyRecord(rec), nil
}

// ListSheets implements Store.
func (s *MemoryStore) ListSheets(ctx context.Context) ([]*SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SheetRecord, 0, len(s.sheets))
	for _, rec := range s.sheets {
		result = append(result, copyRecord(rec))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateSheet implements Store.
func (s *MemoryStore) UpdateSheet(ctx context.Context, id string, sh *sheet.Sheet) (*SheetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, fmt.Errorf("sheet is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sheets[id]
	if !ok {
		return nil, fmt.Errorf("sheet '%s': %w", id, ErrNotFound)
	}

	s.revCounter++
	rec.Sheet = withID(sh, id)
	rec.Revision = FormatRevision(s.revCounter)
	rec.UpdateTime = time.Now().UTC()
	return copyRecord(rec), nil
}

// DeleteSheet implements Store.
func (s *MemoryStore) DeleteSheet(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sheets[id]; !ok {
		return fmt.Errorf("sheet '%s': %w", id, ErrNotFound)
	}
	delete(s.sheets, id)
	return nil
}

// PutLibrary implements Store.
func (s *MemoryStore) PutLibrary(ctx context.Context, lib *sheet.Library) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lib == nil || strings.TrimSpace(lib.ID) == "" {
		return fmt.Errorf("library id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.libraries[lib.ID] = lib.Clone()
	return nil
}

// GetLibrary implements Store.
func (s *MemoryStore) GetLibrary(ctx context.Context, id string) (*sheet.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	lib, ok := s.libraries[id]
	if !ok {
		return nil, fmt.Errorf("library '%s': %w", id, ErrNotFound)
	}
	return lib.Clone(), nil
}

// ListLibraries implements Store.
func (s *MemoryStore) ListLibraries(ctx context.Context) ([]*sheet.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sheet.Library, 0, len(s.libraries))
	for _, lib := range s.libraries {
		result = append(result, lib.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// withID returns a deep copy of sh carrying id.
func withID(sh *sheet.Sheet, id string) *sheet.Sheet {
	cp := sh.Clone()
	cp.ID = id
	return cp
}

func copyRecord(rec *SheetRecord) *SheetRecord {
	cp := *rec
	cp.Sheet = withID(rec.Sheet, rec.ID)
	return &cp
}
