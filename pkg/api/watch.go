package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lemonberrylabs/sheetroll/pkg/parser"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
)

// WatchDebounce is how long a sheet file must stay unchanged before it is
// reloaded.
const WatchDebounce = 100 * time.Millisecond

var validSheetID = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// sheetIDForFile returns the sheet id for a sheet file name, or "" when the
// file is not a sheet document.
func sheetIDForFile(name string) string {
	ext := filepath.Ext(name)
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return ""
	}
	id := strings.ToLower(strings.TrimSuffix(filepath.Base(name), ext))
	if !validSheetID.MatchString(id) || len(id) > 128 {
		return ""
	}
	return id
}

// LoadDir loads all .yaml, .yml and .json sheet files from dir. The file
// name (sans extension, lowercased) becomes the sheet id; existing sheets
// with that id are replaced. Files that fail to parse are skipped.
func (s *Server) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading sheets directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := s.loadFile(ctx, filepath.Join(dir, entry.Name())); err != nil {
			s.log.Warn().Err(err).Str("file", entry.Name()).Msg("skipping sheet file")
			continue
		}
		if sheetIDForFile(entry.Name()) != "" {
			loaded++
		}
	}

	s.log.Info().Int("count", loaded).Str("dir", dir).Msg("loaded sheets")
	return loaded, nil
}

// loadFile parses one sheet file and stores it under its file-derived id.
// Non-sheet files are ignored.
func (s *Server) loadFile(ctx context.Context, path string) error {
	id := sheetIDForFile(path)
	if id == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	sh, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	if _, err := s.store.UpdateSheet(ctx, id, sh); err == nil {
		s.log.Info().Str("sheet", id).Msg("reloaded sheet")
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if _, err := s.store.CreateSheet(ctx, id, sh); err != nil {
		return err
	}
	s.log.Info().Str("sheet", id).Msg("loaded sheet")
	return nil
}

// WatchDir loads dir and then keeps the store in sync with it until ctx is
// done: written or created files are reloaded once they settle, removed
// files delete their sheet.
func (s *Server) WatchDir(ctx context.Context, dir string) error {
	if _, err := s.LoadDir(ctx, dir); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go s.watchLoop(ctx, w)
	return nil
}

func (s *Server) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			id := sheetIDForFile(event.Name)
			if id == "" {
				continue
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := s.store.DeleteSheet(ctx, id); err == nil {
					s.log.Info().Str("sheet", id).Msg("removed sheet")
				}
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Reload once the file has been quiet for WatchDebounce.
			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(WatchDebounce, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				if err := s.loadFile(ctx, path); err != nil {
					s.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("could not reload sheet")
				}
			})
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Error().Err(err).Msg("watcher error")
		}
	}
}
