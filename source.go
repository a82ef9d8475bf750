package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Snapshot is one loaded version of a source file
type Snapshot struct {
	Path     string
	Language Language
	Text     []byte
	Hash     string
}

// Source holds the current text of the file being extracted from and
// notifies subscribers when it is reloaded
type Source struct {
	path     string
	language Language

	mu          sync.RWMutex
	current     *Snapshot
	subscribers map[int]chan *Snapshot
	nextID      int
}

// LoadSource reads a source file once. lang may be empty to detect it from
// the extension.
func LoadSource(path string, lang Language) (*Source, error) {
	lang, err := resolveLanguage(path, lang)
	if err != nil {
		return nil, err
	}

	s := &Source{
		path:        path,
		language:    lang,
		subscribers: make(map[int]chan *Snapshot),
	}
	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	s.current = snap
	return s, nil
}

func (s *Source) read() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", s.path, err)
	}
	text := normalizeSource(data)
	return &Snapshot{
		Path:     s.path,
		Language: s.language,
		Text:     text,
		Hash:     contentHash(text),
	}, nil
}

// Current returns the latest snapshot
func (s *Source) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the file. Subscribers are notified only when the content
// changed; on error the previous snapshot stays current.
func (s *Source) Reload(ctx context.Context) error {
	snap, err := s.read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.current != nil && s.current.Hash == snap.Hash {
		s.mu.Unlock()
		return nil
	}
	s.current = snap
	subs := make([]chan *Snapshot, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		// drop the stale pending snapshot, keep the newest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving every new snapshot and a function
// that cancels the subscription
func (s *Source) Subscribe() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Watch reloads the source whenever its file changes until ctx is done.
// The directory is watched so editors that replace the file still trigger.
func (s *Source) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.path), err)
	}

	go s.watch(ctx, watcher, debounce)
	return nil
}

func (s *Source) watch(ctx context.Context, watcher *fsnotify.Watcher, debounce time.Duration) {
	defer watcher.Close()

	target := filepath.Clean(s.path)
	var debounceTimer *time.Timer
	reloadCh := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			if err := s.Reload(ctx); err != nil {
				log.Printf("Error reloading %s: %v (keeping old source)", s.path, err)
				continue
			}
			log.Printf("Reloaded %s", s.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Source watcher error: %v", err)
		}
	}
}

// contentHash identifies a source text in caches
func contentHash(text []byte) string {
	sum := sha256.Sum256(text)
	return hex.EncodeToString(sum[:])
}
