// Package history keeps the most recently inspected documents in a JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogulcanaydogan/attestview/internal/jsontree"
	"github.com/ogulcanaydogan/attestview/internal/pattern"
	"github.com/ogulcanaydogan/attestview/internal/store"
)

const (
	DefaultLimit = 20
	previewLen   = 50
)

var ErrNotFound = errors.New("history entry not found")

// Entry is one saved document. Timestamp is Unix milliseconds.
type Entry struct {
	ID        string       `json:"id"`
	JSON      string       `json:"json"`
	Timestamp int64        `json:"timestamp"`
	Type      pattern.Type `json:"type,omitempty"`
}

// Store is a file-backed history list, newest first.
type Store struct {
	path   string
	limit  int
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu sync.Mutex
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open returns a Store backed by path. Nothing is read until first use.
func Open(path string, limit int, opts ...Option) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Store{
		path:   path,
		limit:  limit,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Path() string { return s.path }

// Add puts raw at the front of the history. An entry with the same text is
// moved instead of duplicated. UNKNOWN documents are stored untagged.
func (s *Store) Add(raw string, typ pattern.Type) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	e := Entry{ID: s.newID(), JSON: raw, Timestamp: s.now().UnixMilli()}
	if typ != pattern.TypeUnknown {
		e.Type = typ
	}
	kept := make([]Entry, 0, len(entries)+1)
	kept = append(kept, e)
	for _, old := range entries {
		if old.JSON == raw {
			continue
		}
		kept = append(kept, old)
	}
	if len(kept) > s.limit {
		kept = kept[:s.limit]
	}
	if err := s.save(kept); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get looks an entry up by ID.
func (s *Store) Get(id string) (Entry, error) {
	for _, e := range s.List() {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Remove deletes the entry at index, counting from the newest.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("%w: index %d of %d", ErrNotFound, index, len(entries))
	}
	entries = append(entries[:index], entries[index+1:]...)
	return s.save(entries)
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save([]Entry{})
}

// load reads the history file. A missing or unreadable file is an empty
// history.
func (s *Store) load() []Entry {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("history file unreadable", zap.String("path", s.path), zap.Error(err))
		}
		return []Entry{}
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("history file corrupt, starting empty", zap.String("path", s.path), zap.Error(err))
		return []Entry{}
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

func (s *Store) save(entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := store.WriteFile(s.path, raw); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Preview is a one-line summary of e: the compact JSON form, or the raw
// text if it does not parse, cut to 50 characters.
func Preview(e Entry) string {
	text := e.JSON
	if v, err := jsontree.ParseString(e.JSON); err == nil {
		if compact, err := jsontree.Marshal(v); err == nil {
			text = string(compact)
		}
	}
	return truncate(text)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen-3]) + "..."
}

// FormatTimestamp renders e's timestamp in local time.
func FormatTimestamp(e Entry) string {
	return time.UnixMilli(e.Timestamp).Format(time.TimeOnly)
}

// Label is the list label for e.
func Label(e Entry) string {
	var b strings.Builder
	if e.Type != "" {
		b.WriteString("[")
		b.WriteString(string(e.Type))
		b.WriteString("] ")
	}
	b.WriteString(Preview(e))
	return b.String()
}
