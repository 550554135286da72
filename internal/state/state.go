// Package state persists where the reader left each book. Positions are
// stored as logical positions so they survive reflow; page numbers are
// never written.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/metcalfc/shu/internal/book"
)

const stateFileName = "reading_positions.json"

// Bookmark is a named position in a book.
type Bookmark struct {
	Name     string               `json:"name"`
	Position book.LogicalPosition `json:"position"`
	Created  time.Time            `json:"created"`
}

// ReadingState stores the last position and bookmarks of a single book
type ReadingState struct {
	Title     string               `json:"title,omitempty"`
	Position  book.LogicalPosition `json:"position"`
	Bookmarks []Bookmark           `json:"bookmarks,omitempty"`
}

// StateStore manages persistent reading state
type StateStore struct {
	path string
	data map[string]ReadingState
	mu   sync.RWMutex
}

// NewStateStore creates or loads state from XDG_STATE_HOME/shu/
func NewStateStore() (*StateStore, error) {
	dir := getStateDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	store := &StateStore{
		path: filepath.Join(dir, stateFileName),
		data: make(map[string]ReadingState),
	}
	if err := store.load(); err != nil {
		// Non-fatal - start with empty state
		store.data = make(map[string]ReadingState)
	}
	return store, nil
}

// getStateDir returns XDG_STATE_HOME/shu or ~/.local/state/shu
func getStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "shu")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "shu")
}

// GetPosition returns the saved position for a document, or the start of
// the book if none was saved.
func (s *StateStore) GetPosition(docID string) (book.LogicalPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[docID]
	return st.Position, ok
}

// SetPosition saves the last read position of a document.
func (s *StateStore) SetPosition(doc *book.Document, pos book.LogicalPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.data[doc.ID]
	st.Title = doc.Title
	st.Position = pos
	s.data[doc.ID] = st
	return s.save()
}

// AddBookmark appends a bookmark. An empty name is replaced by the position.
func (s *StateStore) AddBookmark(doc *book.Document, name string, pos book.LogicalPosition) (Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		name = pos.String()
	}
	bm := Bookmark{Name: name, Position: pos, Created: time.Now().UTC()}
	st := s.data[doc.ID]
	st.Title = doc.Title
	st.Bookmarks = append(st.Bookmarks, bm)
	s.data[doc.ID] = st
	return bm, s.save()
}

// Bookmarks returns a copy of a document's bookmarks, oldest first.
func (s *StateStore) Bookmarks(docID string) []Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Bookmark(nil), s.data[docID].Bookmarks...)
}

// RemoveBookmark deletes the i-th bookmark of a document.
func (s *StateStore) RemoveBookmark(docID string, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[docID]
	if !ok || i < 0 || i >= len(st.Bookmarks) {
		return fmt.Errorf("bookmark %d: %w", i, book.ErrOutOfRange)
	}
	st.Bookmarks = append(st.Bookmarks[:i:i], st.Bookmarks[i+1:]...)
	s.data[docID] = st
	return s.save()
}

// Clear removes all saved state for a document
func (s *StateStore) Clear(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, docID)
	return s.save()
}

func (s *StateStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.data)
}

func (s *StateStore) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}
