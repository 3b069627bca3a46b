// Package favorites persists the saved wallet addresses and the UI theme in
// a small JSON document on disk.
package favorites

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

var (
	ErrEmptyAddress = errors.New("address is empty")
	ErrAlreadySaved = errors.New("address already saved")
	ErrNotSaved     = errors.New("address not saved")
	ErrInvalidTheme = errors.New("theme must be light or dark")
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type document struct {
	SavedAddresses []string `json:"savedAddresses"`
	Theme          string   `json:"theme"`
}

// Store is safe for concurrent use. Every mutation rewrites the whole file
// atomically.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads path, starting from an empty list and the light theme when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: document{SavedAddresses: []string{}, Theme: ThemeLight}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read favorites %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parse favorites %s: %w", path, err)
	}
	if s.doc.SavedAddresses == nil {
		s.doc.SavedAddresses = []string{}
	}
	if s.doc.Theme != ThemeDark {
		s.doc.Theme = ThemeLight
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// List returns the saved addresses in insertion order.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.doc.SavedAddresses...)
}

func (s *Store) Contains(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(strings.TrimSpace(address)) >= 0
}

func (s *Store) Add(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrEmptyAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(address) >= 0 {
		return ErrAlreadySaved
	}
	next := s.doc
	next.SavedAddresses = append(append([]string(nil), s.doc.SavedAddresses...), address)
	return s.commitLocked(next)
}

func (s *Store) Remove(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return ErrEmptyAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(address)
	if i < 0 {
		return ErrNotSaved
	}
	next := s.doc
	next.SavedAddresses = make([]string, 0, len(s.doc.SavedAddresses)-1)
	next.SavedAddresses = append(next.SavedAddresses, s.doc.SavedAddresses[:i]...)
	next.SavedAddresses = append(next.SavedAddresses, s.doc.SavedAddresses[i+1:]...)
	return s.commitLocked(next)
}

func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Theme
}

func (s *Store) SetTheme(theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.doc
	next.Theme = theme
	return s.commitLocked(next)
}

// ToggleTheme flips between light and dark and returns the new theme.
func (s *Store) ToggleTheme() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.doc
	next.Theme = ThemeDark
	if s.doc.Theme == ThemeDark {
		next.Theme = ThemeLight
	}
	if err := s.commitLocked(next); err != nil {
		return s.doc.Theme, err
	}
	return next.Theme, nil
}

func (s *Store) indexLocked(address string) int {
	for i, a := range s.doc.SavedAddresses {
		if a == address {
			return i
		}
	}
	return -1
}

// commitLocked writes next to disk and only then makes it the in-memory state.
func (s *Store) commitLocked(next document) error {
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create favorites dir: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write favorites %s: %w", s.path, err)
	}
	s.doc = next
	return nil
}

// Label shortens an address to its first and last eight characters.
func Label(address string) string {
	if len(address) <= 16 {
		return address
	}
	return address[:8] + "..." + address[len(address)-8:]
}
