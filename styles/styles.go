// Package styles manages named text style presets.
//
// A Set holds the presets in display order. At most one preset is the
// global font format; its style is applied to newly created regions.
package styles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/wudi/pagetrans/document"
)

var (
	ErrNotFound  = errors.New("preset not found")
	ErrExists    = errors.New("preset already exists")
	ErrEmptyName = errors.New("preset name is empty")
)

// Preset is a named FontStyle snapshot.
type Preset struct {
	Name  string             `json:"name"`
	Style document.FontStyle `json:"style"`
}

// Set is an ordered collection of presets. It is safe for concurrent use.
type Set struct {
	mu      sync.RWMutex
	presets []Preset
	global  string
}

// NewSet returns an empty set.
func NewSet() *Set { return &Set{} }

func (s *Set) indexLocked(name string) int {
	return slices.IndexFunc(s.presets, func(p Preset) bool { return p.Name == name })
}

// Add appends a new preset.
func (s *Set) Add(name string, style document.FontStyle) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(name) >= 0 {
		return fmt.Errorf("%q: %w", name, ErrExists)
	}
	s.presets = append(s.presets, Preset{Name: name, Style: style.Clone()})
	return nil
}

// Remove deletes a preset. Removing the global preset clears the global mark.
func (s *Set) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(name)
	if i < 0 {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	s.presets = slices.Delete(s.presets, i, i+1)
	if s.global == name {
		s.global = ""
	}
	return nil
}

// RemoveAll deletes every preset.
func (s *Set) RemoveAll() {
	s.mu.Lock()
	s.presets = nil
	s.global = ""
	s.mu.Unlock()
}

// Rename changes a preset's name, keeping its position and global mark.
func (s *Set) Rename(from, to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(from)
	if i < 0 {
		return fmt.Errorf("%q: %w", from, ErrNotFound)
	}
	if from == to {
		return nil
	}
	if s.indexLocked(to) >= 0 {
		return fmt.Errorf("%q: %w", to, ErrExists)
	}
	s.presets[i].Name = to
	if s.global == from {
		s.global = to
	}
	return nil
}

// UpdateFrom overwrites a preset's style, typically with the active region's.
func (s *Set) UpdateFrom(name string, style document.FontStyle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(name)
	if i < 0 {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	s.presets[i].Style = style.Clone()
	return nil
}

// Get returns a copy of the named preset.
func (s *Set) Get(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(name)
	if i < 0 {
		return Preset{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	p := s.presets[i]
	p.Style = p.Style.Clone()
	return p, nil
}

// List returns copies of all presets in order.
func (s *Set) List() []Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Preset, len(s.presets))
	for i, p := range s.presets {
		out[i] = Preset{Name: p.Name, Style: p.Style.Clone()}
	}
	return out
}

// SetGlobal marks name as the global font format. An empty name clears it.
func (s *Set) SetGlobal(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" && s.indexLocked(name) < 0 {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	s.global = name
	return nil
}

// Global returns the name of the global preset, or "".
func (s *Set) Global() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global
}

// Default returns the style for new regions: the global preset's style if
// one is set, document.DefaultStyle otherwise.
func (s *Set) Default() document.FontStyle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(s.global); s.global != "" && i >= 0 {
		return s.presets[i].Style.Clone()
	}
	return document.DefaultStyle()
}

// File is the on-disk form of a preset set.
type File struct {
	Global  string   `json:"global,omitempty"`
	Presets []Preset `json:"presets"`
}

// Snapshot returns the set as a File.
func (s *Set) Snapshot() File {
	return File{Global: s.Global(), Presets: s.List()}
}

// Restore replaces the set's content with f. Duplicate names are rejected
// and leave the set unchanged.
func (s *Set) Restore(f File) error {
	seen := make(map[string]bool, len(f.Presets))
	presets := make([]Preset, 0, len(f.Presets))
	for _, p := range f.Presets {
		if p.Name == "" {
			return ErrEmptyName
		}
		if seen[p.Name] {
			return fmt.Errorf("%q: %w", p.Name, ErrExists)
		}
		seen[p.Name] = true
		presets = append(presets, Preset{Name: p.Name, Style: p.Style.Clone()})
	}
	if f.Global != "" && !seen[f.Global] {
		return fmt.Errorf("global %q: %w", f.Global, ErrNotFound)
	}
	s.mu.Lock()
	s.presets = presets
	s.global = f.Global
	s.mu.Unlock()
	return nil
}

// Encode writes the set as indented JSON.
func (s *Set) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Snapshot())
}

// Decode replaces the set with presets read from r.
func (s *Set) Decode(r io.Reader) error {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return fmt.Errorf("decode presets: %w", err)
	}
	return s.Restore(f)
}

// Export writes the preset file at path.
func (s *Set) Export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Import loads the preset file at path.
func (s *Set) Import(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.Decode(f)
}
