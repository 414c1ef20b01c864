package document

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrPageNotFound is returned for out-of-range page indexes or unknown names.
var ErrPageNotFound = errors.New("page not found")

// Project is an ordered sequence of pages plus save state.
type Project struct {
	ID   string
	Path string

	mu      sync.RWMutex
	pages   []*Page
	version atomic.Uint64
	dirty   atomic.Bool
}

// NewProject returns an empty, saved project.
func NewProject(path string) *Project {
	return &Project{ID: uuid.NewString(), Path: path}
}

// AddPage appends a page and returns its index.
func (p *Project) AddPage(pg *Page) int {
	pg.onChange = p.Touch
	p.mu.Lock()
	p.pages = append(p.pages, pg)
	n := len(p.pages) - 1
	p.mu.Unlock()
	p.Touch()
	return n
}

// Page returns the page at index i.
func (p *Project) Page(i int) (*Page, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.pages) {
		return nil, fmt.Errorf("page %d: %w", i, ErrPageNotFound)
	}
	return p.pages[i], nil
}

// PageByName returns the page with the given name and its index.
func (p *Project) PageByName(name string) (*Page, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, pg := range p.pages {
		if pg.Name == name {
			return pg, i, nil
		}
	}
	return nil, -1, fmt.Errorf("page %q: %w", name, ErrPageNotFound)
}

// Pages returns the pages in order.
func (p *Project) Pages() []*Page {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Page(nil), p.pages...)
}

func (p *Project) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pages)
}

// Empty reports whether the project has no pages.
func (p *Project) Empty() bool { return p.Len() == 0 }

// Version is bumped on every mutation of any page.
func (p *Project) Version() uint64 { return p.version.Load() }

// Touch records a mutation: the version advances and the project becomes
// unsaved.
func (p *Project) Touch() {
	p.version.Add(1)
	p.dirty.Store(true)
}

// Dirty reports whether the project has unsaved changes.
func (p *Project) Dirty() bool { return p.dirty.Load() }

// MarkSaved clears the dirty flag.
func (p *Project) MarkSaved() { p.dirty.Store(false) }

// SaveStatus returns "unsaved" or "saved".
func (p *Project) SaveStatus() string {
	if p.Dirty() {
		return "unsaved"
	}
	return "saved"
}

// Snapshot returns detached copies of all pages.
func (p *Project) Snapshot() []PageData {
	pages := p.Pages()
	out := make([]PageData, len(pages))
	for i, pg := range pages {
		out[i] = pg.Data()
	}
	return out
}
