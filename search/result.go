package search

import (
	"iter"
	"sync"

	"github.com/wudi/pagetrans/document"
)

// Result is a search snapshot. Matches are computed on first use and are
// ordered by page index, region order, field and offset.
type Result struct {
	engine  *Engine
	query   Query
	m       *matcher
	pageIdx []int
	pages   []*document.Page

	mu      sync.Mutex
	version uint64
	matches []Match
	built   bool
	cursor  int
}

// Search prepares a result for q. The project is not scanned until the
// result is read.
func (e *Engine) Search(q Query) (*Result, error) {
	m, err := compile(q)
	if err != nil {
		return nil, err
	}
	idx, pages, err := e.pages(q.Pages)
	if err != nil {
		return nil, err
	}
	return &Result{
		engine:  e,
		query:   q,
		m:       m,
		pageIdx: idx,
		pages:   pages,
		version: e.project.Version(),
		cursor:  -1,
	}, nil
}

// Query returns the query the result was built for.
func (r *Result) Query() Query { return r.query }

// Stale reports whether the project changed since the result was built.
func (r *Result) Stale() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staleLocked()
}

func (r *Result) staleLocked() bool { return r.engine.project.Version() != r.version }

// scanRegion appends the matches of one region.
func (r *Result) scanRegion(dst []Match, page int, name string, index int, reg document.Region) []Match {
	for _, f := range r.query.Scope.fields() {
		text := reg.Data.Text(f)
		for _, loc := range r.m.find(text, 0) {
			dst = append(dst, Match{
				Page:     page,
				PageName: name,
				RegionID: reg.ID,
				Region:   index,
				Field:    f,
				Offset:   loc[0],
				Length:   loc[1] - loc[0],
				Text:     text[loc[0]:loc[1]],
			})
		}
	}
	return dst
}

// All yields the matches page by page without materializing them. The
// sequence is finite and can be restarted; it stops early if the project
// changes during iteration.
func (r *Result) All() iter.Seq[Match] {
	return func(yield func(Match) bool) {
		r.mu.Lock()
		version := r.version
		r.mu.Unlock()
		for i, p := range r.pages {
			var buf []Match
			for j, reg := range p.Regions() {
				if !reg.Active() {
					continue
				}
				buf = r.scanRegion(buf[:0], r.pageIdx[i], p.Name, j, reg)
				for _, m := range buf {
					if r.engine.project.Version() != version || !yield(m) {
						return
					}
				}
			}
		}
	}
}

func (r *Result) buildLocked() error {
	if r.staleLocked() {
		return ErrStale
	}
	if r.built {
		return nil
	}
	var out []Match
	for i, p := range r.pages {
		for j, reg := range p.Regions() {
			if reg.Active() {
				out = r.scanRegion(out, r.pageIdx[i], p.Name, j, reg)
			}
		}
	}
	if r.staleLocked() {
		return ErrStale
	}
	r.matches = out
	r.built = true
	return nil
}

// Matches returns every match.
func (r *Result) Matches() ([]Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.buildLocked(); err != nil {
		return nil, err
	}
	return append([]Match(nil), r.matches...), nil
}

// Len returns the number of matches.
func (r *Result) Len() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.buildLocked(); err != nil {
		return 0, err
	}
	return len(r.matches), nil
}

// Next moves to the following match, wrapping around at the end.
func (r *Result) Next() (Match, error) { return r.step(1) }

// Prev moves to the preceding match, wrapping around at the start.
func (r *Result) Prev() (Match, error) { return r.step(-1) }

func (r *Result) step(d int) (Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.buildLocked(); err != nil {
		return Match{}, err
	}
	n := len(r.matches)
	if n == 0 {
		return Match{}, ErrNoMatch
	}
	switch {
	case r.cursor < 0 && d > 0:
		r.cursor = 0
	case r.cursor < 0:
		r.cursor = n - 1
	default:
		r.cursor = ((r.cursor+d)%n + n) % n
	}
	return r.matches[r.cursor], nil
}

// Current returns the match the cursor is on.
func (r *Result) Current() (Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.buildLocked(); err != nil {
		return Match{}, err
	}
	if r.cursor < 0 || r.cursor >= len(r.matches) {
		return Match{}, ErrNoMatch
	}
	return r.matches[r.cursor], nil
}
