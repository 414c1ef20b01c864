package history

import (
	"fmt"
	"sync"

	"github.com/wudi/pagetrans/document"
)

// Scope selects whether pages share one log or each keep their own.
type Scope int

const (
	ScopePage Scope = iota
	ScopeProject
)

func (s Scope) String() string {
	if s == ScopeProject {
		return "project"
	}
	return "page"
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Scope) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "page":
		*s = ScopePage
	case "project":
		*s = ScopeProject
	default:
		return fmt.Errorf("unknown undo scope %q", b)
	}
	return nil
}

// Histories hands out the log responsible for a page.
type Histories struct {
	scope   Scope
	limit   int
	mu      sync.Mutex
	project *Log
	pages   map[*document.Page]*Log
}

// NewHistories returns histories with the given scope and per-log limit.
func NewHistories(scope Scope, limit int) *Histories {
	return &Histories{
		scope:   scope,
		limit:   limit,
		project: NewLog(limit),
		pages:   make(map[*document.Page]*Log),
	}
}

func (h *Histories) Scope() Scope { return h.scope }

// For returns the log that records commands on p.
func (h *Histories) For(p *document.Page) *Log {
	if h.scope == ScopeProject {
		return h.project
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.pages[p]
	if !ok {
		l = NewLog(h.limit)
		h.pages[p] = l
	}
	return l
}

// Clear drops the history of the given pages. With project scope the shared
// log is cleared.
func (h *Histories) Clear(pages ...*document.Page) {
	if h.scope == ScopeProject {
		if len(pages) > 0 {
			h.project.Clear()
		}
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range pages {
		if l, ok := h.pages[p]; ok {
			l.Clear()
		}
	}
}

// ClearAll drops every history.
func (h *Histories) ClearAll() {
	h.project.Clear()
	h.mu.Lock()
	for _, l := range h.pages {
		l.Clear()
	}
	h.mu.Unlock()
}

// DoBatch records cmds as one undo step per log: a single step with project
// scope, one per page otherwise. If a log rejects its batch, batches
// already recorded are undone.
func (h *Histories) DoBatch(label string, cmds []Command) error {
	var order []*Log
	batches := make(map[*Log]*Batch)
	for _, c := range cmds {
		pages := c.Pages()
		if len(pages) == 0 {
			continue
		}
		l := h.For(pages[0])
		b, ok := batches[l]
		if !ok {
			b = &Batch{Label: label}
			batches[l] = b
			order = append(order, l)
		}
		b.Cmds = append(b.Cmds, c)
	}
	for i, l := range order {
		if err := l.Do(batches[l]); err != nil {
			for j := i - 1; j >= 0; j-- {
				_, _ = order[j].Undo()
			}
			return err
		}
	}
	return nil
}
