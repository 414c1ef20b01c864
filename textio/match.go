package textio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/history"
	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/recovery"
)

var (
	errEntryCount   = errors.New("entry count differs from active regions")
	errNotInProject = errors.New("page not in project")
	errNotInFile    = errors.New("page not in file")
	errDuplicate    = errors.New("page listed more than once")
)

// Edit is one text change produced by an import.
type Edit struct {
	Page      *document.Page
	PageIndex int
	RegionID  string
	Old, New  string
}

// Report describes how an imported file lines up with the project.
//
// Matched pages exist in both with one entry per active region. Missing
// pages exist in both but the entry count differs. Unexpected pages are in
// the file only. Unmatched pages are in the project only.
type Report struct {
	Field      document.TextField
	Matched    []string
	Missing    []string
	Unexpected []string
	Unmatched  []string
	Edits      []Edit
}

// OK reports whether every page matched in both directions.
func (r *Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0 && len(r.Unmatched) == 0
}

// Err returns an ImportMismatchError when the report is not OK.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	return &ImportMismatchError{Report: r}
}

// Commands returns one undoable text edit per change, in page order.
func (r *Report) Commands() []history.Command {
	cmds := make([]history.Command, 0, len(r.Edits))
	for _, e := range r.Edits {
		cmds = append(cmds, &history.EditText{Page: e.Page, RegionID: e.RegionID, Field: r.Field, Old: e.Old, New: e.New})
	}
	return cmds
}

// Apply writes the edits directly to the pages, bypassing history.
func (r *Report) Apply() error {
	for _, c := range r.Commands() {
		if err := c.Apply(); err != nil {
			return err
		}
	}
	return nil
}

// ImportMismatchError reports a partial structural mismatch.
type ImportMismatchError struct {
	Report *Report
}

func (e *ImportMismatchError) Error() string {
	var parts []string
	add := func(label string, names []string) {
		if len(names) > 0 {
			parts = append(parts, label+": "+strings.Join(names, ", "))
		}
	}
	add("missing pages", e.Report.Missing)
	add("unexpected pages", e.Report.Unexpected)
	add("unmatched pages", e.Report.Unmatched)
	return "imported text not fully matched with project (" + strings.Join(parts, "; ") + ")"
}

type matchConfig struct {
	strategy recovery.Strategy
	logger   observability.Logger
}

type MatchOption func(*matchConfig)

// WithStrategy sets how mismatches are handled. The default skips
// mismatched pages and reports them.
func WithStrategy(s recovery.Strategy) MatchOption  { return func(c *matchConfig) { c.strategy = s } }
func WithLogger(l observability.Logger) MatchOption { return func(c *matchConfig) { c.logger = l } }

// Match computes the correspondence between parsed pages and the project
// and the edits that would write the file's text into field. The project is
// not modified. Under a failing strategy a mismatch returns the report
// wrapped in an ImportMismatchError and no edits.
func Match(ctx context.Context, p *document.Project, pages []PageText, field document.TextField, opts ...MatchOption) (*Report, error) {
	cfg := matchConfig{strategy: recovery.NewLenientStrategy(), logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	rep := &Report{Field: field}
	byName := make(map[string]PageText, len(pages))
	failed := false
	mismatch := func(err error, page string, entry int) {
		cfg.logger.Warn("import mismatch",
			observability.String("page", page),
			observability.Int("entry", entry),
			observability.Error("error", err))
		if cfg.strategy.OnError(ctx, err, recovery.Location{Component: "textio", Page: page, Entry: entry}) == recovery.ActionFail {
			failed = true
		}
	}

	for _, pt := range pages {
		if _, dup := byName[pt.Name]; dup {
			rep.Unexpected = append(rep.Unexpected, pt.Name)
			mismatch(errDuplicate, pt.Name, -1)
			continue
		}
		if _, _, err := p.PageByName(pt.Name); err != nil {
			rep.Unexpected = append(rep.Unexpected, pt.Name)
			mismatch(errNotInProject, pt.Name, -1)
		}
		byName[pt.Name] = pt
	}

	for i, pg := range p.Pages() {
		name := pg.Data().Name
		pt, ok := byName[name]
		if !ok {
			rep.Unmatched = append(rep.Unmatched, name)
			mismatch(errNotInFile, name, -1)
			continue
		}
		rs := pg.ActiveRegions()
		if len(rs) != len(pt.Entries) {
			rep.Missing = append(rep.Missing, name)
			mismatch(fmt.Errorf("%w: %d entries, %d regions", errEntryCount, len(pt.Entries), len(rs)), name, min(len(rs), len(pt.Entries)))
			continue
		}
		rep.Matched = append(rep.Matched, name)
		for j, r := range rs {
			if old := r.Data.Text(field); old != pt.Entries[j] {
				rep.Edits = append(rep.Edits, Edit{Page: pg, PageIndex: i, RegionID: r.ID, Old: old, New: pt.Entries[j]})
			}
		}
	}

	if failed {
		rep.Edits = nil
		return rep, &ImportMismatchError{Report: rep}
	}
	return rep, nil
}

// Import reads path and matches it against the project.
func Import(ctx context.Context, path string, p *document.Project, field document.TextField, opts ...MatchOption) (*Report, error) {
	pages, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Match(ctx, p, pages, field, opts...)
}
