package search

import (
	"fmt"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/history"
	"github.com/wudi/pagetrans/observability"
)

// ReplaceOne substitutes text at m, records the edit as one undoable command
// and refreshes the remaining matches of the same region field. Matches that
// overlap the inserted text are discarded. The cursor is left so that Next
// returns the first match after the replacement.
func (r *Result) ReplaceOne(m Match, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.buildLocked(); err != nil {
		return err
	}
	start, end := r.blockLocked(m)
	pos := -1
	for i := start; i < end; i++ {
		if r.matches[i].Offset == m.Offset && r.matches[i].Length == m.Length {
			pos = i
			break
		}
	}
	if pos < 0 {
		return errForeignMatch
	}

	p, err := r.engine.project.Page(m.Page)
	if err != nil {
		return err
	}
	reg, _, err := p.Region(m.RegionID)
	if err != nil {
		return err
	}
	old := reg.Data.Text(m.Field)
	var loc []int
	for _, l := range r.m.find(old, m.Offset) {
		if l[0] == m.Offset && l[1] == m.Offset+m.Length {
			loc = l
			break
		}
	}
	if loc == nil {
		return ErrStale
	}
	repl := r.m.expand(old, loc, text)
	updated := old[:loc[0]] + repl + old[loc[1]:]
	cmd := &history.EditText{Page: p, RegionID: m.RegionID, Field: m.Field, Old: old, New: updated}
	if err := r.engine.histories.For(p).Do(cmd); err != nil {
		return err
	}
	r.version = r.engine.project.Version()

	insEnd := loc[0] + len(repl)
	var fresh []Match
	next := 0
	for _, l := range r.m.find(updated, 0) {
		if l[0] < insEnd && l[1] > loc[0] {
			continue
		}
		if l[1] <= loc[0] {
			next++
		}
		fresh = append(fresh, Match{
			Page:     m.Page,
			PageName: m.PageName,
			RegionID: m.RegionID,
			Region:   m.Region,
			Field:    m.Field,
			Offset:   l[0],
			Length:   l[1] - l[0],
			Text:     updated[l[0]:l[1]],
		})
	}
	rest := append(fresh, r.matches[end:]...)
	r.matches = append(r.matches[:start:start], rest...)
	r.cursor = start + next - 1
	return nil
}

// blockLocked returns the bounds of the matches sharing m's region field.
func (r *Result) blockLocked(m Match) (int, int) {
	same := func(o Match) bool {
		return o.Page == m.Page && o.RegionID == m.RegionID && o.Field == m.Field
	}
	start := 0
	for start < len(r.matches) && !same(r.matches[start]) {
		start++
	}
	end := start
	for end < len(r.matches) && same(r.matches[end]) {
		end++
	}
	return start, end
}

// ReplaceReport summarizes a replace-all.
type ReplaceReport struct {
	Replaced int
	Regions  int
	Pages    []int
}

// ReplaceAll substitutes every match of q. Without rerender the edits are
// recorded as one undoable command per history log. With rerender the edits
// bypass history, the histories of affected pages are cleared and the
// rerender hook runs on them; this cannot be undone and requires
// destructive to be set.
func (e *Engine) ReplaceAll(q Query, replacement string, rerender, destructive bool) (ReplaceReport, error) {
	if rerender && !destructive {
		return ReplaceReport{}, ErrConfirmationRequired
	}
	m, err := compile(q)
	if err != nil {
		return ReplaceReport{}, err
	}
	idx, pages, err := e.pages(q.Pages)
	if err != nil {
		return ReplaceReport{}, err
	}
	for _, p := range pages {
		if p.Busy() {
			return ReplaceReport{}, fmt.Errorf("page %s: %w", p.Name, document.ErrPageBusy)
		}
	}

	var report ReplaceReport
	var affected []*document.Page
	perPage := make(map[*document.Page][]history.Command)
	for i, p := range pages {
		var cmds []history.Command
		for _, reg := range p.ActiveRegions() {
			touched := false
			for _, f := range q.Scope.fields() {
				old := reg.Data.Text(f)
				updated, n := m.replaceAll(old, replacement)
				report.Replaced += n
				if updated == old {
					continue
				}
				touched = true
				cmds = append(cmds, &history.EditText{Page: p, RegionID: reg.ID, Field: f, Old: old, New: updated})
			}
			if touched {
				report.Regions++
			}
		}
		if len(cmds) > 0 {
			perPage[p] = cmds
			affected = append(affected, p)
			report.Pages = append(report.Pages, idx[i])
		}
	}
	if len(affected) == 0 {
		return report, nil
	}

	if rerender {
		var applied []history.Command
		for _, p := range affected {
			for _, c := range perPage[p] {
				if err := c.Apply(); err != nil {
					for j := len(applied) - 1; j >= 0; j-- {
						_ = applied[j].Revert()
					}
					return ReplaceReport{}, err
				}
				applied = append(applied, c)
			}
		}
		e.histories.Clear(affected...)
		e.logger.Info("replace all with re-render",
			observability.Int("replaced", report.Replaced),
			observability.Int("pages", len(affected)))
		if e.rerender != nil {
			if err := e.rerender(report.Pages); err != nil {
				return report, fmt.Errorf("re-render: %w", err)
			}
		}
		return report, nil
	}

	var cmds []history.Command
	for _, p := range affected {
		cmds = append(cmds, perPage[p]...)
	}
	if err := e.histories.DoBatch(fmt.Sprintf("replace all %q", q.Text), cmds); err != nil {
		return ReplaceReport{}, err
	}
	return report, nil
}
