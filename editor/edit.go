package editor

import (
	"errors"
	"fmt"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/history"
	"github.com/wudi/pagetrans/typeset"
)

// Do records cmd in the history of the page it touches.
func (s *Session) Do(cmd history.Command) error {
	pages := cmd.Pages()
	if len(pages) == 0 {
		return fmt.Errorf("command %q touches no page", cmd)
	}
	return s.Histories.For(pages[0]).Do(cmd)
}

// Undo reverts the last command recorded for page.
func (s *Session) Undo(page int) (history.Command, error) {
	p, err := s.page(page)
	if err != nil {
		return nil, err
	}
	return s.Histories.For(p).Undo()
}

// Redo re-applies the next undone command recorded for page.
func (s *Session) Redo(page int) (history.Command, error) {
	p, err := s.page(page)
	if err != nil {
		return nil, err
	}
	return s.Histories.For(p).Redo()
}

// AddRegion inserts a region with the global style and returns its ID.
func (s *Session) AddRegion(page int, quad geom.Quad) (string, error) {
	p, err := s.page(page)
	if err != nil {
		return "", err
	}
	r := document.NewRegion(document.RegionData{Quad: quad, Style: s.Styles.Default()})
	if err := s.Do(&history.AddRegion{Page: p, Index: -1, Region: r}); err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *Session) DeleteRegions(page int, ids ...string) error {
	p, err := s.page(page)
	if err != nil {
		return err
	}
	return s.Do(&history.DeleteRegions{Page: p, IDs: ids})
}

func (s *Session) RecoverRegions(page int, ids ...string) error {
	p, err := s.page(page)
	if err != nil {
		return err
	}
	return s.Do(&history.RecoverRegions{Page: p, IDs: ids})
}

// EditText replaces one text field of a region.
func (s *Session) EditText(page int, id string, field document.TextField, text string) error {
	p, r, err := s.region(page, id)
	if err != nil {
		return err
	}
	return s.Do(&history.EditText{Page: p, RegionID: id, Field: field, Old: r.Data.Text(field), New: text})
}

// EditStyle replaces the style of a region.
func (s *Session) EditStyle(page int, id string, style document.FontStyle) error {
	p, r, err := s.region(page, id)
	if err != nil {
		return err
	}
	return s.Do(&history.EditStyle{Page: p, RegionID: id, Old: r.Data.Style, New: style})
}

// Transform moves, resizes or rotates a region. Calls sharing a non-empty
// gesture ID coalesce into one undo step.
func (s *Session) Transform(page int, id, gesture string, quad geom.Quad, angle float64) error {
	p, r, err := s.region(page, id)
	if err != nil {
		return err
	}
	return s.Do(&history.Transform{
		Page: p, RegionID: id, Gesture: gesture,
		OldQuad: r.Data.Quad, NewQuad: quad,
		OldAngle: r.Data.Angle, NewAngle: angle,
	})
}

// CopySource keeps the source text of the given regions, in order.
func (s *Session) CopySource(page int, ids ...string) ([]string, error) {
	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		_, r, err := s.region(page, id)
		if err != nil {
			return nil, err
		}
		texts = append(texts, r.Data.Source)
	}
	s.mu.Lock()
	s.clipboard = texts
	s.mu.Unlock()
	return texts, nil
}

// PasteSource writes copied source texts onto the given regions as one
// undo step. With a single copied text every region receives it;
// otherwise texts are paired by position and extra regions are left alone.
func (s *Session) PasteSource(page int, ids ...string) error {
	s.mu.Lock()
	texts := s.clipboard
	s.mu.Unlock()
	if len(texts) == 0 {
		return ErrNothingCopied
	}
	return s.batch(page, "paste source", ids, func(i int, d document.RegionData) (document.RegionData, bool, error) {
		if len(texts) > 1 && i >= len(texts) {
			return d, false, nil
		}
		d.Source = texts[min(i, len(texts)-1)]
		return d, true, nil
	})
}

// ApplyPreset sets the named preset's style on the given regions.
func (s *Session) ApplyPreset(page int, name string, ids ...string) error {
	preset, err := s.Styles.Get(name)
	if err != nil {
		return err
	}
	return s.batch(page, "apply preset "+name, ids, func(_ int, d document.RegionData) (document.RegionData, bool, error) {
		d.Style = preset.Style.Clone()
		return d, true, nil
	})
}

// AutoLayout rewraps the translations of the given regions to fit their
// boxes. Regions without translation are skipped.
func (s *Session) AutoLayout(page int, ids ...string) error {
	return s.layout(page, "auto layout", ids, func(d document.RegionData) (document.RegionData, error) {
		return typeset.AutoLayout(s.measurer, d)
	})
}

// Squeeze shrinks the boxes of the given regions to their text.
func (s *Session) Squeeze(page int, ids ...string) error {
	return s.layout(page, "squeeze", ids, func(d document.RegionData) (document.RegionData, error) {
		return typeset.Squeeze(s.measurer, d)
	})
}

// ResetAngle clears the rotation of the given regions.
func (s *Session) ResetAngle(page int, ids ...string) error {
	return s.batch(page, "reset angle", ids, func(_ int, d document.RegionData) (document.RegionData, bool, error) {
		return typeset.ResetAngle(d), d.Angle != 0, nil
	})
}

func (s *Session) layout(page int, label string, ids []string, fn func(document.RegionData) (document.RegionData, error)) error {
	return s.batch(page, label, ids, func(_ int, d document.RegionData) (document.RegionData, bool, error) {
		out, err := fn(d)
		if errors.Is(err, typeset.ErrNoText) {
			return d, false, nil
		}
		return out, err == nil, err
	})
}

// batch records one SetData per changed region as a single undo step.
func (s *Session) batch(page int, label string, ids []string, fn func(int, document.RegionData) (document.RegionData, bool, error)) error {
	p, err := s.page(page)
	if err != nil {
		return err
	}
	var cmds []history.Command
	for i, id := range ids {
		r, _, err := p.Region(id)
		if err != nil {
			return err
		}
		if !r.Active() {
			return fmt.Errorf("region %s: %w", id, document.ErrAlreadyDeleted)
		}
		next, changed, err := fn(i, r.Data.Clone())
		if err != nil {
			return fmt.Errorf("region %s: %w", id, err)
		}
		if changed {
			cmds = append(cmds, &history.SetData{Page: p, RegionID: id, Label: label, Old: r.Data, New: next})
		}
	}
	if len(cmds) == 0 {
		return nil
	}
	return s.Do(&history.Batch{Label: label, Cmds: cmds})
}

func (s *Session) region(page int, id string) (*document.Page, document.Region, error) {
	p, err := s.page(page)
	if err != nil {
		return nil, document.Region{}, err
	}
	r, _, err := p.Region(id)
	if err != nil {
		return nil, document.Region{}, err
	}
	if !r.Active() {
		return nil, document.Region{}, fmt.Errorf("region %s: %w", id, document.ErrAlreadyDeleted)
	}
	return p, r, nil
}
