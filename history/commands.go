package history

import (
	"errors"
	"fmt"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
)

// ErrConflict is returned when a command finds the region in a state other
// than the one it was recorded against.
var ErrConflict = errors.New("region changed since command was recorded")

// AddRegion inserts a new region.
type AddRegion struct {
	Page   *document.Page
	Index  int
	Region document.Region
}

func (c *AddRegion) Apply() error { return c.Page.Insert(c.Index, c.Region) }

func (c *AddRegion) Revert() error {
	_, _, err := c.Page.Remove(c.Region.ID)
	return err
}

func (c *AddRegion) Pages() []*document.Page { return []*document.Page{c.Page} }
func (c *AddRegion) String() string          { return "add region" }

// DeleteRegions soft-deletes regions. Revert recovers them.
type DeleteRegions struct {
	Page *document.Page
	IDs  []string
}

func (c *DeleteRegions) Apply() error  { return setDeleted(c.Page, c.IDs, true) }
func (c *DeleteRegions) Revert() error { return setDeleted(c.Page, c.IDs, false) }

func (c *DeleteRegions) Pages() []*document.Page { return []*document.Page{c.Page} }
func (c *DeleteRegions) String() string          { return fmt.Sprintf("delete %d region(s)", len(c.IDs)) }

// RecoverRegions restores soft-deleted regions.
type RecoverRegions struct {
	Page *document.Page
	IDs  []string
}

func (c *RecoverRegions) Apply() error  { return setDeleted(c.Page, c.IDs, false) }
func (c *RecoverRegions) Revert() error { return setDeleted(c.Page, c.IDs, true) }

func (c *RecoverRegions) Pages() []*document.Page { return []*document.Page{c.Page} }
func (c *RecoverRegions) String() string          { return fmt.Sprintf("recover %d region(s)", len(c.IDs)) }

func setDeleted(p *document.Page, ids []string, deleted bool) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return p.Apply(func(rs []document.Region) ([]document.Region, error) {
		found := 0
		for i := range rs {
			if !want[rs[i].ID] {
				continue
			}
			found++
			var err error
			if deleted {
				err = rs[i].Delete()
			} else {
				err = rs[i].Recover()
			}
			if err != nil {
				return nil, err
			}
		}
		if found != len(want) {
			return nil, document.ErrRegionNotFound
		}
		return rs, nil
	})
}

// EditText replaces one text field of a region.
type EditText struct {
	Page     *document.Page
	RegionID string
	Field    document.TextField
	Old, New string
}

func (c *EditText) Apply() error  { return c.swap(c.Old, c.New) }
func (c *EditText) Revert() error { return c.swap(c.New, c.Old) }

func (c *EditText) swap(from, to string) error {
	return c.Page.Update(c.RegionID, func(r *document.Region) error {
		if r.Data.Text(c.Field) != from {
			return ErrConflict
		}
		r.Data.SetText(c.Field, to)
		return nil
	})
}

func (c *EditText) Pages() []*document.Page { return []*document.Page{c.Page} }
func (c *EditText) String() string          { return "edit " + c.Field.String() }

// EditStyle replaces a region's style.
type EditStyle struct {
	Page     *document.Page
	RegionID string
	Old, New document.FontStyle
}

func (c *EditStyle) Apply() error  { return c.set(c.New) }
func (c *EditStyle) Revert() error { return c.set(c.Old) }

func (c *EditStyle) set(s document.FontStyle) error {
	return c.Page.Update(c.RegionID, func(r *document.Region) error {
		r.Data.Style = s.Clone()
		return nil
	})
}

func (c *EditStyle) Pages() []*document.Page { return []*document.Page{c.Page} }
func (c *EditStyle) String() string          { return "edit style" }

// Transform moves, resizes or rotates a region. Consecutive transforms of
// the same region carrying the same non-empty Gesture coalesce into one.
type Transform struct {
	Page               *document.Page
	RegionID           string
	Gesture            string
	OldQuad, NewQuad   geom.Quad
	OldAngle, NewAngle float64
}

func (c *Transform) Apply() error  { return c.set(c.NewQuad, c.NewAngle) }
func (c *Transform) Revert() error { return c.set(c.OldQuad, c.OldAngle) }

func (c *Transform) set(q geom.Quad, angle float64) error {
	return c.Page.Update(c.RegionID, func(r *document.Region) error {
		r.Data.Quad = q
		r.Data.Angle = angle
		return nil
	})
}

func (c *Transform) Merge(next Command) bool {
	n, ok := next.(*Transform)
	if !ok || c.Gesture == "" || n.Gesture != c.Gesture || n.RegionID != c.RegionID || n.Page != c.Page {
		return false
	}
	c.NewQuad = n.NewQuad
	c.NewAngle = n.NewAngle
	return true
}

func (c *Transform) Pages() []*document.Page { return []*document.Page{c.Page} }
func (c *Transform) String() string          { return "transform" }

// SetData replaces a region's whole data. Layout operations such as auto
// layout, squeeze and angle reset record themselves this way.
type SetData struct {
	Page     *document.Page
	RegionID string
	Label    string
	Old, New document.RegionData
}

func (c *SetData) Apply() error  { return c.set(c.New) }
func (c *SetData) Revert() error { return c.set(c.Old) }

func (c *SetData) set(d document.RegionData) error {
	return c.Page.Update(c.RegionID, func(r *document.Region) error {
		r.Data = d.Clone()
		return nil
	})
}

func (c *SetData) Pages() []*document.Page { return []*document.Page{c.Page} }

func (c *SetData) String() string {
	if c.Label == "" {
		return "edit region"
	}
	return c.Label
}

// Batch groups commands into one undo step. If a member fails to apply the
// members already applied are reverted.
type Batch struct {
	Label string
	Cmds  []Command
}

func (b *Batch) Apply() error {
	for i, c := range b.Cmds {
		if err := c.Apply(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = b.Cmds[j].Revert()
			}
			return err
		}
	}
	return nil
}

func (b *Batch) Revert() error {
	for i := len(b.Cmds) - 1; i >= 0; i-- {
		if err := b.Cmds[i].Revert(); err != nil {
			for j := i + 1; j < len(b.Cmds); j++ {
				_ = b.Cmds[j].Apply()
			}
			return err
		}
	}
	return nil
}

func (b *Batch) Pages() []*document.Page {
	var out []*document.Page
	seen := make(map[*document.Page]bool)
	for _, c := range b.Cmds {
		for _, p := range c.Pages() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func (b *Batch) String() string { return b.Label }
