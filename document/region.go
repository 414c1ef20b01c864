package document

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/stage"
)

// TextField selects one of the two texts of a region.
type TextField int

const (
	SourceText TextField = iota
	TranslationText
)

func (f TextField) String() string {
	if f == TranslationText {
		return "translation"
	}
	return "source"
}

// ErrDegenerate is returned when a region with a translation would be left
// without usable geometry.
var ErrDegenerate = errors.New("region with translation must have non-degenerate geometry")

// RegionData is the committed, editable content of a region.
type RegionData struct {
	Quad        geom.Quad `json:"quad"`
	Angle       float64   `json:"angle"`
	Source      string    `json:"source"`
	Translation string    `json:"translation"`
	Style       FontStyle `json:"style"`
}

// Text returns the selected text field.
func (d RegionData) Text(f TextField) string {
	if f == TranslationText {
		return d.Translation
	}
	return d.Source
}

// SetText replaces the selected text field.
func (d *RegionData) SetText(f TextField, s string) {
	if f == TranslationText {
		d.Translation = s
		return
	}
	d.Source = s
}

// Clone returns a deep copy of the data.
func (d RegionData) Clone() RegionData {
	out := d
	out.Style = d.Style.Clone()
	return out
}

// Validate checks the geometry invariant.
func (d RegionData) Validate() error {
	if d.Translation != "" && d.Quad.Degenerate() {
		return ErrDegenerate
	}
	return nil
}

// Region is a text area of a page. A deleted region keeps Data unchanged so
// it can be recovered exactly.
type Region struct {
	ID      string                    `json:"id"`
	Data    RegionData                `json:"data"`
	Deleted bool                      `json:"deleted,omitempty"`
	Status  [stage.Count]stage.Status `json:"status"`
}

// NewRegion returns an active region with a fresh ID.
func NewRegion(data RegionData) Region {
	return Region{ID: uuid.NewString(), Data: data}
}

// Active reports whether the region is not soft-deleted.
func (r Region) Active() bool { return !r.Deleted }

// Clone returns a deep copy of the region.
func (r Region) Clone() Region {
	out := r
	out.Data = r.Data.Clone()
	return out
}

// Bounds returns the region's axis-aligned bounding rectangle.
func (r Region) Bounds() geom.Rect { return r.Data.Quad.Bounds() }

// Delete soft-deletes the region.
func (r *Region) Delete() error {
	if r.Deleted {
		return fmt.Errorf("region %s: %w", r.ID, ErrAlreadyDeleted)
	}
	r.Deleted = true
	return nil
}

// Recover restores a soft-deleted region.
func (r *Region) Recover() error {
	if !r.Deleted {
		return fmt.Errorf("region %s: %w", r.ID, ErrNotDeleted)
	}
	r.Deleted = false
	return nil
}

var (
	ErrAlreadyDeleted = errors.New("region already deleted")
	ErrNotDeleted     = errors.New("region is not deleted")
)
