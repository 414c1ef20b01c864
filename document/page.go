package document

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"

	"github.com/wudi/pagetrans/stage"
)

var (
	ErrRegionNotFound = errors.New("region not found")
	ErrDuplicateID    = errors.New("duplicate region id")
	// ErrPageBusy is returned to editor code that tries to mutate a page
	// while a pipeline run owns it.
	ErrPageBusy = errors.New("page is being processed")
)

// ImageRef points at the immutable source image of a page.
type ImageRef struct {
	Path        string `json:"path"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// PageData is a detached, serializable copy of a page's state.
type PageData struct {
	Name     string                    `json:"name"`
	Image    ImageRef                  `json:"image"`
	Regions  []Region                  `json:"regions"`
	Progress [stage.Count]stage.Status `json:"progress"`
}

// Page is one image of a project.
type Page struct {
	Name  string
	Image ImageRef

	mu        sync.RWMutex
	regions   []*Region
	mask      *image.Gray
	inpainted image.Image
	progress  [stage.Count]stage.Status

	busy     atomic.Bool
	onChange func()
}

// NewPage returns an empty page for the given image.
func NewPage(name string, img ImageRef) *Page {
	return &Page{Name: name, Image: img}
}

// NewPageFromData rebuilds a page from a snapshot.
func NewPageFromData(d PageData) *Page {
	p := NewPage(d.Name, d.Image)
	p.regions = make([]*Region, 0, len(d.Regions))
	for _, r := range d.Regions {
		c := r.Clone()
		p.regions = append(p.regions, &c)
	}
	p.progress = d.Progress
	return p
}

func (p *Page) touch() {
	if p.onChange != nil {
		p.onChange()
	}
}

// Data returns a deep copy of the page state.
func (p *Page) Data() PageData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PageData{
		Name:     p.Name,
		Image:    p.Image,
		Regions:  cloneRegions(p.regions),
		Progress: p.progress,
	}
}

// Regions returns a copy of all regions, deleted ones included, in order.
func (p *Page) Regions() []Region {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneRegions(p.regions)
}

// ActiveRegions returns a copy of the non-deleted regions in order.
func (p *Page) ActiveRegions() []Region {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Region, 0, len(p.regions))
	for _, r := range p.regions {
		if r.Active() {
			out = append(out, r.Clone())
		}
	}
	return out
}

func cloneRegions(rs []*Region) []Region {
	out := make([]Region, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of regions, deleted ones included.
func (p *Page) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.regions)
}

// Region returns a copy of the region with the given ID.
func (p *Page) Region(id string) (Region, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := p.indexLocked(id)
	if i < 0 {
		return Region{}, -1, fmt.Errorf("%s: %w", id, ErrRegionNotFound)
	}
	return p.regions[i].Clone(), i, nil
}

func (p *Page) indexLocked(id string) int {
	for i, r := range p.regions {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Insert adds r at index; an out-of-range index appends.
func (p *Page) Insert(index int, r Region) error {
	if err := r.Data.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.indexLocked(r.ID) >= 0 {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", r.ID, ErrDuplicateID)
	}
	c := r.Clone()
	if index < 0 || index >= len(p.regions) {
		p.regions = append(p.regions, &c)
	} else {
		p.regions = append(p.regions, nil)
		copy(p.regions[index+1:], p.regions[index:])
		p.regions[index] = &c
	}
	p.mu.Unlock()
	p.touch()
	return nil
}

// Remove deletes the region permanently and returns it with its former index.
func (p *Page) Remove(id string) (Region, int, error) {
	p.mu.Lock()
	i := p.indexLocked(id)
	if i < 0 {
		p.mu.Unlock()
		return Region{}, -1, fmt.Errorf("%s: %w", id, ErrRegionNotFound)
	}
	r := *p.regions[i]
	p.regions = append(p.regions[:i], p.regions[i+1:]...)
	p.mu.Unlock()
	p.touch()
	return r, i, nil
}

// Update applies fn to a copy of the region and commits it only when fn and
// validation succeed. Soft-deleted regions are frozen until recovered.
func (p *Page) Update(id string, fn func(r *Region) error) error {
	p.mu.Lock()
	i := p.indexLocked(id)
	if i < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrRegionNotFound)
	}
	if p.regions[i].Deleted {
		p.mu.Unlock()
		return fmt.Errorf("region %s: %w", id, ErrAlreadyDeleted)
	}
	c := p.regions[i].Clone()
	if err := fn(&c); err != nil {
		p.mu.Unlock()
		return err
	}
	if err := c.Data.Validate(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("region %s: %w", id, err)
	}
	c.ID = id
	p.regions[i] = &c
	p.mu.Unlock()
	p.touch()
	return nil
}

// Apply runs fn over a copy of the region list. The result replaces the list
// only if fn succeeds and every region validates, so multi-region writes are
// all-or-nothing.
func (p *Page) Apply(fn func(rs []Region) ([]Region, error)) error {
	p.mu.Lock()
	next, err := fn(cloneRegions(p.regions))
	if err != nil {
		p.mu.Unlock()
		return err
	}
	seen := make(map[string]bool, len(next))
	out := make([]*Region, len(next))
	for i := range next {
		r := next[i].Clone()
		if seen[r.ID] {
			p.mu.Unlock()
			return fmt.Errorf("%s: %w", r.ID, ErrDuplicateID)
		}
		seen[r.ID] = true
		if err := r.Data.Validate(); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("region %s: %w", r.ID, err)
		}
		out[i] = &r
	}
	p.regions = out
	p.mu.Unlock()
	p.touch()
	return nil
}

// SetRegions replaces all regions.
func (p *Page) SetRegions(rs []Region) error {
	return p.Apply(func([]Region) ([]Region, error) { return rs, nil })
}

// Mask returns a copy of the inpainting mask, or nil.
func (p *Page) Mask() *image.Gray {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneGray(p.mask)
}

// SetMask replaces the inpainting mask.
func (p *Page) SetMask(m *image.Gray) {
	p.mu.Lock()
	p.mask = cloneGray(m)
	p.mu.Unlock()
	p.touch()
}

// Inpainted returns the last inpainting result, or nil.
func (p *Page) Inpainted() image.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inpainted
}

// SetInpainted stores an inpainting result.
func (p *Page) SetInpainted(img image.Image) {
	p.mu.Lock()
	p.inpainted = img
	p.mu.Unlock()
	p.touch()
}

// Progress returns the page-level status of a stage.
func (p *Page) Progress(st stage.Stage) stage.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progress[st]
}

// SetProgress records the page-level status of a stage.
func (p *Page) SetProgress(st stage.Stage, s stage.Status) {
	p.mu.Lock()
	p.progress[st] = s
	p.mu.Unlock()
	p.touch()
}

// HasResults reports whether any region carries a translation or the page
// has an inpainting result.
func (p *Page) HasResults() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.inpainted != nil {
		return true
	}
	for _, r := range p.regions {
		if r.Active() && r.Data.Translation != "" {
			return true
		}
	}
	return false
}

// ClearResults drops translations, stage markers and the inpainting result.
// Soft-deleted regions keep their payload.
func (p *Page) ClearResults() {
	p.mu.Lock()
	for i, r := range p.regions {
		if r.Deleted {
			continue
		}
		c := r.Clone()
		c.Data.Translation = ""
		c.Status = [stage.Count]stage.Status{}
		p.regions[i] = &c
	}
	p.inpainted = nil
	p.progress = [stage.Count]stage.Status{}
	p.mu.Unlock()
	p.touch()
}

// TryAcquire marks the page busy. It returns false if it already was.
func (p *Page) TryAcquire() bool { return p.busy.CompareAndSwap(false, true) }

// Release clears the busy flag.
func (p *Page) Release() { p.busy.Store(false) }

// Busy reports whether a pipeline run owns the page.
func (p *Page) Busy() bool { return p.busy.Load() }

func cloneGray(m *image.Gray) *image.Gray {
	if m == nil {
		return nil
	}
	out := image.NewGray(m.Bounds())
	draw.Draw(out, out.Bounds(), m, m.Bounds().Min, draw.Src)
	return out
}
