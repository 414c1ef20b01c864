// Package contour implements a model-free text detector. Dark pixels are
// binned into a coarse grid, touching cells are grouped into connected
// components, and each component large enough to hold text becomes a region.
package contour

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/stage"
)

// Name is the registry name of the backend.
const Name = "contour"

// Detector groups dark ink into regions.
type Detector struct {
	threshold uint8
	cell      int
	minArea   float64
}

// New returns a detector. Params: "threshold" (0-255 luma below which a pixel
// is ink, default 96), "cell" (grid size in pixels, default 8) and "min_area"
// (smallest region area in pixels, default 128).
func New(params map[string]string) (*Detector, error) {
	d := &Detector{threshold: 96, cell: 8, minArea: 128}
	if v := params["threshold"]; v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q: %w", v, err)
		}
		d.threshold = uint8(n)
	}
	if v := params["cell"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid cell %q", v)
		}
		d.cell = n
	}
	if v := params["min_area"]; v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid min_area %q: %w", v, err)
		}
		d.minArea = n
	}
	return d, nil
}

func (d *Detector) Name() string { return Name }

func (d *Detector) Run(ctx context.Context, in stage.DetectInput) (stage.DetectResult, error) {
	if in.Image == nil {
		return stage.DetectResult{}, stage.ErrNoImage
	}
	b := in.Image.Bounds()
	cols := (b.Dx() + d.cell - 1) / d.cell
	rows := (b.Dy() + d.cell - 1) / d.cell
	ink := make([]bool, cols*rows)
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return stage.DetectResult{}, err
			}
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(in.Image.At(x, y)).(color.Gray).Y < d.threshold {
				ink[((y-b.Min.Y)/d.cell)*cols+(x-b.Min.X)/d.cell] = true
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var res stage.DetectResult
	seen := make([]bool, len(ink))
	var queue []int
	for start := range ink {
		if !ink[start] || seen[start] {
			continue
		}
		seen[start] = true
		queue = append(queue[:0], start)
		minC, minR, maxC, maxR := cols, rows, -1, -1
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			c, r := i%cols, i/cols
			minC, maxC = min(minC, c), max(maxC, c)
			minR, maxR = min(minR, r), max(maxR, r)
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					nc, nr := c+dc, r+dr
					if nc < 0 || nr < 0 || nc >= cols || nr >= rows {
						continue
					}
					j := nr*cols + nc
					if ink[j] && !seen[j] {
						seen[j] = true
						queue = append(queue, j)
					}
				}
			}
		}
		rect := geom.Rect{
			X:      float64(b.Min.X + minC*d.cell),
			Y:      float64(b.Min.Y + minR*d.cell),
			Width:  float64((maxC - minC + 1) * d.cell),
			Height: float64((maxR - minR + 1) * d.cell),
		}
		rect.Width = min(rect.Width, float64(b.Max.X)-rect.X)
		rect.Height = min(rect.Height, float64(b.Max.Y)-rect.Y)
		if rect.Area() < d.minArea {
			continue
		}
		res.Regions = append(res.Regions, stage.DetectedRegion{
			Quad:     geom.QuadFromRect(rect),
			Vertical: rect.Height > 2*rect.Width,
		})
	}
	res.Mask = mask
	return res, nil
}
