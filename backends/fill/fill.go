// Package fill implements a lightweight inpainter that paints masked text
// areas with the average color of their surroundings. It suits the flat
// speech-bubble backgrounds of comics and needs no model weights.
package fill

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/stage"
)

// Name is the registry name of the backend.
const Name = "fill"

const defaultRing = 3

// Inpainter fills masked pixels box by box.
type Inpainter struct {
	ring int
}

// New returns an inpainter. Param "ring" sets the width in pixels of the
// border sampled around each box.
func New(params map[string]string) (*Inpainter, error) {
	p := &Inpainter{ring: defaultRing}
	if v := params["ring"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid ring %q", v)
		}
		p.ring = n
	}
	return p, nil
}

func (p *Inpainter) Name() string { return Name }

func (p *Inpainter) Run(ctx context.Context, in stage.InpaintInput) (stage.InpaintResult, error) {
	if in.Image == nil {
		return stage.InpaintResult{}, stage.ErrNoImage
	}
	b := in.Image.Bounds()
	dst := image.NewRGBA(b)
	draw.Copy(dst, b.Min, in.Image, b, draw.Src, nil)
	if in.Mask == nil {
		return stage.InpaintResult{Image: dst}, nil
	}
	mask := fitMask(in.Mask, b)

	boxes := make([]image.Rectangle, 0, len(in.Boxes))
	for _, r := range in.Boxes {
		boxes = append(boxes, r.Image(b))
	}
	if len(boxes) == 0 {
		boxes = append(boxes, maskBounds(mask))
	}
	for _, box := range boxes {
		if err := ctx.Err(); err != nil {
			return stage.InpaintResult{}, err
		}
		if box.Empty() {
			continue
		}
		c := p.ringColor(dst, mask, box)
		for y := box.Min.Y; y < box.Max.Y; y++ {
			for x := box.Min.X; x < box.Max.X; x++ {
				if mask.GrayAt(x, y).Y > 0 {
					dst.SetRGBA(x, y, c)
				}
			}
		}
	}
	return stage.InpaintResult{Image: dst}, nil
}

// ringColor averages the unmasked pixels in a band of p.ring pixels around
// box. It falls back to white when the band is fully masked.
func (p *Inpainter) ringColor(img *image.RGBA, mask *image.Gray, box image.Rectangle) color.RGBA {
	outer := box.Inset(-p.ring).Intersect(img.Bounds())
	var r, g, bl, n uint64
	for y := outer.Min.Y; y < outer.Max.Y; y++ {
		for x := outer.Min.X; x < outer.Max.X; x++ {
			if (image.Point{X: x, Y: y}).In(box) || mask.GrayAt(x, y).Y > 0 {
				continue
			}
			c := img.RGBAAt(x, y)
			r += uint64(c.R)
			g += uint64(c.G)
			bl += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: 255}
}

// fitMask scales m to bounds when detectors return a mask at a different
// resolution than the page.
func fitMask(m *image.Gray, bounds image.Rectangle) *image.Gray {
	if m.Bounds() == bounds {
		return m
	}
	out := image.NewGray(bounds)
	draw.NearestNeighbor.Scale(out, bounds, m, m.Bounds(), draw.Src, nil)
	return out
}

func maskBounds(m *image.Gray) image.Rectangle {
	var r image.Rectangle
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if m.GrayAt(x, y).Y > 0 {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

// BoxesFromQuads converts region quads into inpainting boxes.
func BoxesFromQuads(qs []geom.Quad) []geom.Rect {
	out := make([]geom.Rect, len(qs))
	for i, q := range qs {
		out[i] = q.Bounds()
	}
	return out
}
