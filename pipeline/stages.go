package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"maps"
	"strings"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/stage"
)

var errNoOutput = errors.New("inpainter returned no image")

var succeeded = stage.Status{State: stage.Succeeded}

// targets returns the active regions the current stage may touch.
func (pc *pageCtx) targets(keep func(document.Region) bool) []document.Region {
	var out []document.Region
	for _, r := range pc.page.ActiveRegions() {
		if pc.only != nil && !pc.only[r.ID] {
			continue
		}
		if keep != nil && !keep(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// markRegions sets the stage marker of the targeted regions.
func (pc *pageCtx) markRegions(st stage.Stage, status stage.Status) {
	ids := make(map[string]bool)
	for _, r := range pc.targets(nil) {
		ids[r.ID] = true
	}
	_ = pc.page.Apply(func(rs []document.Region) ([]document.Region, error) {
		for i := range rs {
			if ids[rs[i].ID] {
				rs[i].Status[st] = status
			}
		}
		return rs, nil
	})
}

func (pc *pageCtx) detect(ctx context.Context) (string, error) {
	det, err := pc.run.o.backends.Detector(ctx)
	if err != nil {
		return "", err
	}
	img, err := pc.image(ctx)
	if err != nil {
		return "", err
	}
	res, err := det.Run(ctx, stage.DetectInput{Page: pc.page.Name, Image: img, Params: maps.Clone(pc.run.opts.DetectorParams)})
	if err != nil {
		return "", err
	}

	opts := pc.run.opts
	base := opts.DefaultStyle()
	fresh := make([]document.Region, 0, len(res.Regions))
	for _, d := range res.Regions {
		if d.Quad.Degenerate() {
			continue
		}
		style := base.Clone()
		if d.Vertical {
			style.WritingMode = document.Vertical
		}
		if d.FontSize > 0 {
			style.Size = d.FontSize
		}
		r := document.NewRegion(document.RegionData{
			Quad:   d.Quad,
			Angle:  d.Angle,
			Source: strings.TrimSpace(d.Text),
			Style:  style,
		})
		r.Status[stage.Detection] = succeeded
		fresh = append(fresh, r)
	}

	err = pc.page.Apply(func(rs []document.Region) ([]document.Region, error) {
		var out []document.Region
		if opts.KeepExistingLines {
			for _, r := range rs {
				if r.Active() {
					out = append(out, r)
				}
			}
		}
		out = append(out, fresh...)
		document.SortReadingOrder(out, opts.RTL)
		return out, nil
	})
	if err != nil {
		return "", err
	}

	mask := res.Mask
	if mask == nil {
		rects := make([]geom.Rect, len(fresh))
		for i, r := range fresh {
			rects[i] = r.Bounds()
		}
		mask = rectMask(img.Bounds(), rects)
	}
	if old := pc.page.Mask(); opts.KeepExistingLines && old != nil && old.Bounds() == mask.Bounds() {
		mask = unionMask(old, mask)
	}
	pc.page.SetMask(mask)
	return fmt.Sprintf("%d region(s)", len(fresh)), nil
}

func (pc *pageCtx) recognize(ctx context.Context) (string, error) {
	targets := pc.targets(nil)
	if len(targets) == 0 {
		return "no regions", nil
	}
	rec, err := pc.run.o.backends.Recognizer(ctx)
	if err != nil {
		return "", err
	}
	img, err := pc.image(ctx)
	if err != nil {
		return "", err
	}
	boxes := make([]geom.Quad, len(targets))
	for i, r := range targets {
		boxes[i] = r.Data.Quad
	}
	res, err := rec.Run(ctx, stage.NewRecognizeInput(pc.page.Name, img, boxes,
		stage.WithLanguages(pc.run.opts.Languages...),
		stage.WithParams(pc.run.opts.OCRParams)))
	if err != nil {
		return "", err
	}
	if err := stage.CheckCount(rec.Name(), len(boxes), len(res.Texts)); err != nil {
		return "", err
	}

	texts := make(map[string]string, len(targets))
	var blank []geom.Rect
	for i, r := range targets {
		t := strings.TrimSpace(res.Texts[i])
		texts[r.ID] = t
		if t == "" && pc.run.opts.RestoreEmptyOCR {
			blank = append(blank, r.Bounds())
		}
	}
	err = pc.page.Apply(func(rs []document.Region) ([]document.Region, error) {
		for i := range rs {
			t, ok := texts[rs[i].ID]
			if !ok {
				continue
			}
			rs[i].Data.Source = t
			rs[i].Status[stage.OCR] = succeeded
			if t == "" && pc.run.opts.RestoreEmptyOCR {
				rs[i].Deleted = true
			}
		}
		return rs, nil
	})
	if err != nil {
		return "", err
	}
	if len(blank) > 0 {
		if m := pc.page.Mask(); m != nil {
			clearRects(m, blank)
			pc.page.SetMask(m)
		}
		return fmt.Sprintf("%d text(s), %d empty restored", len(targets), len(blank)), nil
	}
	return fmt.Sprintf("%d text(s)", len(targets)), nil
}

func (pc *pageCtx) translate(ctx context.Context) (string, error) {
	targets := pc.targets(func(r document.Region) bool {
		return strings.TrimSpace(r.Data.Source) != "" && !r.Data.Quad.Degenerate()
	})
	if len(targets) == 0 {
		return "no text", nil
	}
	tr, err := pc.run.o.backends.Translator(ctx)
	if err != nil {
		return "", err
	}
	opts := pc.run.opts
	delay := opts.TranslatorDelay
	if p, ok := tr.(stage.Pacer); ok && p.Delay() > delay {
		delay = p.Delay()
	}
	if err := pc.run.pace(ctx, delay); err != nil {
		return "", err
	}

	// The source list and the MT source list are two independent passes
	// over the query; the stored source text is left as recognized.
	query := make([]string, len(targets))
	for i, r := range targets {
		query[i] = pc.run.keywords.MTSource.Apply(pc.run.keywords.Source.Apply(r.Data.Source))
	}
	res, err := tr.Run(ctx, stage.TranslateInput{
		Page:   pc.page.Name,
		Texts:  query,
		Source: opts.Source,
		Target: opts.Target,
	})
	if err != nil {
		return "", err
	}
	if err := stage.CheckCount(tr.Name(), len(query), len(res.Texts)); err != nil {
		return "", err
	}

	out := make(map[string]string, len(targets))
	for i, r := range targets {
		t := pc.run.keywords.MTResult.Apply(res.Texts[i])
		if opts.TranslateToUpper {
			t = strings.ToUpper(t)
		}
		out[r.ID] = t
	}
	var style document.FontStyle
	if pc.run.mode == ModeFull {
		style = opts.DefaultStyle()
	}
	err = pc.page.Apply(func(rs []document.Region) ([]document.Region, error) {
		for i := range rs {
			t, ok := out[rs[i].ID]
			if !ok {
				continue
			}
			rs[i].Data.Translation = t
			rs[i].Status[stage.Translation] = succeeded
			if pc.run.mode == ModeFull {
				s := style.Clone()
				s.WritingMode = rs[i].Data.Style.WritingMode
				rs[i].Data.Style = s
			}
		}
		return rs, nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d text(s)", len(targets)), nil
}

func (pc *pageCtx) inpaint(ctx context.Context) (string, error) {
	targets := pc.targets(nil)
	mask := pc.page.Mask()
	if mask == nil && len(targets) == 0 {
		return "nothing to inpaint", nil
	}
	inp, err := pc.run.o.backends.Inpainter(ctx)
	if err != nil {
		return "", err
	}
	img, err := pc.image(ctx)
	if err != nil {
		return "", err
	}
	rects := make([]geom.Rect, len(targets))
	for i, r := range targets {
		rects[i] = r.Bounds()
	}
	if pc.only != nil {
		// Region runs repaint on top of the previous result and only inside
		// the selected regions.
		if prev := pc.page.Inpainted(); prev != nil {
			img = prev
		}
		restricted := rectMask(img.Bounds(), rects)
		if mask != nil && mask.Bounds() == restricted.Bounds() {
			intersectMask(restricted, mask)
		}
		mask = restricted
	} else if mask == nil {
		mask = rectMask(img.Bounds(), rects)
	}

	res, err := inp.Run(ctx, stage.InpaintInput{Page: pc.page.Name, Image: img, Mask: mask, Boxes: rects})
	if err != nil {
		return "", err
	}
	if res.Image == nil {
		return "", errNoOutput
	}
	pc.page.SetInpainted(res.Image)
	pc.markRegions(stage.Inpainting, succeeded)
	return fmt.Sprintf("%d box(es)", len(rects)), nil
}

func rectMask(bounds image.Rectangle, rects []geom.Rect) *image.Gray {
	m := image.NewGray(bounds)
	for _, r := range rects {
		draw.Draw(m, r.Image(bounds), image.White, image.Point{}, draw.Src)
	}
	return m
}

func clearRects(m *image.Gray, rects []geom.Rect) {
	for _, r := range rects {
		draw.Draw(m, r.Image(m.Bounds()), image.Black, image.Point{}, draw.Src)
	}
}

func unionMask(a, b *image.Gray) *image.Gray {
	out := image.NewGray(a.Bounds())
	r := a.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.Pix[out.PixOffset(x, y)] = max(a.GrayAt(x, y).Y, b.GrayAt(x, y).Y)
		}
	}
	return out
}

// intersectMask clears the pixels of dst that are unset in m.
func intersectMask(dst, m *image.Gray) {
	r := dst.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.GrayAt(x, y).Y == 0 {
				dst.Pix[dst.PixOffset(x, y)] = 0
			}
		}
	}
}
