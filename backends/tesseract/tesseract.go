//go:build ocr

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"maps"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/stage"
)

// config holds the parameters shared by both backends.
type config struct {
	languages []string
	variables map[string]string
}

func parseParams(params map[string]string) config {
	c := config{variables: make(map[string]string)}
	for k, v := range params {
		switch k {
		case "lang", "languages":
			for _, l := range strings.Split(v, "+") {
				if l = strings.TrimSpace(l); l != "" {
					c.languages = append(c.languages, l)
				}
			}
		default:
			c.variables[k] = v
		}
	}
	return c
}

// apply configures cl. Per-call langs and params take precedence over the
// ones the backend was constructed with.
func (c config) apply(cl *gosseract.Client, langs []string, params map[string]string) error {
	if len(params) > 0 {
		call := parseParams(params)
		if len(langs) == 0 {
			langs = call.languages
		}
		merged := maps.Clone(c.variables)
		maps.Copy(merged, call.variables)
		c.variables = merged
	}
	if len(langs) == 0 {
		langs = c.languages
	}
	if len(langs) > 0 {
		if err := cl.SetLanguage(langs...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range c.variables {
		if err := cl.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

// Recognizer reads the text inside each box with one client per page.
type Recognizer struct {
	cfg           config
	clientFactory func() *gosseract.Client
}

// NewRecognizer constructs a Tesseract-backed OCR backend. Params: "lang"
// ("jpn+eng"); any other key is passed to tesseract as a variable.
func NewRecognizer(params map[string]string) (stage.Recognizer, error) {
	return &Recognizer{cfg: parseParams(params), clientFactory: gosseract.NewClient}, nil
}

func (r *Recognizer) Name() string { return Name }

func (r *Recognizer) Run(ctx context.Context, in stage.RecognizeInput) (stage.RecognizeResult, error) {
	if in.Image == nil {
		return stage.RecognizeResult{}, stage.ErrNoImage
	}
	c := r.clientFactory()
	defer c.Close()
	if err := r.cfg.apply(c, in.Languages, in.Params); err != nil {
		return stage.RecognizeResult{}, err
	}
	texts := make([]string, 0, len(in.Boxes))
	for i, box := range in.Boxes {
		select {
		case <-ctx.Done():
			return stage.RecognizeResult{}, ctx.Err()
		default:
		}
		data, err := cropPNG(in.Image, box)
		if err != nil {
			return stage.RecognizeResult{}, fmt.Errorf("box %d: %w", i, err)
		}
		if data == nil {
			texts = append(texts, "")
			continue
		}
		if err := c.SetImageFromBytes(data); err != nil {
			return stage.RecognizeResult{}, fmt.Errorf("set image: %w", err)
		}
		text, err := c.Text()
		if err != nil {
			return stage.RecognizeResult{}, fmt.Errorf("recognize box %d: %w", i, err)
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return stage.RecognizeResult{Texts: texts}, nil
}

// Detector reports tesseract's text blocks as regions.
type Detector struct {
	cfg           config
	clientFactory func() *gosseract.Client
}

// NewDetector constructs a Tesseract-backed detector.
func NewDetector(params map[string]string) (stage.Detector, error) {
	return &Detector{cfg: parseParams(params), clientFactory: gosseract.NewClient}, nil
}

func (d *Detector) Name() string { return Name }

func (d *Detector) Run(ctx context.Context, in stage.DetectInput) (stage.DetectResult, error) {
	if in.Image == nil {
		return stage.DetectResult{}, stage.ErrNoImage
	}
	if err := ctx.Err(); err != nil {
		return stage.DetectResult{}, err
	}
	c := d.clientFactory()
	defer c.Close()
	if err := d.cfg.apply(c, nil, in.Params); err != nil {
		return stage.DetectResult{}, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, in.Image); err != nil {
		return stage.DetectResult{}, fmt.Errorf("encode page: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return stage.DetectResult{}, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_BLOCK)
	if err != nil {
		return stage.DetectResult{}, fmt.Errorf("detect blocks: %w", err)
	}
	b := in.Image.Bounds()
	mask := image.NewGray(b)
	res := stage.DetectResult{Mask: mask}
	for _, box := range boxes {
		if box.Box.Empty() || strings.TrimSpace(box.Word) == "" {
			continue
		}
		r := geom.Rect{
			X:      float64(box.Box.Min.X),
			Y:      float64(box.Box.Min.Y),
			Width:  float64(box.Box.Dx()),
			Height: float64(box.Box.Dy()),
		}
		res.Regions = append(res.Regions, stage.DetectedRegion{
			Quad:     geom.QuadFromRect(r),
			Vertical: box.Box.Dy() > 2*box.Box.Dx(),
			Text:     strings.TrimSpace(box.Word),
		})
		draw.Draw(mask, box.Box.Intersect(b), image.White, image.Point{}, draw.Src)
	}
	return res, nil
}

// cropPNG encodes the part of img under the quad's bounding box. It returns
// nil data when the box lies outside the image.
func cropPNG(img image.Image, q geom.Quad) ([]byte, error) {
	rect := q.Bounds().Image(img.Bounds())
	if rect.Empty() {
		return nil, nil
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image does not support sub-image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
