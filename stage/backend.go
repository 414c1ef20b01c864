package stage

import (
	"context"
	"image"
	"time"

	"github.com/wudi/pagetrans/geom"
)

// Backend is the uniform contract of every stage implementation: one input in,
// one result out. Run is a blocking call from the orchestrator's view.
type Backend[I, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

type (
	Detector   = Backend[DetectInput, DetectResult]
	Recognizer = Backend[RecognizeInput, RecognizeResult]
	Translator = Backend[TranslateInput, TranslateResult]
	Inpainter  = Backend[InpaintInput, InpaintResult]
)

// Closer is implemented by backends that hold resources (model weights,
// native clients) which must be released on unload.
type Closer interface {
	Close() error
}

// Pacer is implemented by rate-limited translators that require a pause
// between consecutive page requests.
type Pacer interface {
	Delay() time.Duration
}

// DetectInput is a page image submitted for text detection.
type DetectInput struct {
	// Page is the caller's page identifier, echoed into logs only.
	Page  string
	Image image.Image
	// Params carries backend-specific knobs without widening the API.
	Params map[string]string
}

// DetectedRegion is one text area found by a detector.
type DetectedRegion struct {
	Quad     geom.Quad
	Angle    float64
	Vertical bool
	// FontSize is the detector's estimate in pixels; zero means unknown.
	FontSize float64
	// Text is set by detectors that also recognize text.
	Text string
}

// DetectResult carries the regions and the text mask of one page. Mask may be
// nil when the detector does not produce one.
type DetectResult struct {
	Regions []DetectedRegion
	Mask    *image.Gray
}

// RecognizeInput asks for the text inside each of Boxes.
type RecognizeInput struct {
	Page      string
	Image     image.Image
	Boxes     []geom.Quad
	Languages []string
	Params    map[string]string
}

// RecognizeResult holds one text per input box, in input order.
type RecognizeResult struct {
	Texts []string
}

// TranslateInput is a batch of texts of one page.
type TranslateInput struct {
	Page   string
	Texts  []string
	Source string
	Target string
}

// TranslateResult holds one translation per input text, in input order.
type TranslateResult struct {
	Texts []string
}

// InpaintInput asks the backend to remove the masked pixels of Image.
type InpaintInput struct {
	Page  string
	Image image.Image
	Mask  *image.Gray
	// Boxes optionally restricts work to the given areas.
	Boxes []geom.Rect
}

// InpaintResult is the cleaned page image.
type InpaintResult struct {
	Image image.Image
}

// InputOption mutates a recognition input before it is submitted.
type InputOption func(*RecognizeInput)

// NewRecognizeInput builds the OCR input of one page.
func NewRecognizeInput(page string, img image.Image, boxes []geom.Quad, opts ...InputOption) RecognizeInput {
	in := RecognizeInput{Page: page, Image: img, Boxes: boxes}
	for _, opt := range opts {
		opt(&in)
	}
	return in
}

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *RecognizeInput) { in.Languages = append([]string(nil), langs...) }
}

// WithParams sets provider-specific parameters for the input.
func WithParams(params map[string]string) InputOption {
	return func(in *RecognizeInput) {
		if len(params) == 0 {
			in.Params = nil
			return
		}
		in.Params = make(map[string]string, len(params))
		for k, v := range params {
			in.Params[k] = v
		}
	}
}
