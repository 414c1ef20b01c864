// Package tesseract provides OCR and text detection backends on top of the
// Tesseract engine through gosseract.
//
// The engine needs the native tesseract and leptonica libraries, so the real
// implementation is only built with the "ocr" build tag. Without it the
// constructors return ErrNotEnabled and the backends fail to load, which the
// orchestrator reports like any other load failure.
package tesseract

import (
	"context"
	"errors"

	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/stage"
)

// Name is the registry name of both backends.
const Name = "tesseract"

// ErrNotEnabled is returned when the binary was built without the ocr tag.
var ErrNotEnabled = errors.New("tesseract support not enabled (build with -tags ocr)")

// Register adds the tesseract detector and recognizer to reg.
func Register(reg *modules.Registry) {
	modules.RegisterDetector(reg, Name, func(_ context.Context, params map[string]string) (stage.Detector, error) {
		return NewDetector(params)
	})
	modules.RegisterRecognizer(reg, Name, func(_ context.Context, params map[string]string) (stage.Recognizer, error) {
		return NewRecognizer(params)
	})
}
