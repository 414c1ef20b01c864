//go:build !ocr

package tesseract

import "github.com/wudi/pagetrans/stage"

// NewRecognizer reports that OCR support was not compiled in.
func NewRecognizer(map[string]string) (stage.Recognizer, error) { return nil, ErrNotEnabled }

// NewDetector reports that OCR support was not compiled in.
func NewDetector(map[string]string) (stage.Detector, error) { return nil, ErrNotEnabled }
