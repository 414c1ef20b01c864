//go:build !ocr

package tesseract

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/stage"
)

func TestStubFailsToLoad(t *testing.T) {
	reg := modules.NewRegistry()
	Register(reg)
	m := modules.NewManager(reg)
	if err := m.Select(stage.OCR, Name, nil); err != nil {
		t.Fatal(err)
	}
	_, err := m.Recognizer(context.Background())
	if !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
	if stage.Tag(err) != stage.TagOCRFailed {
		t.Fatalf("tag = %q", stage.Tag(err))
	}
}
