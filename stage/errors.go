package stage

import (
	"errors"
	"fmt"
)

// Failure tags reported to the UI for status display. They are stable
// identifiers, not end-user strings.
const (
	TagDetectionFailed   = "Text Detection Failed."
	TagOCRFailed         = "OCR Failed."
	TagTranslationFailed = "Translation Failed."
	TagInpaintingFailed  = "Inpainting Failed."
	TagSetTranslator     = "Failed to set translator"
)

// FailureTag returns the tag reported when st fails on a page.
func FailureTag(st Stage) string {
	switch st {
	case Detection:
		return TagDetectionFailed
	case OCR:
		return TagOCRFailed
	case Translation:
		return TagTranslationFailed
	case Inpainting:
		return TagInpaintingFailed
	}
	return ""
}

// LoadError reports that a backend could not be initialized. It is fatal to
// the stages that depend on the backend and to nothing else.
type LoadError struct {
	Stage   Stage
	Backend string
	Cause   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s backend %q: %v", e.Stage, e.Backend, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Tag returns the failure tag of the load error.
func (e *LoadError) Tag() string {
	if e.Stage == Translation {
		return TagSetTranslator
	}
	return FailureTag(e.Stage)
}

// StageError reports that a stage failed on one page. The run continues.
type StageError struct {
	Page  string
	Stage Stage
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s on page %s: %v", e.Stage, e.Page, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

func (e *StageError) Tag() string {
	var le *LoadError
	if errors.As(e.Cause, &le) {
		return le.Tag()
	}
	return FailureTag(e.Stage)
}

// MissingParamsError is returned by translator factories when a required
// parameter (API key, script, endpoint) is not configured.
type MissingParamsError struct {
	Backend string
	Params  []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("%v is required for %s", e.Params, e.Backend)
}

// Tag extracts the failure tag carried by err, or "" when err carries none.
func Tag(err error) string {
	var tagged interface{ Tag() string }
	if errors.As(err, &tagged) {
		return tagged.Tag()
	}
	return ""
}

var (
	// ErrResultMismatch is returned when a backend yields a different number
	// of outputs than it was given inputs.
	ErrResultMismatch = errors.New("backend result count does not match input")
	// ErrNoImage is returned when a stage needs the page image but none is
	// available.
	ErrNoImage = errors.New("page image unavailable")
)

// CheckCount validates a backend's output length against its input length.
func CheckCount(backend string, want, got int) error {
	if want != got {
		return fmt.Errorf("%s: %w (want %d, got %d)", backend, ErrResultMismatch, want, got)
	}
	return nil
}
