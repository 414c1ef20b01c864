package stage

import (
	"errors"
	"fmt"
	"testing"
)

func TestSetOrder(t *testing.T) {
	s := NewSet(Inpainting, Detection, Translation)
	got := s.Stages()
	want := []Stage{Detection, Translation, Inpainting}
	if len(got) != len(want) {
		t.Fatalf("Stages() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Stages()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if s.Has(OCR) {
		t.Fatalf("set should not contain OCR")
	}
	if s.Remove(Detection).Has(Detection) {
		t.Fatalf("Remove did not remove")
	}
	if !All().Has(OCR) || All().Stages()[0] != Detection {
		t.Fatalf("All() = %v", All())
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, st := range Order {
		b, err := st.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}
		var back Stage
		if err := back.UnmarshalText(b); err != nil || back != st {
			t.Fatalf("UnmarshalText(%s) = %v, %v", b, back, err)
		}
	}
	if _, err := Parse("upscale"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
	if st, err := Parse("TextDetector"); err != nil || st != Detection {
		t.Fatalf("Parse alias = %v, %v", st, err)
	}
}

func TestRequires(t *testing.T) {
	cases := map[Stage]Stage{OCR: Detection, Translation: OCR, Inpainting: Detection}
	for st, want := range cases {
		got, ok := st.Requires()
		if !ok || got != want {
			t.Errorf("%v.Requires() = %v, %v", st, got, ok)
		}
	}
	if _, ok := Detection.Requires(); ok {
		t.Errorf("detection has no prerequisite")
	}
}

func TestTags(t *testing.T) {
	cause := errors.New("cuda out of memory")
	se := &StageError{Page: "001.png", Stage: OCR, Cause: cause}
	if Tag(se) != TagOCRFailed {
		t.Fatalf("Tag(StageError) = %q", Tag(se))
	}
	if !errors.Is(se, cause) {
		t.Fatalf("StageError should unwrap to cause")
	}

	le := &LoadError{Stage: Translation, Backend: "script", Cause: cause}
	wrapped := &StageError{Page: "001.png", Stage: Translation, Cause: le}
	if Tag(wrapped) != TagSetTranslator {
		t.Fatalf("Tag(load failure) = %q", Tag(wrapped))
	}
	if Tag(fmt.Errorf("outer: %w", &LoadError{Stage: Inpainting, Cause: cause})) != TagInpaintingFailed {
		t.Fatalf("wrapped load error tag mismatch")
	}
	if Tag(cause) != "" {
		t.Fatalf("plain error should carry no tag")
	}
}

func TestCheckCount(t *testing.T) {
	if err := CheckCount("fake", 2, 2); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := CheckCount("fake", 2, 1); !errors.Is(err, ErrResultMismatch) {
		t.Fatalf("expected ErrResultMismatch, got %v", err)
	}
}
