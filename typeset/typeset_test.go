package typeset

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
)

// halfWidth gives Latin runes half an em and CJK runes a full em.
type halfWidth struct{}

func (halfWidth) Advance(text string, size float64, _ bool) float64 {
	var adv float64
	for _, r := range text {
		if isCJK(r) {
			adv += size
		} else {
			adv += size / 2
		}
	}
	return adv
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit float64
		want  []string
	}{
		{"words", "hello world foo", 60, []string{"hello world", "foo"}},
		{"cjk", "日本語テキスト", 30, []string{"日本語", "テキス", "ト"}},
		{"long word", "abcdefghij", 20, []string{"abcd", "efgh", "ij"}},
		{"hard break", "a\nb", 100, []string{"a", "b"}},
		{"mixed", "ok 日本", 25, []string{"ok 日", "本"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Wrap(halfWidth{}, tc.text, 10, tc.limit, false)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Wrap(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func region(text string, w, h float64) document.RegionData {
	st := document.DefaultStyle()
	st.Size = 20
	return document.RegionData{
		Quad:        geom.QuadFromRect(geom.Rect{X: 10, Y: 10, Width: w, Height: h}),
		Translation: text,
		Style:       st,
	}
}

func TestAutoLayoutFits(t *testing.T) {
	d := region("one two three four five six seven eight nine ten", 100, 100)
	out, err := AutoLayout(halfWidth{}, d)
	if err != nil {
		t.Fatal(err)
	}
	if out.Style.Size >= 20 || out.Style.Size < MinSize {
		t.Fatalf("size = %v", out.Style.Size)
	}
	for _, l := range strings.Split(out.Translation, "\n") {
		if adv := (halfWidth{}).Advance(l, out.Style.Size, false); adv > 100 {
			t.Errorf("line %q advance %v exceeds box", l, adv)
		}
	}
	if got := strings.Join(strings.Fields(out.Translation), " "); got != d.Translation {
		t.Errorf("words changed: %q", got)
	}
	b := out.Quad.Bounds()
	if b.Height > 100 || b.Width > 100 {
		t.Errorf("bounds = %+v", b)
	}
	if c, want := b.Center(), d.Quad.Bounds().Center(); math.Abs(c.X-want.X) > 1e-9 || math.Abs(c.Y-want.Y) > 1e-9 {
		t.Errorf("center moved from %v to %v", want, c)
	}
	if d.Style.Size != 20 {
		t.Error("input style modified")
	}
}

func TestAutoLayoutJoinsSoftBreaks(t *testing.T) {
	out, err := AutoLayout(halfWidth{}, region("short\ntext", 400, 100))
	if err != nil {
		t.Fatal(err)
	}
	if out.Translation != "short text" || out.Style.Size != 20 {
		t.Fatalf("got %q at %v", out.Translation, out.Style.Size)
	}

	out, err = AutoLayout(halfWidth{}, region("日本\n語", 400, 100))
	if err != nil {
		t.Fatal(err)
	}
	if out.Translation != "日本語" {
		t.Fatalf("got %q", out.Translation)
	}
}

func TestAutoLayoutStopsAtMinSize(t *testing.T) {
	out, err := AutoLayout(halfWidth{}, region(strings.Repeat("word ", 200), 20, 10))
	if err != nil {
		t.Fatal(err)
	}
	if out.Style.Size != MinSize {
		t.Fatalf("size = %v", out.Style.Size)
	}
}

func TestSqueeze(t *testing.T) {
	d := region("ab\ncdef", 200, 200)
	d.Style.Size = 10
	out, err := Squeeze(halfWidth{}, d)
	if err != nil {
		t.Fatal(err)
	}
	b := out.Quad.Bounds()
	if math.Abs(b.Width-20) > 1e-9 || math.Abs(b.Height-22) > 1e-9 {
		t.Fatalf("bounds = %+v", b)
	}
	if out.Translation != d.Translation {
		t.Fatal("squeeze changed text")
	}

	d.Style.WritingMode = document.Vertical
	out, _ = Squeeze(halfWidth{}, d)
	if b := out.Quad.Bounds(); math.Abs(b.Width-22) > 1e-9 || math.Abs(b.Height-20) > 1e-9 {
		t.Fatalf("vertical bounds = %+v", b)
	}
}

func TestEmptyText(t *testing.T) {
	if _, err := AutoLayout(halfWidth{}, region(" ", 10, 10)); !errors.Is(err, ErrNoText) {
		t.Errorf("AutoLayout err = %v", err)
	}
	if _, err := Squeeze(halfWidth{}, region("", 10, 10)); !errors.Is(err, ErrNoText) {
		t.Errorf("Squeeze err = %v", err)
	}
}

func TestResetAngle(t *testing.T) {
	d := region("x", 10, 10)
	d.Angle = 30
	if out := ResetAngle(d); out.Angle != 0 || out.Quad != d.Quad || d.Angle != 30 {
		t.Fatalf("out = %+v", out)
	}
}

func TestShaperAdvance(t *testing.T) {
	s, err := DefaultShaper()
	if err != nil {
		t.Fatal(err)
	}
	narrow := s.Advance("iiii", 20, false)
	wide := s.Advance("WWWW", 20, false)
	if narrow <= 0 || narrow >= wide {
		t.Fatalf("iiii=%v WWWW=%v", narrow, wide)
	}
	if s.Advance("", 20, false) != 0 {
		t.Fatal("empty text has advance")
	}
	if a, b := s.Advance("Hello", 10, false), s.Advance("Hello", 20, false); math.Abs(2*a-b) > 1 {
		t.Fatalf("advance not proportional to size: %v vs %v", a, b)
	}
}
