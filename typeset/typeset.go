// Package typeset computes line breaks and region geometry for
// translated text: auto layout, squeeze and angle reset.
package typeset

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
)

// MinSize is the smallest font size AutoLayout shrinks to.
const MinSize = 6

var ErrNoText = errors.New("region has no translation")

// Wrap breaks text into lines no longer than limit. Existing newlines are
// kept. Lines break at spaces and between CJK characters; a word longer
// than limit is split between runes.
func Wrap(m Measurer, text string, size, limit float64, vertical bool) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		out = append(out, wrapLine(m, para, size, limit, vertical)...)
	}
	return out
}

func wrapLine(m Measurer, text string, size, limit float64, vertical bool) []string {
	var (
		lines []string
		cur   string
	)
	fits := func(s string) bool { return m.Advance(strings.TrimRight(s, " "), size, vertical) <= limit }
	for _, tok := range tokens(text) {
		if cur != "" && !fits(cur+tok) {
			lines = append(lines, strings.TrimRight(cur, " "))
			cur = strings.TrimLeft(tok, " ")
		} else {
			cur += tok
		}
		// Only a single token can overflow here.
		if cur != "" && !fits(cur) {
			pieces := splitRunes(m, cur, size, limit, vertical)
			lines = append(lines, pieces[:len(pieces)-1]...)
			cur = pieces[len(pieces)-1]
		}
	}
	return append(lines, strings.TrimRight(cur, " "))
}

// tokens splits text into words with their trailing spaces; every CJK rune
// is its own token.
func tokens(text string) []string {
	var (
		out   []string
		start int
	)
	inSpace := false
	for i, r := range text {
		switch {
		case isCJK(r):
			if i > start {
				out = append(out, text[start:i])
			}
			out = append(out, string(r))
			start = i + utf8.RuneLen(r)
			inSpace = false
		case unicode.IsSpace(r):
			inSpace = true
		case inSpace:
			out = append(out, text[start:i])
			start = i
			inSpace = false
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func splitRunes(m Measurer, s string, size, limit float64, vertical bool) []string {
	var (
		out []string
		cur []rune
	)
	for _, r := range s {
		if len(cur) > 0 && m.Advance(string(append(cur, r)), size, vertical) > limit {
			out = append(out, string(cur))
			cur = cur[:0]
		}
		cur = append(cur, r)
	}
	return append(out, string(cur))
}

// Block is the laid-out extent of a set of lines.
type Block struct {
	Lines []string
	Size  float64
	// Along is the longest line advance; Across is the stacked extent of
	// all lines.
	Along, Across float64
}

// Measure returns the extent of lines set at size with the style's line
// and letter spacing.
func Measure(m Measurer, lines []string, size float64, style document.FontStyle) Block {
	vertical := style.WritingMode == document.Vertical
	b := Block{Lines: lines, Size: size}
	for _, l := range lines {
		b.Along = max(b.Along, m.Advance(l, size, vertical)*letterSpacing(style))
	}
	if n := len(lines); n > 0 {
		b.Across = size * (1 + float64(n-1)*lineSpacing(style))
	}
	return b
}

func lineSpacing(s document.FontStyle) float64 {
	if s.LineSpacing <= 0 {
		return 1
	}
	return s.LineSpacing
}

func letterSpacing(s document.FontStyle) float64 {
	if s.LetterSpacing <= 0 {
		return 1
	}
	return s.LetterSpacing
}

// rect returns the box of b centered at c. Vertical text stacks lines
// along x.
func (b Block) rect(c geom.Point, vertical bool) geom.Rect {
	w, h := b.Along, b.Across
	if vertical {
		w, h = h, w
	}
	return geom.Rect{X: c.X - w/2, Y: c.Y - h/2, Width: w, Height: h}
}

// AutoLayout rewraps the translation to fit the region's box, shrinking
// the font size until the lines fit or MinSize is reached, and fits the
// box to the result around the same center.
func AutoLayout(m Measurer, d document.RegionData) (document.RegionData, error) {
	text := joinLines(d.Translation)
	if strings.TrimSpace(text) == "" {
		return d, ErrNoText
	}
	vertical := d.Style.WritingMode == document.Vertical
	box := d.Quad.Bounds()
	along, across := box.Width, box.Height
	if vertical {
		along, across = across, along
	}

	size := d.Style.Size
	if size <= 0 {
		size = document.DefaultStyle().Size
	}
	var b Block
	for {
		lines := Wrap(m, text, size, along/letterSpacing(d.Style), vertical)
		b = Measure(m, lines, size, d.Style)
		if b.Across <= across || size <= MinSize {
			break
		}
		size = max(MinSize, size*0.9)
	}

	out := d.Clone()
	out.Translation = strings.Join(b.Lines, "\n")
	out.Style.Size = size
	out.Quad = geom.QuadFromRect(b.rect(box.Center(), vertical))
	return out, nil
}

// Squeeze shrinks the region's box to the extent of its current lines.
func Squeeze(m Measurer, d document.RegionData) (document.RegionData, error) {
	if strings.TrimSpace(d.Translation) == "" {
		return d, ErrNoText
	}
	size := d.Style.Size
	if size <= 0 {
		size = document.DefaultStyle().Size
	}
	b := Measure(m, strings.Split(d.Translation, "\n"), size, d.Style)
	out := d.Clone()
	out.Quad = geom.QuadFromRect(b.rect(d.Quad.Bounds().Center(), d.Style.WritingMode == document.Vertical))
	return out, nil
}

// ResetAngle clears the rotation, keeping the box.
func ResetAngle(d document.RegionData) document.RegionData {
	out := d.Clone()
	out.Angle = 0
	return out
}

// joinLines merges soft line breaks. A space is inserted unless both sides
// are CJK.
func joinLines(s string) string {
	parts := strings.Split(s, "\n")
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			last, _ := utf8.DecodeLastRuneInString(b.String())
			first, _ := utf8.DecodeRuneInString(p)
			if !(isCJK(last) && isCJK(first)) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(p)
	}
	return b.String()
}
