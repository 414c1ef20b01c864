package typeset

import (
	"bytes"
	"math"
	"sync"
	"unicode"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// Measurer returns the advance of a single line of text along its writing
// direction, in pixels at the given font size.
type Measurer interface {
	Advance(text string, size float64, vertical bool) float64
}

// Shaper measures text by shaping it with HarfBuzz.
type Shaper struct {
	mu     sync.Mutex
	face   *gofont.Face
	shaper shaping.HarfbuzzShaper
}

// NewShaper parses a TrueType or OpenType font.
func NewShaper(fontData []byte) (*Shaper, error) {
	face, err := gofont.ParseTTF(bytes.NewReader(fontData))
	if err != nil {
		return nil, err
	}
	return &Shaper{face: face}, nil
}

var (
	defaultOnce   sync.Once
	defaultShaper *Shaper
	defaultErr    error
)

// DefaultShaper returns a shaper over the Go Regular font.
func DefaultShaper() (*Shaper, error) {
	defaultOnce.Do(func() { defaultShaper, defaultErr = NewShaper(goregular.TTF) })
	return defaultShaper, defaultErr
}

func (s *Shaper) Advance(text string, size float64, vertical bool) float64 {
	runes := []rune(text)
	if len(runes) == 0 || size <= 0 {
		return 0
	}
	script := detectScript(runes)
	dir := scriptDirection(script)
	if vertical {
		dir = di.DirectionTTB
	}
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: dir,
		Face:      s.face,
		Size:      fixed.Int26_6(math.Round(size * 64)),
		Script:    script,
		Language:  language.DefaultLanguage(),
	}

	s.mu.Lock()
	out := s.shaper.Shape(input)
	s.mu.Unlock()

	var adv fixed.Int26_6
	for _, g := range out.Glyphs {
		if vertical {
			adv += g.YAdvance
		} else {
			adv += g.XAdvance
		}
	}
	return math.Abs(float64(adv) / 64)
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

func detectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	best := language.Latin
	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			best = script
		}
	}
	return best
}

func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	case unicode.Is(unicode.Han, r):
		return language.Han
	case unicode.Is(unicode.Hiragana, r):
		return language.Hiragana
	case unicode.Is(unicode.Katakana, r):
		return language.Katakana
	case unicode.Is(unicode.Hangul, r):
		return language.Hangul
	case unicode.Is(unicode.Cyrillic, r):
		return language.Cyrillic
	case unicode.Is(unicode.Greek, r):
		return language.Greek
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	case unicode.Is(unicode.Thai, r):
		return language.Thai
	}
	return language.Unknown
}

// isCJK reports whether r may be broken on either side without a space.
func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) ||
		(r >= 0x3000 && r <= 0x303f) || (r >= 0xff00 && r <= 0xffef)
}
