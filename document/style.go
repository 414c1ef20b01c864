package document

import "fmt"

// Alignment is the horizontal alignment of text lines inside a region.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

var alignmentNames = []string{"left", "center", "right"}

func (a Alignment) String() string {
	if a < 0 || int(a) >= len(alignmentNames) {
		return fmt.Sprintf("alignment(%d)", int(a))
	}
	return alignmentNames[a]
}

func (a Alignment) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Alignment) UnmarshalText(b []byte) error {
	for i, n := range alignmentNames {
		if n == string(b) {
			*a = Alignment(i)
			return nil
		}
	}
	return fmt.Errorf("unknown alignment %q", b)
}

// WritingMode selects horizontal or vertical (top-to-bottom) text.
type WritingMode int

const (
	Horizontal WritingMode = iota
	Vertical
)

func (m WritingMode) String() string {
	if m == Vertical {
		return "vertical"
	}
	return "horizontal"
}

func (m WritingMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *WritingMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "horizontal", "":
		*m = Horizontal
	case "vertical":
		*m = Vertical
	default:
		return fmt.Errorf("unknown writing mode %q", b)
	}
	return nil
}

// Gradient fills text with a linear blend from Start to End.
type Gradient struct {
	Start Color   `json:"start"`
	End   Color   `json:"end"`
	Angle float64 `json:"angle"`
	Size  float64 `json:"size"`
}

// At returns the gradient color at position t in [0, 1].
func (g Gradient) At(t float64) Color { return g.Start.Blend(g.End, t) }

// Shadow is a blurred drop shadow behind the text.
type Shadow struct {
	OffsetX  float64 `json:"x_offset"`
	OffsetY  float64 `json:"y_offset"`
	Strength float64 `json:"strength"`
	Radius   float64 `json:"radius"`
	Color    Color   `json:"color"`
}

// FontStyle describes how a region's translation is typeset.
type FontStyle struct {
	Family        string      `json:"family"`
	Size          float64     `json:"size"`
	Color         Color       `json:"color"`
	StrokeWidth   float64     `json:"stroke_width"`
	StrokeColor   Color       `json:"stroke_color"`
	Alignment     Alignment   `json:"alignment"`
	WritingMode   WritingMode `json:"writing_mode"`
	Opacity       float64     `json:"opacity"`
	LineSpacing   float64     `json:"line_spacing"`
	LetterSpacing float64     `json:"letter_spacing"`
	Bold          bool        `json:"bold,omitempty"`
	Italic        bool        `json:"italic,omitempty"`
	Underline     bool        `json:"underline,omitempty"`
	Gradient      *Gradient   `json:"gradient,omitempty"`
	Shadow        *Shadow     `json:"shadow,omitempty"`
}

// DefaultStyle is the style used when no global preset is set.
func DefaultStyle() FontStyle {
	return FontStyle{
		Size:          24,
		Color:         Black,
		StrokeColor:   White,
		Alignment:     AlignCenter,
		Opacity:       1,
		LineSpacing:   1.2,
		LetterSpacing: 1,
	}
}

// Clone returns a deep copy of the style.
func (s FontStyle) Clone() FontStyle {
	out := s
	if s.Gradient != nil {
		g := *s.Gradient
		out.Gradient = &g
	}
	if s.Shadow != nil {
		sh := *s.Shadow
		out.Shadow = &sh
	}
	return out
}
