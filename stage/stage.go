package stage

import (
	"fmt"
	"strings"
)

// Stage identifies one unit of per-page processing.
type Stage int

const (
	Detection Stage = iota
	OCR
	Translation
	Inpainting
)

// Count is the number of stages.
const Count = 4

// Order is the fixed execution order of a pipeline run.
var Order = [Count]Stage{Detection, OCR, Translation, Inpainting}

func (s Stage) String() string {
	switch s {
	case Detection:
		return "detection"
	case OCR:
		return "ocr"
	case Translation:
		return "translation"
	case Inpainting:
		return "inpainting"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool { return s >= Detection && s <= Inpainting }

// Requires returns the stage whose output s consumes, if any. OCR reads the
// regions produced by detection, translation reads OCR text and inpainting
// reads the detection mask.
func (s Stage) Requires() (Stage, bool) {
	switch s {
	case OCR, Inpainting:
		return Detection, true
	case Translation:
		return OCR, true
	}
	return 0, false
}

// Parse converts a stage name (as used in configuration) to a Stage.
func Parse(name string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "detection", "detect", "textdetector":
		return Detection, nil
	case "ocr":
		return OCR, nil
	case "translation", "translate", "translator":
		return Translation, nil
	case "inpainting", "inpaint", "inpainter":
		return Inpainting, nil
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Stage) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Set is a set of stages.
type Set uint8

// NewSet returns a set holding the given stages.
func NewSet(stages ...Stage) Set {
	var s Set
	for _, st := range stages {
		s = s.Add(st)
	}
	return s
}

// All is the set of every stage.
func All() Set { return NewSet(Order[:]...) }

func (s Set) Add(st Stage) Set    { return s | 1<<uint(st) }
func (s Set) Remove(st Stage) Set { return s &^ (1 << uint(st)) }
func (s Set) Has(st Stage) bool   { return s&(1<<uint(st)) != 0 }
func (s Set) Empty() bool         { return s == 0 }
func (s Set) Intersect(o Set) Set { return s & o }

// Stages lists the members of s in execution order.
func (s Set) Stages() []Stage {
	out := make([]Stage, 0, Count)
	for _, st := range Order {
		if s.Has(st) {
			out = append(out, st)
		}
	}
	return out
}

func (s Set) String() string {
	names := make([]string, 0, Count)
	for _, st := range s.Stages() {
		names = append(names, st.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}

// State is the lifecycle of one stage on one page or region.
type State int

const (
	NotRun State = iota
	Running
	Succeeded
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case NotRun:
		return "not-run"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool { return s == Succeeded || s == Failed || s == Skipped }

// Status is a State plus the failure or skip reason.
type Status struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (s Status) String() string {
	if s.Reason == "" {
		return s.State.String()
	}
	return s.State.String() + "(" + s.Reason + ")"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{NotRun, Running, Succeeded, Failed, Skipped} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown stage state %q", b)
}
