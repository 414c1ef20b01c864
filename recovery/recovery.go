// Package recovery decides how importers react to structural mismatches
// between an imported file and the open project.
package recovery

import "context"

type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location identifies where in an import the problem was found.
type Location struct {
	Component string
	Page      string
	Entry     int
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	default:
		return "fail"
	}
}
