package pipeline

import (
	"cmp"
	"slices"
	"time"

	"github.com/wudi/pagetrans/stage"
)

// Outcome is the result of one (page, stage) pair.
type Outcome struct {
	Page     int         `json:"page"`
	PageName string      `json:"page_name"`
	Stage    stage.Stage `json:"stage"`
	State    stage.State `json:"state"`
	Reason   string      `json:"reason,omitempty"`
	// Tag is the stable failure tag for failed pairs.
	Tag string `json:"tag,omitempty"`
	Err error  `json:"-"`
}

// RunReport aggregates the outcomes of one run, ordered by page index then
// stage order.
type RunReport struct {
	Mode      Mode          `json:"-"`
	Stages    stage.Set     `json:"-"`
	Entries   []Outcome     `json:"entries"`
	Cancelled bool          `json:"cancelled,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (r *RunReport) sort() {
	slices.SortStableFunc(r.Entries, func(a, b Outcome) int {
		if c := cmp.Compare(a.Page, b.Page); c != 0 {
			return c
		}
		return cmp.Compare(a.Stage, b.Stage)
	})
}

// Failures returns the failed entries.
func (r *RunReport) Failures() []Outcome {
	var out []Outcome
	for _, e := range r.Entries {
		if e.State == stage.Failed {
			out = append(out, e)
		}
	}
	return out
}

// Outcome returns the entry of (page, st).
func (r *RunReport) Outcome(page int, st stage.Stage) (Outcome, bool) {
	for _, e := range r.Entries {
		if e.Page == page && e.Stage == st {
			return e, true
		}
	}
	return Outcome{}, false
}

// Pages returns the distinct page indexes in the report, in order.
func (r *RunReport) Pages() []int {
	var out []int
	for _, e := range r.Entries {
		if n := len(out); n == 0 || out[n-1] != e.Page {
			out = append(out, e.Page)
		}
	}
	return out
}

// OK reports whether no pair failed.
func (r *RunReport) OK() bool { return len(r.Failures()) == 0 }
