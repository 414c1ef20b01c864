// Package search finds and replaces text across the regions of a project.
//
// A search result is a snapshot tied to the project version at the time it
// was built. Any later mutation makes it stale: navigation and replacement
// on a stale result fail with ErrStale instead of applying offsets computed
// against outdated text.
package search

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"unicode"
	"unicode/utf8"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/history"
	"github.com/wudi/pagetrans/observability"
)

var (
	// ErrStale is returned when the document changed after the search was
	// built.
	ErrStale = errors.New("document changed, re-search required")
	// ErrEmptyQuery is returned for a query with no text.
	ErrEmptyQuery = errors.New("empty search query")
	// ErrNoMatch is returned when navigating a result without matches.
	ErrNoMatch = errors.New("no match")
	// ErrConfirmationRequired is returned by a re-rendering replace-all
	// that was not confirmed as destructive.
	ErrConfirmationRequired = errors.New("replace all with re-render cannot be undone: confirmation required")
	errForeignMatch         = errors.New("match does not belong to this result")
)

// Scope selects the text fields searched.
type Scope int

const (
	ScopeSource Scope = iota
	ScopeTranslation
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeSource:
		return "source"
	case ScopeTranslation:
		return "translation"
	}
	return "all"
}

func (s Scope) fields() []document.TextField {
	switch s {
	case ScopeSource:
		return []document.TextField{document.SourceText}
	case ScopeTranslation:
		return []document.TextField{document.TranslationText}
	}
	return []document.TextField{document.SourceText, document.TranslationText}
}

// Options refine how the query text matches.
type Options struct {
	CaseSensitive bool
	WholeWord     bool
	Regex         bool
}

// Query describes a search.
type Query struct {
	Text    string
	Scope   Scope
	Options Options
	// Pages restricts the search to the given page indexes; nil searches the
	// whole project. A single index is a page-local search.
	Pages []int
}

// Match is one occurrence. Offset and Length are in bytes of the field text.
type Match struct {
	Page     int
	PageName string
	RegionID string
	// Region is the index of the region in its page's order.
	Region int
	Field  document.TextField
	Offset int
	Length int
	Text   string
}

// RerenderFunc re-runs inpainting and typesetting on the given pages after a
// destructive replace-all.
type RerenderFunc func(pages []int) error

// Engine searches one project and records replacements in its histories.
type Engine struct {
	project   *document.Project
	histories *history.Histories
	rerender  RerenderFunc
	logger    observability.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l observability.Logger) Option { return func(e *Engine) { e.logger = l } }
func WithRerender(fn RerenderFunc) Option      { return func(e *Engine) { e.rerender = fn } }

// NewEngine returns an engine over project.
func NewEngine(project *document.Project, histories *history.Histories, opts ...Option) *Engine {
	e := &Engine{project: project, histories: histories, logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// matcher finds query occurrences in a string.
type matcher struct {
	re        *regexp.Regexp
	wholeWord bool
	regex     bool
}

func compile(q Query) (*matcher, error) {
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	pattern := q.Text
	if !q.Options.Regex {
		pattern = regexp.QuoteMeta(pattern)
	}
	if !q.Options.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	return &matcher{re: re, wholeWord: q.Options.WholeWord, regex: q.Options.Regex}, nil
}

// find returns the [start, end) byte spans of the matches in s at or after
// from. Empty matches are ignored.
func (m *matcher) find(s string, from int) [][]int {
	var out [][]int
	for _, loc := range m.re.FindAllStringSubmatchIndex(s[from:], -1) {
		start, end := loc[0]+from, loc[1]+from
		if start == end {
			continue
		}
		if m.wholeWord && !isWordBoundary(s, start, end) {
			continue
		}
		sub := make([]int, len(loc))
		for i, v := range loc {
			if v >= 0 {
				v += from
			}
			sub[i] = v
		}
		out = append(out, sub)
	}
	return out
}

// expand builds the replacement of one match. Regex queries may reference
// groups as $1 or ${name}.
func (m *matcher) expand(s string, loc []int, repl string) string {
	if !m.regex {
		return repl
	}
	return string(m.re.ExpandString(nil, repl, s, loc))
}

// replaceAll substitutes every match in s and reports how many there were.
func (m *matcher) replaceAll(s, repl string) (string, int) {
	locs := m.find(s, 0)
	if len(locs) == 0 {
		return s, 0
	}
	var b []byte
	last := 0
	for _, loc := range locs {
		b = append(b, s[last:loc[0]]...)
		b = append(b, m.expand(s, loc, repl)...)
		last = loc[1]
	}
	b = append(b, s[last:]...)
	return string(b), len(locs)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// isWordBoundary reports whether s[start:end] is not glued to a word
// character on either side.
func isWordBoundary(s string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(s[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		if r, _ := utf8.DecodeRuneInString(s[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func (e *Engine) pages(indexes []int) ([]int, []*document.Page, error) {
	all := e.project.Pages()
	if indexes == nil {
		idx := make([]int, len(all))
		for i := range all {
			idx[i] = i
		}
		return idx, all, nil
	}
	pages := make([]*document.Page, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(all) {
			return nil, nil, fmt.Errorf("page %d: %w", i, document.ErrPageNotFound)
		}
	}
	idx := slices.Clone(indexes)
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		pages = append(pages, all[i])
	}
	return idx, pages, nil
}
