// Package keyword applies ordered keyword-substitution rules to text.
package keyword

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule replaces Keyword with Substitution. With UseRegex the keyword is a
// regular expression and the substitution may reference groups as $1.
type Rule struct {
	Keyword       string `json:"keyword" yaml:"keyword"`
	Substitution  string `json:"substitution" yaml:"substitution"`
	UseRegex      bool   `json:"use_regex" yaml:"use_regex"`
	CaseSensitive bool   `json:"case_sensitive" yaml:"case_sensitive"`
}

// RuleError reports a rule that could not be compiled.
type RuleError struct {
	Index int
	Rule  Rule
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("keyword rule %d (%q): %v", e.Index, e.Rule.Keyword, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// List is an ordered set of rules. Rules apply in order, each to the output
// of the previous one.
type List []Rule

// Compiled is a List ready to apply.
type Compiled struct {
	steps []*regexp.Regexp
	subs  []string
}

// Compile prepares the rules. Rules with an empty keyword are ignored;
// rules whose pattern does not compile are skipped and returned as errors.
func (l List) Compile() (*Compiled, []error) {
	c := &Compiled{}
	var errs []error
	for i, r := range l {
		if r.Keyword == "" {
			continue
		}
		pattern := r.Keyword
		sub := r.Substitution
		if !r.UseRegex {
			pattern = regexp.QuoteMeta(pattern)
			sub = strings.ReplaceAll(sub, "$", "$$")
		}
		if !r.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			errs = append(errs, &RuleError{Index: i, Rule: r, Err: err})
			continue
		}
		c.steps = append(c.steps, re)
		c.subs = append(c.subs, sub)
	}
	return c, errs
}

// Len returns the number of usable rules.
func (c *Compiled) Len() int {
	if c == nil {
		return 0
	}
	return len(c.steps)
}

// Apply runs every rule over s.
func (c *Compiled) Apply(s string) string {
	if c == nil {
		return s
	}
	for i, re := range c.steps {
		s = re.ReplaceAllString(s, c.subs[i])
	}
	return s
}

// ApplyAll runs every rule over each string of ss in place.
func (c *Compiled) ApplyAll(ss []string) {
	for i := range ss {
		ss[i] = c.Apply(ss[i])
	}
}

// Lists holds the three independent substitution passes of translation.
type Lists struct {
	// Source applies to the source text when the translation query is built.
	Source List `json:"source" yaml:"source"`
	// MTSource is a second pass over the query, after Source.
	MTSource List `json:"mt_source" yaml:"mt_source"`
	// MTResult applies to the translator's output.
	MTResult List `json:"mt_result" yaml:"mt_result"`
}

// CompiledLists is Lists ready to apply.
type CompiledLists struct {
	Source, MTSource, MTResult *Compiled
}

// Compile compiles all three lists, collecting the errors of each.
func (l Lists) Compile() (CompiledLists, []error) {
	var out CompiledLists
	var errs, e []error
	out.Source, e = l.Source.Compile()
	errs = append(errs, e...)
	out.MTSource, e = l.MTSource.Compile()
	errs = append(errs, e...)
	out.MTResult, e = l.MTResult.Compile()
	errs = append(errs, e...)
	return out, errs
}
