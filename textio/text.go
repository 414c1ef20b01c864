package textio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// The plain text layout keeps one entry per line:
//
//	# page name
//	1. first region
//	2. second region
//
// Newlines and backslashes inside an entry are escaped.

var textEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func writeText(w io.Writer, pages []PageText) error {
	for i, p := range pages {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n", p.Name); err != nil {
			return err
		}
		for j, e := range p.Entries {
			if _, err := fmt.Fprintf(w, "%d. %s\n", j+1, textEscaper.Replace(e)); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseText(src []byte) []PageText {
	var (
		pages []PageText
		cur   *PageText
	)
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if name, ok := strings.CutPrefix(line, "# "); ok {
			pages = append(pages, PageText{Name: strings.TrimSpace(name)})
			cur = &pages[len(pages)-1]
			continue
		}
		if cur == nil || strings.TrimSpace(line) == "" {
			continue
		}
		if body, ok := cutOrdinal(line); ok {
			cur.Entries = append(cur.Entries, unescapeText(body))
			continue
		}
		// A hand-edited file may break an entry over several lines.
		if n := len(cur.Entries); n > 0 {
			cur.Entries[n-1] += "\n" + unescapeText(line)
		}
	}
	return pages
}

// cutOrdinal strips a leading "N. " marker.
func cutOrdinal(line string) (string, bool) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return "", false
	}
	rest := line[i+1:]
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' {
		return "", false
	}
	return rest[1:], true
}

func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
