package textio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// The markdown layout is a level one heading per page followed by an
// ordered list with one item per region. Entry lines that would open a
// markdown block are prefixed with a backslash, which import removes again.

func writeMarkdown(w io.Writer, pages []PageText) error {
	for i, p := range pages {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "# %s\n", p.Name); err != nil {
			return err
		}
		if len(p.Entries) > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		for j, e := range p.Entries {
			if _, err := io.WriteString(w, markdownItem(j+1, e)); err != nil {
				return err
			}
		}
	}
	return nil
}

func markdownItem(n int, entry string) string {
	marker := strconv.Itoa(n) + "."
	if entry == "" {
		return marker + "\n"
	}
	indent := strings.Repeat(" ", len(marker)+1)
	var b strings.Builder
	b.WriteString(marker)
	b.WriteByte(' ')
	for i, line := range strings.Split(strings.ReplaceAll(entry, "\r\n", "\n"), "\n") {
		if i > 0 {
			b.WriteByte('\n')
			if line != "" {
				b.WriteString(indent)
			}
		}
		if markdownNeedsEscape(line) {
			b.WriteByte('\\')
		}
		b.WriteString(line)
	}
	b.WriteByte('\n')
	return b.String()
}

func markdownNeedsEscape(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case '\\', '#', '-', '*', '+', '>', '=', '_', '~', '`', '|', '<', '[', ' ', '\t':
		return true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')')
}

func parseMarkdown(src []byte) []PageText {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var (
		pages []PageText
		cur   *PageText
	)
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			if n.Level != 1 {
				continue
			}
			pages = append(pages, PageText{Name: strings.TrimSpace(rawLines(n, src, "\n"))})
			cur = &pages[len(pages)-1]
		case *ast.List:
			if cur == nil || !n.IsOrdered() {
				continue
			}
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				cur.Entries = append(cur.Entries, listItemText(item, src))
			}
		}
	}
	return pages
}

// listItemText rebuilds an entry from the raw source of the item's leaf
// blocks, so inline markup is kept verbatim.
func listItemText(item ast.Node, src []byte) string {
	var blocks []string
	_ = ast.Walk(item, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n == item || n.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		if n.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		blocks = append(blocks, rawLines(n, src, "\n"))
		return ast.WalkSkipChildren, nil
	})
	return strings.Join(blocks, "\n\n")
}

func rawLines(n ast.Node, src []byte, sep string) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(src)), "\r\n")
		if strings.HasPrefix(line, `\`) {
			line = line[1:]
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, sep)
}
