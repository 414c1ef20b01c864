// Package textio exports page texts to plain text, markdown and HTML files
// and matches imported files back against an open project.
package textio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/wudi/pagetrans/document"
)

// Format selects the file layout.
type Format int

const (
	FormatText Format = iota
	FormatMarkdown
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatHTML:
		return "html"
	default:
		return "text"
	}
}

// Ext returns the file extension used for the format, with the dot.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	default:
		return ".txt"
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatText
	}
}

// PageText is the exported text of one page: one entry per active region,
// in region order.
type PageText struct {
	Name    string
	Entries []string
}

// Collect returns the selected text of every page's active regions.
func Collect(p *document.Project, field document.TextField) []PageText {
	pages := p.Pages()
	out := make([]PageText, 0, len(pages))
	for _, pg := range pages {
		rs := pg.ActiveRegions()
		pt := PageText{Name: pg.Data().Name, Entries: make([]string, len(rs))}
		for i, r := range rs {
			pt.Entries[i] = r.Data.Text(field)
		}
		out = append(out, pt)
	}
	return out
}

// Write encodes pages in the given format.
func Write(w io.Writer, f Format, pages []PageText) error {
	switch f {
	case FormatMarkdown:
		return writeMarkdown(w, pages)
	case FormatHTML:
		return writeHTML(w, pages)
	default:
		return writeText(w, pages)
	}
}

// Parse decodes pages from r. A UTF-8 or UTF-16 byte order mark selects the
// encoding; input without one is read as UTF-8.
func Parse(r io.Reader, f Format) ([]PageText, error) {
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	src, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	switch f {
	case FormatMarkdown:
		return parseMarkdown(src), nil
	case FormatHTML:
		return parseHTML(src)
	default:
		return parseText(src), nil
	}
}

// Export writes the selected text of the project to path. The format
// follows the file extension.
func Export(path string, p *document.Project, field document.TextField) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, FormatFromPath(path), Collect(p, field)); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ExportPair writes one file of source text and one of translation text
// next to each other, named base_source.ext and base_translation.ext.
func ExportPair(base string, f Format, p *document.Project) (source, translation string, err error) {
	source = base + "_source" + f.Ext()
	translation = base + "_translation" + f.Ext()
	if err = Export(source, p, document.SourceText); err != nil {
		return "", "", err
	}
	if err = Export(translation, p, document.TranslationText); err != nil {
		return "", "", err
	}
	return source, translation, nil
}

// ReadFile parses the file at path using the format of its extension.
func ReadFile(path string) ([]PageText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pages, err := Parse(f, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return pages, nil
}
