// Package docx exports page texts to a Word document and reads them back.
//
// Each page becomes a level one heading carrying the page name followed by
// a three column table (number, source, translation) with one row per
// active region.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/textio"
)

var ErrNotDocument = errors.New("not a word document")

// Row is one region's texts.
type Row struct {
	Source      string
	Translation string
}

// Page is one exported page.
type Page struct {
	Name string
	Rows []Row
}

// Collect gathers the active regions of every page.
func Collect(p *document.Project) []Page {
	pages := p.Pages()
	out := make([]Page, 0, len(pages))
	for _, pg := range pages {
		rs := pg.ActiveRegions()
		dp := Page{Name: pg.Data().Name, Rows: make([]Row, len(rs))}
		for i, r := range rs {
			dp.Rows[i] = Row{Source: r.Data.Source, Translation: r.Data.Translation}
		}
		out = append(out, dp)
	}
	return out
}

// Export writes the project's texts to a .docx file at path.
func Export(path string, p *document.Project) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, Collect(p)); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

// Write encodes pages as a docx package.
func Write(w io.Writer, pages []Page) error {
	zw := zip.NewWriter(w)
	parts := []struct{ name, body string }{
		{"[Content_Types].xml", contentTypes},
		{"_rels/.rels", rootRels},
		{"word/_rels/document.xml.rels", documentRels},
		{"word/styles.xml", stylesXML},
		{"word/document.xml", documentXML(pages)},
	}
	for _, part := range parts {
		fw, err := zw.Create(part.name)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(fw, part.body); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Read parses a document produced by Write. Paragraphs other than page
// headings and tables outside a page are ignored.
func Read(r io.ReaderAt, size int64) ([]Page, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocument, err)
	}
	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			if body, err = f.Open(); err != nil {
				return nil, err
			}
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: missing word/document.xml", ErrNotDocument)
	}
	defer body.Close()
	return parseBody(xml.NewDecoder(body))
}

// ReadFile reads the document at path.
func ReadFile(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pages, err := Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return pages, nil
}

func parseBody(dec *xml.Decoder) ([]Page, error) {
	var pages []Page
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return pages, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parsing document.xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "p":
			var p paragraphXML
			if err := dec.DecodeElement(&p, &start); err != nil {
				return nil, err
			}
			if p.Properties.Style.Val == headingStyle {
				pages = append(pages, Page{Name: strings.TrimSpace(p.text())})
			}
		case "tbl":
			var t tableXML
			if err := dec.DecodeElement(&t, &start); err != nil {
				return nil, err
			}
			if len(pages) == 0 {
				continue
			}
			cur := &pages[len(pages)-1]
			for _, row := range t.Rows {
				if row.Properties.Header != nil || len(row.Cells) < 3 {
					continue
				}
				cur.Rows = append(cur.Rows, Row{Source: row.Cells[1].text(), Translation: row.Cells[2].text()})
			}
		}
	}
}

// TextPages converts pages to textio form for field. Pages are renamed to
// the project's page names by position, because the document is matched
// by page order; pages past the project's end keep their own names.
func TextPages(p *document.Project, pages []Page, field document.TextField) []textio.PageText {
	names := p.Pages()
	out := make([]textio.PageText, len(pages))
	for i, dp := range pages {
		name := dp.Name
		if i < len(names) {
			name = names[i].Data().Name
		}
		entries := make([]string, len(dp.Rows))
		for j, r := range dp.Rows {
			if field == document.TranslationText {
				entries[j] = r.Translation
			} else {
				entries[j] = r.Source
			}
		}
		out[i] = textio.PageText{Name: name, Entries: entries}
	}
	return out
}

// Import reads the document at path and matches it against the project.
func Import(ctx context.Context, path string, p *document.Project, field document.TextField, opts ...textio.MatchOption) (*textio.Report, error) {
	pages, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return textio.Match(ctx, p, TextPages(p, pages, field), field, opts...)
}

func documentXML(pages []Page) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="` + nsW + `"><w:body>`)
	for _, p := range pages {
		b.WriteString(`<w:p><w:pPr><w:pStyle w:val="` + headingStyle + `"/></w:pPr>`)
		writeRuns(&b, p.Name)
		b.WriteString(`</w:p>`)

		b.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/></w:tblPr>`)
		b.WriteString(`<w:tblGrid><w:gridCol w:w="600"/><w:gridCol w:w="4200"/><w:gridCol w:w="4200"/></w:tblGrid>`)
		writeRow(&b, true, "#", "Source", "Translation")
		for i, r := range p.Rows {
			writeRow(&b, false, strconv.Itoa(i+1), r.Source, r.Translation)
		}
		b.WriteString(`</w:tbl>`)
	}
	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.String()
}

func writeRow(b *strings.Builder, header bool, cells ...string) {
	b.WriteString(`<w:tr>`)
	if header {
		b.WriteString(`<w:trPr><w:tblHeader/></w:trPr>`)
	}
	for _, c := range cells {
		b.WriteString(`<w:tc><w:p>`)
		writeRuns(b, c)
		b.WriteString(`</w:p></w:tc>`)
	}
	b.WriteString(`</w:tr>`)
}

func writeRuns(b *strings.Builder, s string) {
	b.WriteString(`<w:r>`)
	for i, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if i > 0 {
			b.WriteString(`<w:br/>`)
		}
		if line == "" {
			continue
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(b, []byte(line))
		b.WriteString(`</w:t>`)
	}
	b.WriteString(`</w:r>`)
}

const contentTypes = xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`</Types>`

const rootRels = xml.Header + `<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

const documentRels = xml.Header + `<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`</Relationships>`

const stylesXML = xml.Header + `<w:styles xmlns:w="` + nsW + `">` +
	`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/>` +
	`<w:pPr><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>` +
	`<w:style w:type="table" w:styleId="TableGrid"><w:name w:val="Table Grid"/><w:tblPr><w:tblBorders>` +
	`<w:top w:val="single" w:sz="4"/><w:left w:val="single" w:sz="4"/><w:bottom w:val="single" w:sz="4"/>` +
	`<w:right w:val="single" w:sz="4"/><w:insideH w:val="single" w:sz="4"/><w:insideV w:val="single" w:sz="4"/>` +
	`</w:tblBorders></w:tblPr></w:style>` +
	`</w:styles>`
