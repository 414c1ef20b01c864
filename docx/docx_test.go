package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/textio"
)

func project(t *testing.T, pages ...[]Row) *document.Project {
	t.Helper()
	proj := document.NewProject("")
	for i, rows := range pages {
		p := document.NewPage(string(rune('A'+i))+".png", document.ImageRef{})
		for j, r := range rows {
			reg := document.NewRegion(document.RegionData{
				Quad:        geom.QuadFromRect(geom.Rect{Y: float64(j * 40), Width: 100, Height: 30}),
				Source:      r.Source,
				Translation: r.Translation,
			})
			if err := p.Insert(-1, reg); err != nil {
				t.Fatal(err)
			}
		}
		proj.AddPage(p)
	}
	return proj
}

func TestWriteRead(t *testing.T) {
	pages := []Page{
		{Name: "001.png", Rows: []Row{
			{Source: "こんにちは", Translation: "Hello"},
			{Source: "a\nb", Translation: "  <x> & \"y\"\tz"},
			{},
		}},
		{Name: "002.png"},
	}
	var buf bytes.Buffer
	if err := Write(&buf, pages); err != nil {
		t.Fatal(err)
	}
	got, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "001.png" || got[1].Name != "002.png" {
		t.Fatalf("pages = %+v", got)
	}
	if !slices.Equal(got[0].Rows, pages[0].Rows) {
		t.Fatalf("rows = %q, want %q", got[0].Rows, pages[0].Rows)
	}
	if len(got[1].Rows) != 0 {
		t.Fatalf("page 2 rows = %q", got[1].Rows)
	}
}

func TestReadRejectsOtherArchives(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("plain")), 5); !errors.Is(err, ErrNotDocument) {
		t.Fatalf("err = %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("other.xml"); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	if _, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len())); !errors.Is(err, ErrNotDocument) {
		t.Fatalf("err = %v", err)
	}
}

func TestImportMatchesByOrder(t *testing.T) {
	proj := project(t,
		[]Row{{Source: "s1", Translation: "t1"}},
		[]Row{{Source: "s2", Translation: "t2"}, {Source: "s3", Translation: "t3"}},
	)
	path := filepath.Join(t.TempDir(), "out.docx")
	if err := Export(path, proj); err != nil {
		t.Fatal(err)
	}

	// Rename the pages in the file; import pairs them by position.
	pages, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pages[0].Name = "renamed"
	pages[1].Rows[1].Translation = "edited"
	var buf bytes.Buffer
	if err := Write(&buf, pages); err != nil {
		t.Fatal(err)
	}
	got, err := Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	rep, err := matchPages(proj, got)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.OK() || !slices.Equal(rep.Matched, []string{"A.png", "B.png"}) {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Edits) != 1 || rep.Edits[0].New != "edited" || rep.Edits[0].Old != "t3" {
		t.Fatalf("edits = %+v", rep.Edits)
	}

	rep, err = Import(context.Background(), path, proj, document.SourceText)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.OK() || len(rep.Edits) != 0 {
		t.Fatalf("source import = %+v", rep)
	}
}

func TestImportExtraPage(t *testing.T) {
	proj := project(t, []Row{{Source: "s", Translation: "t"}})
	pages := []Page{
		{Name: "x", Rows: []Row{{Translation: "t"}}},
		{Name: "extra.png", Rows: []Row{{Translation: "?"}}},
	}
	rep, err := matchPages(proj, pages)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rep.Unexpected, []string{"extra.png"}) || !slices.Equal(rep.Matched, []string{"A.png"}) {
		t.Fatalf("report = %+v", rep)
	}
}

func matchPages(proj *document.Project, pages []Page) (*textio.Report, error) {
	return textio.Match(context.Background(), proj, TextPages(proj, pages, document.TranslationText), document.TranslationText)
}
