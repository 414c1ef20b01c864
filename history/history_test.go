package history

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
)

func newPage(t *testing.T, n int) (*document.Page, []string) {
	t.Helper()
	p := document.NewPage("001.png", document.ImageRef{Width: 500, Height: 500})
	var ids []string
	for i := 0; i < n; i++ {
		r := document.NewRegion(document.RegionData{
			Quad:   geom.QuadFromRect(geom.Rect{X: float64(i * 50), Y: 10, Width: 40, Height: 20}),
			Source: fmt.Sprintf("src%d", i),
			Style:  document.DefaultStyle(),
		})
		if err := p.Insert(-1, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}
	return p, ids
}

func TestUndoRedoInverse(t *testing.T) {
	p, ids := newPage(t, 3)
	log := NewLog(0)
	bold := document.DefaultStyle()
	bold.Bold = true
	moved := geom.QuadFromRect(geom.Rect{X: 300, Y: 300, Width: 60, Height: 30})

	cmds := []Command{
		&EditText{Page: p, RegionID: ids[0], Field: document.TranslationText, Old: "", New: "hello"},
		&EditStyle{Page: p, RegionID: ids[1], Old: document.DefaultStyle(), New: bold},
		&DeleteRegions{Page: p, IDs: []string{ids[2]}},
		&AddRegion{Page: p, Index: 0, Region: document.NewRegion(document.RegionData{Source: "new"})},
		&Transform{Page: p, RegionID: ids[0], OldQuad: geom.QuadFromRect(geom.Rect{X: 0, Y: 10, Width: 40, Height: 20}), NewQuad: moved, NewAngle: 15},
		&RecoverRegions{Page: p, IDs: []string{ids[2]}},
	}
	initial := p.Data()
	for i, c := range cmds {
		if err := log.Do(c); err != nil {
			t.Fatalf("do %d (%s): %v", i, c, err)
		}
	}
	final := p.Data()

	for range cmds {
		if _, err := log.Undo(); err != nil {
			t.Fatalf("undo: %v", err)
		}
	}
	if !reflect.DeepEqual(initial, p.Data()) {
		t.Fatalf("undo all did not restore initial state")
	}
	if _, err := log.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("extra undo: %v", err)
	}
	for range cmds {
		if _, err := log.Redo(); err != nil {
			t.Fatalf("redo: %v", err)
		}
	}
	if !reflect.DeepEqual(final, p.Data()) {
		t.Fatalf("redo all did not restore final state")
	}
	if _, err := log.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("extra redo: %v", err)
	}
}

func TestNewCommandDiscardsRedo(t *testing.T) {
	p, ids := newPage(t, 1)
	log := NewLog(0)
	_ = log.Do(&EditText{Page: p, RegionID: ids[0], Field: document.SourceText, Old: "src0", New: "a"})
	_ = log.Do(&EditText{Page: p, RegionID: ids[0], Field: document.SourceText, Old: "a", New: "b"})
	if _, err := log.Undo(); err != nil {
		t.Fatal(err)
	}
	if !log.CanRedo() {
		t.Fatal("expected redo side")
	}
	if err := log.Do(&EditText{Page: p, RegionID: ids[0], Field: document.SourceText, Old: "a", New: "c"}); err != nil {
		t.Fatal(err)
	}
	if log.CanRedo() {
		t.Fatal("redo side survived a new command")
	}
	entries, cursor := log.Entries()
	if len(entries) != 2 || cursor != 2 {
		t.Fatalf("entries=%d cursor=%d", len(entries), cursor)
	}
	if entries[1].Seq <= entries[0].Seq {
		t.Fatalf("sequence not increasing: %d, %d", entries[0].Seq, entries[1].Seq)
	}
}

func TestGestureCoalescing(t *testing.T) {
	p, ids := newPage(t, 1)
	r, _, _ := p.Region(ids[0])
	orig := r.Data.Quad
	log := NewLog(0)
	q := orig
	for i := 1; i <= 5; i++ {
		next := q.Apply(geom.Translate(float64(i), 0))
		if err := log.Do(&Transform{Page: p, RegionID: ids[0], Gesture: "drag-1", OldQuad: q, NewQuad: next}); err != nil {
			t.Fatal(err)
		}
		q = next
	}
	if entries, _ := log.Entries(); len(entries) != 1 {
		t.Fatalf("gesture produced %d entries", len(entries))
	}
	if _, err := log.Undo(); err != nil {
		t.Fatal(err)
	}
	r, _, _ = p.Region(ids[0])
	if r.Data.Quad != orig {
		t.Fatalf("undo of gesture did not restore start position")
	}
}

func TestBusyPageRejected(t *testing.T) {
	p, ids := newPage(t, 1)
	log := NewLog(0)
	p.TryAcquire()
	defer p.Release()
	err := log.Do(&EditText{Page: p, RegionID: ids[0], Field: document.SourceText, Old: "src0", New: "x"})
	if !errors.Is(err, document.ErrPageBusy) {
		t.Fatalf("expected ErrPageBusy, got %v", err)
	}
	if log.CanUndo() {
		t.Fatal("rejected command was recorded")
	}
}

func TestDeletedRegionEditsRejected(t *testing.T) {
	p, ids := newPage(t, 1)
	log := NewLog(0)
	if err := log.Do(&DeleteRegions{Page: p, IDs: ids}); err != nil {
		t.Fatal(err)
	}
	moved := geom.QuadFromRect(geom.Rect{X: 200, Y: 200, Width: 40, Height: 20})
	for _, c := range []Command{
		&EditText{Page: p, RegionID: ids[0], Field: document.SourceText, Old: "src0", New: "changed"},
		&EditStyle{Page: p, RegionID: ids[0], Old: document.DefaultStyle(), New: document.FontStyle{}},
		&Transform{Page: p, RegionID: ids[0], OldQuad: moved, NewQuad: moved},
	} {
		if err := log.Do(c); !errors.Is(err, document.ErrAlreadyDeleted) {
			t.Fatalf("%s on deleted region: got %v", c, err)
		}
	}
	if _, err := log.Undo(); err != nil {
		t.Fatal(err)
	}
	r, _, _ := p.Region(ids[0])
	if !r.Active() || r.Data.Source != "src0" {
		t.Fatalf("recovered region = %+v", r)
	}
}

func TestBatchRollsBack(t *testing.T) {
	p, ids := newPage(t, 2)
	b := &Batch{Label: "replace all", Cmds: []Command{
		&EditText{Page: p, RegionID: ids[0], Field: document.SourceText, Old: "src0", New: "x"},
		&EditText{Page: p, RegionID: ids[1], Field: document.SourceText, Old: "wrong", New: "y"},
	}}
	if err := NewLog(0).Do(b); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	r, _, _ := p.Region(ids[0])
	if r.Data.Source != "src0" {
		t.Fatalf("batch left partial edit: %q", r.Data.Source)
	}
}

func TestHistoriesScope(t *testing.T) {
	a, _ := newPage(t, 0)
	b, _ := newPage(t, 0)
	h := NewHistories(ScopePage, 0)
	if h.For(a) == h.For(b) {
		t.Fatal("page scope shares logs")
	}
	h = NewHistories(ScopeProject, 0)
	if h.For(a) != h.For(b) {
		t.Fatal("project scope splits logs")
	}
}

func TestLogLimit(t *testing.T) {
	p, ids := newPage(t, 1)
	log := NewLog(2)
	prev := "src0"
	for i := 0; i < 4; i++ {
		next := fmt.Sprint(i)
		if err := log.Do(&EditText{Page: p, RegionID: ids[0], Field: document.SourceText, Old: prev, New: next}); err != nil {
			t.Fatal(err)
		}
		prev = next
	}
	entries, cursor := log.Entries()
	if len(entries) != 2 || cursor != 2 {
		t.Fatalf("entries=%d cursor=%d", len(entries), cursor)
	}
}

func TestDoBatchGroupsByLog(t *testing.T) {
	p1, ids1 := newPage(t, 1)
	p2, ids2 := newPage(t, 1)
	edits := func() []Command {
		return []Command{
			&EditText{Page: p1, RegionID: ids1[0], Field: document.SourceText, Old: "src0", New: "a"},
			&EditText{Page: p2, RegionID: ids2[0], Field: document.SourceText, Old: "src0", New: "b"},
		}
	}

	h := NewHistories(ScopePage, 0)
	if err := h.DoBatch("edit", edits()); err != nil {
		t.Fatal(err)
	}
	if !h.For(p1).CanUndo() || !h.For(p2).CanUndo() {
		t.Fatal("expected one step in each page log")
	}
	if _, err := h.For(p1).Undo(); err != nil {
		t.Fatal(err)
	}
	if got := p1.Regions()[0].Data.Source; got != "src0" {
		t.Fatalf("p1 source = %q", got)
	}
	if got := p2.Regions()[0].Data.Source; got != "b" {
		t.Fatalf("p2 source = %q", got)
	}

	// A busy page rejects its batch and the other page's batch is undone.
	p3, ids3 := newPage(t, 1)
	p4, ids4 := newPage(t, 1)
	p4.TryAcquire()
	defer p4.Release()
	h = NewHistories(ScopePage, 0)
	err := h.DoBatch("edit", []Command{
		&EditText{Page: p3, RegionID: ids3[0], Field: document.SourceText, Old: "src0", New: "x"},
		&EditText{Page: p4, RegionID: ids4[0], Field: document.SourceText, Old: "src0", New: "y"},
	})
	if !errors.Is(err, document.ErrPageBusy) {
		t.Fatalf("err = %v", err)
	}
	if got := p3.Regions()[0].Data.Source; got != "src0" {
		t.Fatalf("p3 source = %q after rollback", got)
	}
}
