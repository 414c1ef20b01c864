package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/geom"
	"github.com/wudi/pagetrans/keyword"
	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/stage"
)

type blankImages struct{}

func (blankImages) Image(context.Context, *document.Page) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 200, 200)), nil
}

type fakeDetector struct {
	hook func(in stage.DetectInput)
}

func (fakeDetector) Name() string { return "fake-det" }

func (d fakeDetector) Run(_ context.Context, in stage.DetectInput) (stage.DetectResult, error) {
	if d.hook != nil {
		d.hook(in)
	}
	return stage.DetectResult{Regions: []stage.DetectedRegion{
		{Quad: geom.QuadFromRect(geom.Rect{X: 10, Y: 10, Width: 50, Height: 30})},
	}}, nil
}

type fakeRecognizer struct {
	texts map[string]string
	fail  map[string]bool
}

func (fakeRecognizer) Name() string { return "fake-ocr" }

func (r fakeRecognizer) Run(_ context.Context, in stage.RecognizeInput) (stage.RecognizeResult, error) {
	if r.fail[in.Page] {
		return stage.RecognizeResult{}, errors.New("ocr exploded")
	}
	out := make([]string, len(in.Boxes))
	for i := range out {
		out[i] = r.texts[in.Page]
	}
	return stage.RecognizeResult{Texts: out}, nil
}

type fakeTranslator struct {
	fail map[string]bool
}

func (fakeTranslator) Name() string { return "fake-mt" }

func (t fakeTranslator) Run(_ context.Context, in stage.TranslateInput) (stage.TranslateResult, error) {
	if t.fail[in.Page] {
		return stage.TranslateResult{}, errors.New("quota exceeded")
	}
	out := make([]string, len(in.Texts))
	for i, s := range in.Texts {
		out[i] = "tr(" + s + ")"
	}
	return stage.TranslateResult{Texts: out}, nil
}

type fakeInpainter struct{}

func (fakeInpainter) Name() string { return "fake-inpaint" }

func (fakeInpainter) Run(_ context.Context, in stage.InpaintInput) (stage.InpaintResult, error) {
	return stage.InpaintResult{Image: in.Image}, nil
}

// fakeBackends records the order of backend requests.
type fakeBackends struct {
	mu       sync.Mutex
	det      stage.Detector
	rec      stage.Recognizer
	tr       stage.Translator
	inp      stage.Inpainter
	trErr    error
	trLoads  int
	calls     []string
	unloaded  int
	unloadErr error
}

func (b *fakeBackends) log(s string) {
	b.mu.Lock()
	b.calls = append(b.calls, s)
	b.mu.Unlock()
}

func (b *fakeBackends) Detector(context.Context) (stage.Detector, error) {
	b.log("det")
	return b.det, nil
}

func (b *fakeBackends) Recognizer(context.Context) (stage.Recognizer, error) {
	b.log("ocr")
	return b.rec, nil
}

func (b *fakeBackends) Translator(context.Context) (stage.Translator, error) {
	b.log("mt")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trLoads++
	if b.trErr != nil {
		return nil, &stage.LoadError{Stage: stage.Translation, Backend: "fake-mt", Cause: b.trErr}
	}
	return b.tr, nil
}

func (b *fakeBackends) Inpainter(context.Context) (stage.Inpainter, error) {
	b.log("inpaint")
	return b.inp, nil
}

func (b *fakeBackends) UnloadAll() error {
	b.mu.Lock()
	b.unloaded++
	b.mu.Unlock()
	return b.unloadErr
}

func (b *fakeBackends) UnloadExcept(stage.Stage) error {
	b.log("unload")
	return nil
}

func newBackends() *fakeBackends {
	return &fakeBackends{
		det: fakeDetector{},
		rec: fakeRecognizer{texts: map[string]string{"page1.png": "こんにちは", "page2.png": "さようなら"}},
		tr:  fakeTranslator{},
		inp: fakeInpainter{},
	}
}

func newProject(t *testing.T, names ...string) *document.Project {
	t.Helper()
	proj := document.NewProject("")
	for _, n := range names {
		proj.AddPage(document.NewPage(n, document.ImageRef{Width: 200, Height: 200}))
	}
	return proj
}

func TestTranslationFailureIsIsolated(t *testing.T) {
	proj := newProject(t, "page1.png", "page2.png")
	p1, _ := proj.Page(0)
	_ = p1.Insert(-1, document.NewRegion(document.RegionData{
		Quad:   geom.QuadFromRect(geom.Rect{X: 10, Y: 10, Width: 50, Height: 30}),
		Source: "こんにちは",
	}))
	b := newBackends()
	b.tr = fakeTranslator{fail: map[string]bool{"page1.png": true}}
	o := New(proj, b, WithImages(blankImages{}), WithOptions(Options{Workers: 2}))

	report, err := o.Run(context.Background(), Request{
		Stages: stage.NewSet(stage.Detection, stage.OCR, stage.Translation),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []struct {
		page  int
		st    stage.Stage
		state stage.State
	}{
		{0, stage.Detection, stage.Succeeded},
		{0, stage.OCR, stage.Succeeded},
		{0, stage.Translation, stage.Failed},
		{1, stage.Detection, stage.Succeeded},
		{1, stage.OCR, stage.Succeeded},
		{1, stage.Translation, stage.Succeeded},
	}
	if len(report.Entries) != len(want) {
		t.Fatalf("entries = %d, want %d: %+v", len(report.Entries), len(want), report.Entries)
	}
	for i, w := range want {
		e := report.Entries[i]
		if e.Page != w.page || e.Stage != w.st || e.State != w.state {
			t.Fatalf("entry %d = (%d, %s, %s), want (%d, %s, %s)", i, e.Page, e.Stage, e.State, w.page, w.st, w.state)
		}
	}
	if f := report.Failures(); len(f) != 1 || f[0].Tag != stage.TagTranslationFailed {
		t.Fatalf("failures = %+v", f)
	}
	rs := p1.ActiveRegions()
	if len(rs) != 1 || rs[0].Data.Translation != "" || rs[0].Data.Source != "こんにちは" {
		t.Fatalf("page1 regions = %+v", rs)
	}
	if rs[0].Status[stage.Translation].State != stage.Failed {
		t.Fatalf("region marker = %v", rs[0].Status[stage.Translation])
	}
	p2, _ := proj.Page(1)
	if got := p2.ActiveRegions()[0].Data.Translation; got != "tr(さようなら)" {
		t.Fatalf("page2 translation = %q", got)
	}
}

func TestOCRFailureSkipsDependentsOnly(t *testing.T) {
	proj := newProject(t, "page1.png", "page2.png")
	b := newBackends()
	b.rec = fakeRecognizer{
		texts: map[string]string{"page1.png": "a"},
		fail:  map[string]bool{"page2.png": true},
	}
	o := New(proj, b, WithImages(blankImages{}))
	report, err := o.Run(context.Background(), Request{Stages: stage.All()})
	if err != nil {
		t.Fatal(err)
	}
	if f := report.Failures(); len(f) != 1 || f[0].Page != 1 || f[0].Stage != stage.OCR {
		t.Fatalf("failures = %+v", f)
	}
	if e, _ := report.Outcome(1, stage.Translation); e.State != stage.Skipped {
		t.Fatalf("translation after failed OCR = %s", e.State)
	}
	if e, _ := report.Outcome(1, stage.Inpainting); e.State != stage.Succeeded {
		t.Fatalf("inpainting after failed OCR = %s", e.State)
	}
	if e, _ := report.Outcome(0, stage.Inpainting); e.State != stage.Succeeded {
		t.Fatalf("page 0 inpainting = %s", e.State)
	}
}

func TestLoadErrorFailsOnlyDependentStages(t *testing.T) {
	proj := newProject(t, "page1.png", "page2.png", "page3.png")
	b := newBackends()
	b.rec = fakeRecognizer{texts: map[string]string{"page1.png": "a", "page2.png": "b", "page3.png": "c"}}
	b.trErr = errors.New("no api key")
	o := New(proj, b, WithImages(blankImages{}))
	report, err := o.Run(context.Background(), Request{Stages: stage.All()})
	if err != nil {
		t.Fatal(err)
	}
	failures := report.Failures()
	if len(failures) != 3 {
		t.Fatalf("failures = %+v", failures)
	}
	for _, f := range failures {
		if f.Stage != stage.Translation || f.Tag != stage.TagSetTranslator {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
	if b.trLoads != 1 {
		t.Fatalf("translator load attempted %d times", b.trLoads)
	}
	if len(report.Entries) != 12 {
		t.Fatalf("entries = %d", len(report.Entries))
	}
}

func TestFullRunRequiresConfirmation(t *testing.T) {
	proj := newProject(t, "page1.png")
	p, _ := proj.Page(0)
	_ = p.Insert(-1, document.NewRegion(document.RegionData{
		Quad:        geom.QuadFromRect(geom.Rect{X: 0, Y: 0, Width: 10, Height: 10}),
		Translation: "old",
	}))
	o := New(proj, newBackends(), WithImages(blankImages{}))
	req := Request{Stages: stage.NewSet(stage.Translation)}
	if _, err := o.Run(context.Background(), req); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("got %v", err)
	}
	if p.ActiveRegions()[0].Data.Translation != "old" {
		t.Fatal("rejected run touched the page")
	}
	req.Destructive = true
	if _, err := o.Run(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	req.Mode = ModeSkipStyleUpdate
	req.Destructive = false
	if _, err := o.Run(context.Background(), req); err != nil {
		t.Fatalf("skip-style-update should not need confirmation: %v", err)
	}
}

func TestFullRunConfirmationPerStage(t *testing.T) {
	for _, tc := range []struct {
		name    string
		stages  stage.Set
		keep    bool
		confirm bool
	}{
		{"detection", stage.NewSet(stage.Detection), false, true},
		{"inpainting", stage.NewSet(stage.Inpainting), false, true},
		{"detection keeping lines", stage.NewSet(stage.Detection), true, false},
		{"ocr", stage.NewSet(stage.OCR), false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			proj := newProject(t, "page1.png")
			p, _ := proj.Page(0)
			_ = p.Insert(-1, document.NewRegion(document.RegionData{
				Quad:        geom.QuadFromRect(geom.Rect{X: 0, Y: 0, Width: 10, Height: 10}),
				Source:      "src",
				Translation: "old",
			}))
			b := newBackends()
			o := New(proj, b, WithImages(blankImages{}), WithOptions(Options{KeepExistingLines: tc.keep}))
			_, err := o.Run(context.Background(), Request{Stages: tc.stages})
			if !tc.confirm {
				if err != nil {
					t.Fatalf("unexpected confirmation: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrConfirmationRequired) {
				t.Fatalf("got %v", err)
			}
			if len(b.calls) != 0 {
				t.Fatalf("backends called: %v", b.calls)
			}
			if got := p.ActiveRegions(); len(got) != 1 || got[0].Data.Translation != "old" {
				t.Fatalf("rejected run touched the page: %+v", got)
			}
		})
	}
}

func TestAllStagesDisabled(t *testing.T) {
	proj := newProject(t, "page1.png")
	b := newBackends()
	report, err := New(proj, b).Run(context.Background(), Request{})
	if err != nil || len(report.Entries) != 0 {
		t.Fatalf("report = %+v, err = %v", report, err)
	}
	if len(b.calls) != 0 {
		t.Fatalf("backends touched: %v", b.calls)
	}
}

func TestStopAtPageBoundary(t *testing.T) {
	proj := newProject(t, "page1.png", "page2.png", "page3.png")
	b := newBackends()
	var o *Orchestrator
	var calls int
	b.det = fakeDetector{hook: func(stage.DetectInput) {
		calls++
		o.Stop()
	}}
	o = New(proj, b, WithImages(blankImages{}), WithOptions(Options{Workers: 1}))
	report, err := o.Run(context.Background(), Request{Stages: stage.NewSet(stage.Detection, stage.OCR)})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("detector called %d times", calls)
	}
	if !report.Cancelled {
		t.Fatal("report not marked cancelled")
	}
	var succeededPages, skipped int
	for _, e := range report.Entries {
		switch e.State {
		case stage.Succeeded:
			succeededPages++
		case stage.Skipped:
			skipped++
		}
	}
	if succeededPages != 2 || skipped != 4 {
		t.Fatalf("succeeded = %d, skipped = %d: %+v", succeededPages, skipped, report.Entries)
	}
}

func TestPageBusyDuringRun(t *testing.T) {
	proj := newProject(t, "page1.png")
	p, _ := proj.Page(0)
	b := newBackends()
	var busy bool
	b.det = fakeDetector{hook: func(stage.DetectInput) { busy = p.Busy() }}
	if _, err := New(proj, b, WithImages(blankImages{})).Run(context.Background(), Request{Stages: stage.NewSet(stage.Detection)}); err != nil {
		t.Fatal(err)
	}
	if !busy {
		t.Fatal("page not marked busy while processed")
	}
	if p.Busy() {
		t.Fatal("page still busy after run")
	}
}

func TestKeywordsAndUppercase(t *testing.T) {
	proj := newProject(t, "page1.png")
	b := newBackends()
	b.rec = fakeRecognizer{texts: map[string]string{"page1.png": "hello cat"}}
	var bad []error
	o := New(proj, b, WithImages(blankImages{}), WithKeywordErrors(func(err error) { bad = append(bad, err) }), WithOptions(Options{
		TranslateToUpper: true,
		Keywords: keyword.Lists{
			Source:   keyword.List{{Keyword: "cat", Substitution: "dog"}},
			MTSource: keyword.List{{Keyword: "hello", Substitution: "hi"}, {Keyword: "(", UseRegex: true}},
			MTResult: keyword.List{{Keyword: "tr", Substitution: "mt", CaseSensitive: true}},
		},
	}))
	if _, err := o.Run(context.Background(), Request{Stages: stage.NewSet(stage.Detection, stage.OCR, stage.Translation)}); err != nil {
		t.Fatal(err)
	}
	p, _ := proj.Page(0)
	r := p.ActiveRegions()[0]
	if r.Data.Source != "hello cat" {
		t.Fatalf("source = %q", r.Data.Source)
	}
	if r.Data.Translation != "MT(HI DOG)" {
		t.Fatalf("translation = %q", r.Data.Translation)
	}
	if len(bad) != 1 {
		t.Fatalf("keyword errors = %v", bad)
	}
}

func TestSourceKeywordsOnTranslateOnly(t *testing.T) {
	proj := newProject(t, "page1.png")
	p, _ := proj.Page(0)
	r := document.NewRegion(document.RegionData{
		Quad:   geom.QuadFromRect(geom.Rect{X: 10, Y: 10, Width: 50, Height: 30}),
		Source: "こんにちは",
	})
	_ = p.Insert(-1, r)
	o := New(proj, newBackends(), WithImages(blankImages{}), WithOptions(Options{
		Keywords: keyword.Lists{
			Source:   keyword.List{{Keyword: "こんにちは", Substitution: "HELLO"}},
			MTSource: keyword.List{{Keyword: "HELLO", Substitution: "HI"}},
		},
	}))
	for range 2 {
		if _, err := o.Run(context.Background(), Request{Stages: stage.All(), Mode: ModeTranslateOnly}); err != nil {
			t.Fatal(err)
		}
		got, _, _ := p.Region(r.ID)
		if got.Data.Translation != "tr(HI)" || got.Data.Source != "こんにちは" {
			t.Fatalf("source = %q, translation = %q", got.Data.Source, got.Data.Translation)
		}
	}
}

func TestRestoreEmptyOCR(t *testing.T) {
	proj := newProject(t, "page1.png")
	b := newBackends()
	b.rec = fakeRecognizer{texts: map[string]string{"page1.png": "  "}}
	o := New(proj, b, WithImages(blankImages{}), WithOptions(Options{RestoreEmptyOCR: true}))
	if _, err := o.Run(context.Background(), Request{Stages: stage.NewSet(stage.Detection, stage.OCR)}); err != nil {
		t.Fatal(err)
	}
	p, _ := proj.Page(0)
	if len(p.ActiveRegions()) != 0 || p.Len() != 1 {
		t.Fatalf("active = %d, total = %d", len(p.ActiveRegions()), p.Len())
	}
	if m := p.Mask(); m == nil || m.GrayAt(20, 20).Y != 0 {
		t.Fatal("mask not cleared for empty region")
	}
}

func TestLowVRAMSecondPass(t *testing.T) {
	proj := newProject(t, "page1.png", "page2.png")
	b := newBackends()
	o := New(proj, b, WithImages(blankImages{}), WithOptions(Options{LowVRAM: true, EmptyCacheAfterRun: true}))
	if _, err := o.Run(context.Background(), Request{Stages: stage.All()}); err != nil {
		t.Fatal(err)
	}
	seq := strings.Join(b.calls, ",")
	unload := strings.Index(seq, "unload")
	if unload < 0 || strings.Contains(seq[:unload], "mt") || strings.Contains(seq[unload:], "det") {
		t.Fatalf("call order = %s", seq)
	}
	if b.unloaded != 1 {
		t.Fatalf("unload all called %d times", b.unloaded)
	}
}

func TestRunRegions(t *testing.T) {
	proj := newProject(t, "page1.png")
	p, _ := proj.Page(0)
	a := document.NewRegion(document.RegionData{Quad: geom.QuadFromRect(geom.Rect{X: 0, Y: 0, Width: 20, Height: 20}), Source: "a"})
	c := document.NewRegion(document.RegionData{Quad: geom.QuadFromRect(geom.Rect{X: 50, Y: 0, Width: 20, Height: 20}), Source: "c"})
	_ = p.Insert(-1, a)
	_ = p.Insert(-1, c)
	o := New(proj, newBackends(), WithImages(blankImages{}))
	report, err := o.RunRegions(context.Background(), 0, []string{c.ID}, RegionTranslate)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() || len(report.Entries) != 1 {
		t.Fatalf("report = %+v", report.Entries)
	}
	got, _, _ := p.Region(c.ID)
	other, _, _ := p.Region(a.ID)
	if got.Data.Translation != "tr(c)" || other.Data.Translation != "" {
		t.Fatalf("translations = %q, %q", got.Data.Translation, other.Data.Translation)
	}
	if _, err := o.RunRegions(context.Background(), 0, []string{"missing"}, RegionOCR); !errors.Is(err, document.ErrRegionNotFound) {
		t.Fatalf("missing region: %v", err)
	}
}

// stoppingRecognizer stops the orchestrator while OCR is running.
type stoppingRecognizer struct {
	fakeRecognizer
	o **Orchestrator
}

func (r stoppingRecognizer) Run(ctx context.Context, in stage.RecognizeInput) (stage.RecognizeResult, error) {
	(*r.o).Stop()
	return r.fakeRecognizer.Run(ctx, in)
}

func TestStopReachesRegionRun(t *testing.T) {
	proj := newProject(t, "page1.png")
	p, _ := proj.Page(0)
	a := document.NewRegion(document.RegionData{Quad: geom.QuadFromRect(geom.Rect{X: 0, Y: 0, Width: 20, Height: 20})})
	_ = p.Insert(-1, a)
	var o *Orchestrator
	b := newBackends()
	b.rec = stoppingRecognizer{fakeRecognizer: fakeRecognizer{texts: map[string]string{"page1.png": "x"}}, o: &o}
	o = New(proj, b, WithImages(blankImages{}))
	report, err := o.RunRegions(context.Background(), 0, []string{a.ID}, RegionOCRTranslate)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Cancelled {
		t.Fatal("report not marked cancelled")
	}
	if e, _ := report.Outcome(0, stage.OCR); e.State != stage.Succeeded {
		t.Fatalf("ocr = %s", e.State)
	}
	if e, _ := report.Outcome(0, stage.Translation); e.State != stage.Skipped || e.Reason != "cancelled" {
		t.Fatalf("translation = %s (%s)", e.State, e.Reason)
	}
	if got, _, _ := p.Region(a.ID); got.Data.Translation != "" {
		t.Fatalf("translation = %q", got.Data.Translation)
	}
}

// warnLogger keeps the warning messages.
type warnLogger struct {
	observability.NopLogger
	mu    sync.Mutex
	warns []string
}

func (l *warnLogger) Warn(msg string, _ ...observability.Field) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestEmptyCacheFailureIsLogged(t *testing.T) {
	proj := newProject(t, "page1.png")
	p, _ := proj.Page(0)
	a := document.NewRegion(document.RegionData{Quad: geom.QuadFromRect(geom.Rect{X: 0, Y: 0, Width: 20, Height: 20}), Source: "a"})
	_ = p.Insert(-1, a)
	b := newBackends()
	b.unloadErr = errors.New("device busy")
	logs := &warnLogger{}
	o := New(proj, b, WithImages(blankImages{}), WithLogger(logs), WithOptions(Options{EmptyCacheAfterRun: true}))
	report, err := o.RunRegions(context.Background(), 0, []string{a.ID}, RegionTranslate)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK() || b.unloaded != 1 {
		t.Fatalf("ok = %v, unloaded = %d", report.OK(), b.unloaded)
	}
	if len(logs.warns) != 1 || logs.warns[0] != "empty cache after run failed" {
		t.Fatalf("warnings = %v", logs.warns)
	}
}

// paramRecognizer keeps the last input it was given.
type paramRecognizer struct {
	fakeRecognizer
	got *stage.RecognizeInput
}

func (r paramRecognizer) Run(ctx context.Context, in stage.RecognizeInput) (stage.RecognizeResult, error) {
	*r.got = in
	return r.fakeRecognizer.Run(ctx, in)
}

func TestRunParamsReachBackends(t *testing.T) {
	proj := newProject(t, "page1.png")
	var det stage.DetectInput
	var rec stage.RecognizeInput
	b := newBackends()
	b.det = fakeDetector{hook: func(in stage.DetectInput) { det = in }}
	b.rec = paramRecognizer{fakeRecognizer: fakeRecognizer{texts: map[string]string{"page1.png": "x"}}, got: &rec}
	detParams := map[string]string{"threshold": "90"}
	o := New(proj, b, WithImages(blankImages{}), WithOptions(Options{
		Languages:      []string{"jpn", "eng"},
		DetectorParams: detParams,
		OCRParams:      map[string]string{"tessedit_pageseg_mode": "6"},
	}))
	if _, err := o.Run(context.Background(), Request{Stages: stage.NewSet(stage.Detection, stage.OCR)}); err != nil {
		t.Fatal(err)
	}
	if det.Params["threshold"] != "90" {
		t.Fatalf("detector params = %v", det.Params)
	}
	if strings.Join(rec.Languages, "+") != "jpn+eng" || rec.Params["tessedit_pageseg_mode"] != "6" || len(rec.Boxes) != 1 {
		t.Fatalf("ocr input = %+v", rec)
	}
	det.Params["threshold"] = "10"
	if detParams["threshold"] != "90" {
		t.Fatal("backend shares the options map")
	}
}

func TestProgressEvents(t *testing.T) {
	proj := newProject(t, "page1.png", "page2.png")
	var mu sync.Mutex
	var events []Progress
	o := New(proj, newBackends(), WithImages(blankImages{}), WithOptions(Options{Workers: 2}), WithProgress(func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}))
	if _, err := o.Run(context.Background(), Request{Pages: []int{1}, Stages: stage.NewSet(stage.Detection)}); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Page != 1 || events[0].Done != 1 || events[0].Total != 1 {
		t.Fatalf("events = %+v", events)
	}
	if _, err := o.Run(context.Background(), Request{Pages: []int{5}, Stages: stage.All()}); !errors.Is(err, document.ErrPageNotFound) {
		t.Fatalf("bad page: %v", err)
	}
}
