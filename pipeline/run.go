package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/keyword"
	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/stage"
)

// run is the state of one Run call shared by its workers.
type run struct {
	o        *Orchestrator
	opts     Options
	stages   stage.Set
	mode     Mode
	keywords keyword.CompiledLists
	stopCtx  context.Context

	mu     sync.Mutex
	report *RunReport
	done   [stage.Count]int
	total  int

	loadMu   sync.Mutex
	loadErrs [stage.Count]error

	paceMu   sync.Mutex
	nextCall time.Time
}

// Run processes the requested pages. It returns a report even when every
// (page, stage) pair failed; the error is reserved for requests that were
// rejected before any work started.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunReport, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	stages := req.Stages
	if req.Mode == ModeTranslateOnly {
		stages = stages.Intersect(stage.NewSet(stage.Translation))
	}
	pages, idx, err := o.selectPages(req.Pages)
	if err != nil {
		return nil, err
	}
	report := &RunReport{Mode: req.Mode, Stages: stages}
	if stages.Empty() || len(pages) == 0 {
		return report, nil
	}

	if req.Mode == ModeFull && o.overwrites(stages) {
		var withResults []*document.Page
		for _, p := range pages {
			if p.HasResults() {
				withResults = append(withResults, p)
			}
		}
		if len(withResults) > 0 {
			if !req.Destructive {
				return nil, ErrConfirmationRequired
			}
			for _, p := range withResults {
				p.ClearResults()
			}
		}
	}

	stopCtx, release := o.stoppable(ctx)
	defer release()

	ctx, span := o.tracer.StartSpan(ctx, observability.SpanPipelineRun)
	defer span.Finish()
	span.SetTag(observability.MetricPagesTotal, len(pages))
	start := time.Now()

	r := o.newRun(stages, req.Mode, stopCtx, report, len(pages))
	for _, p := range pages {
		for _, st := range stages.Stages() {
			p.SetProgress(st, stage.Status{State: stage.NotRun})
		}
	}

	if o.opts.LowVRAM && stages.Has(stage.Translation) && len(stages.Stages()) > 1 {
		first := stages.Remove(stage.Translation)
		r.forEachPage(ctx, pages, idx, first)
		if err := o.backends.UnloadExcept(stage.Translation); err != nil {
			o.logger.Warn("unload before translation pass failed", observability.Error("error", err))
		}
		r.forEachPage(ctx, pages, idx, stage.NewSet(stage.Translation))
	} else {
		r.forEachPage(ctx, pages, idx, stages)
	}

	o.emptyCache()
	report.sort()
	report.Elapsed = time.Since(start)
	failed := len(report.Failures())
	span.SetTag(observability.MetricStageFailed, failed)
	span.SetTag(observability.MetricRunTime, report.Elapsed)
	o.logger.Info("pipeline run finished",
		observability.Int("pages", len(pages)),
		observability.String("stages", stages.String()),
		observability.Int("failed", failed),
		observability.Bool("cancelled", report.Cancelled),
		observability.Duration("elapsed", report.Elapsed))
	return report, nil
}

// overwrites reports whether a full run of stages replaces results that
// may already be on a page.
func (o *Orchestrator) overwrites(stages stage.Set) bool {
	return stages.Has(stage.Translation) || stages.Has(stage.Inpainting) ||
		(stages.Has(stage.Detection) && !o.opts.KeepExistingLines)
}

// stoppable derives the context cancelled by Stop for the current run.
func (o *Orchestrator) stoppable(ctx context.Context) (context.Context, func()) {
	stopCtx, cancel := context.WithCancel(ctx)
	o.stopMu.Lock()
	o.stop = cancel
	o.stopMu.Unlock()
	return stopCtx, func() {
		o.stopMu.Lock()
		o.stop = nil
		o.stopMu.Unlock()
		cancel()
	}
}

func (o *Orchestrator) emptyCache() {
	if !o.opts.EmptyCacheAfterRun {
		return
	}
	if err := o.backends.UnloadAll(); err != nil {
		o.logger.Warn("empty cache after run failed", observability.Error("error", err))
	}
}

func (o *Orchestrator) selectPages(indexes []int) ([]*document.Page, []int, error) {
	all := o.project.Pages()
	if indexes == nil {
		idx := make([]int, len(all))
		for i := range all {
			idx[i] = i
		}
		return all, idx, nil
	}
	pages := make([]*document.Page, 0, len(indexes))
	seen := make(map[int]bool, len(indexes))
	var idx []int
	for _, i := range indexes {
		if i < 0 || i >= len(all) {
			return nil, nil, fmt.Errorf("page %d: %w", i, document.ErrPageNotFound)
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		pages = append(pages, all[i])
		idx = append(idx, i)
	}
	return pages, idx, nil
}

func (o *Orchestrator) newRun(stages stage.Set, mode Mode, stopCtx context.Context, report *RunReport, total int) *run {
	kw, errs := o.opts.Keywords.Compile()
	for _, err := range errs {
		o.logger.Warn("keyword rule skipped", observability.Error("error", err))
		if o.keywordErr != nil {
			o.keywordErr(err)
		}
	}
	return &run{
		o:        o,
		opts:     o.opts,
		stages:   stages,
		mode:     mode,
		keywords: kw,
		stopCtx:  stopCtx,
		report:   report,
		total:    total,
	}
}

// forEachPage processes pages on a bounded set of workers.
func (r *run) forEachPage(ctx context.Context, pages []*document.Page, idx []int, stages stage.Set) {
	sem := make(chan struct{}, r.opts.Workers)
	var wg sync.WaitGroup
	for i, p := range pages {
		wg.Add(1)
		go func(i int, p *document.Page) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-r.stopCtx.Done():
				r.skipPage(idx[i], p, stages, "cancelled")
				return
			}
			defer func() { <-sem }()
			// Page boundary: a stop issued while waiting skips the page.
			if r.stopCtx.Err() != nil {
				r.skipPage(idx[i], p, stages, "cancelled")
				return
			}
			r.processPage(ctx, idx[i], p, stages)
		}(i, p)
	}
	wg.Wait()
}

func (r *run) skipPage(index int, p *document.Page, stages stage.Set, reason string) {
	r.mu.Lock()
	r.report.Cancelled = true
	r.mu.Unlock()
	for _, st := range stages.Stages() {
		r.record(index, p, st, stage.Status{State: stage.Skipped, Reason: reason}, nil)
	}
}

// processPage runs the enabled stages of one page in order.
func (r *run) processPage(ctx context.Context, index int, p *document.Page, stages stage.Set) {
	if !p.TryAcquire() {
		for _, st := range stages.Stages() {
			err := &stage.StageError{Page: p.Name, Stage: st, Cause: document.ErrPageBusy}
			r.record(index, p, st, stage.Status{State: stage.Failed, Reason: err.Error()}, err)
		}
		return
	}
	defer p.Release()

	pc := &pageCtx{run: r, page: p, index: index}
	for _, st := range stages.Stages() {
		if req, ok := st.Requires(); ok && r.stages.Has(req) {
			if prev := p.Progress(req); prev.State == stage.Failed || prev.State == stage.Skipped {
				r.record(index, p, st, stage.Status{
					State:  stage.Skipped,
					Reason: fmt.Sprintf("%s did not succeed", req),
				}, nil)
				continue
			}
		}
		p.SetProgress(st, stage.Status{State: stage.Running})
		status, err := pc.runStage(ctx, st)
		r.record(index, p, st, status, err)
	}
}

// record stores the outcome of one (page, stage) pair and reports progress.
func (r *run) record(index int, p *document.Page, st stage.Stage, status stage.Status, err error) {
	p.SetProgress(st, status)
	out := Outcome{
		Page:     index,
		PageName: p.Name,
		Stage:    st,
		State:    status.State,
		Reason:   status.Reason,
		Err:      err,
	}
	if err != nil {
		out.Tag = stage.Tag(err)
		r.o.logger.Warn("stage failed",
			observability.String("page", p.Name),
			observability.String("stage", st.String()),
			observability.String("tag", out.Tag),
			observability.Error("error", err))
	}
	r.mu.Lock()
	r.report.Entries = append(r.report.Entries, out)
	r.done[st]++
	ev := Progress{Stage: st, Done: r.done[st], Total: r.total, Page: index, PageName: p.Name, State: status.State}
	r.mu.Unlock()
	if r.o.progress != nil {
		r.o.progress(ev)
	}
}

// loadErr returns the cached load failure of st for this run, if any.
func (r *run) loadErr(st stage.Stage) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	return r.loadErrs[st]
}

func (r *run) setLoadErr(st stage.Stage, err error) {
	var le *stage.LoadError
	if !errors.As(err, &le) {
		return
	}
	r.loadMu.Lock()
	if r.loadErrs[st] == nil {
		r.loadErrs[st] = err
	}
	r.loadMu.Unlock()
}

// pace blocks until the translator may be called again.
func (r *run) pace(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	r.paceMu.Lock()
	defer r.paceMu.Unlock()
	if wait := time.Until(r.nextCall); wait > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.o.sleep(wait)
	}
	r.nextCall = time.Now().Add(delay)
	return nil
}

// pageCtx caches per-page data shared by the stages of one page.
type pageCtx struct {
	run   *run
	page  *document.Page
	index int
	img   image.Image
	// only restricts stages to the listed regions; nil means all.
	only map[string]bool
}

func (pc *pageCtx) image(ctx context.Context) (image.Image, error) {
	if pc.img != nil {
		return pc.img, nil
	}
	img, err := pc.run.o.image(ctx, pc.page)
	if err != nil {
		return nil, err
	}
	pc.img = img
	return img, nil
}

// runStage runs st on the page and converts the result into a status.
func (pc *pageCtx) runStage(ctx context.Context, st stage.Stage) (stage.Status, error) {
	ctx, span := pc.run.o.tracer.StartSpan(ctx, observability.SpanStageCall)
	span.SetTag("stage", st.String())
	span.SetTag("page", pc.page.Name)
	defer span.Finish()

	if err := pc.run.loadErr(st); err != nil {
		err = &stage.StageError{Page: pc.page.Name, Stage: st, Cause: err}
		span.SetError(err)
		return stage.Status{State: stage.Failed, Reason: err.Error()}, err
	}
	var note string
	var err error
	switch st {
	case stage.Detection:
		note, err = pc.detect(ctx)
	case stage.OCR:
		note, err = pc.recognize(ctx)
	case stage.Translation:
		note, err = pc.translate(ctx)
	case stage.Inpainting:
		note, err = pc.inpaint(ctx)
	}
	if err != nil {
		pc.run.setLoadErr(st, err)
		err = &stage.StageError{Page: pc.page.Name, Stage: st, Cause: err}
		span.SetError(err)
		pc.markRegions(st, stage.Status{State: stage.Failed, Reason: stage.Tag(err)})
		return stage.Status{State: stage.Failed, Reason: err.Error()}, err
	}
	return stage.Status{State: stage.Succeeded, Reason: note}, nil
}
