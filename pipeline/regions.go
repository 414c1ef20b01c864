package pipeline

import (
	"context"
	"fmt"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/stage"
)

// RegionMode selects the stages of a region-level run.
type RegionMode int

const (
	RegionOCR RegionMode = iota
	RegionOCRTranslate
	RegionOCRTranslateInpaint
	RegionTranslate
	RegionInpaint
)

// Stages returns the stages run by m.
func (m RegionMode) Stages() stage.Set {
	switch m {
	case RegionOCR:
		return stage.NewSet(stage.OCR)
	case RegionOCRTranslate:
		return stage.NewSet(stage.OCR, stage.Translation)
	case RegionOCRTranslateInpaint:
		return stage.NewSet(stage.OCR, stage.Translation, stage.Inpainting)
	case RegionTranslate:
		return stage.NewSet(stage.Translation)
	case RegionInpaint:
		return stage.NewSet(stage.Inpainting)
	}
	return 0
}

// RunRegions runs the stages of mode on the given regions of one page only.
// Styles are kept. Unknown region IDs fail the request before any work.
func (o *Orchestrator) RunRegions(ctx context.Context, page int, ids []string, mode RegionMode) (*RunReport, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	p, err := o.project.Page(page)
	if err != nil {
		return nil, err
	}
	only := make(map[string]bool, len(ids))
	for _, id := range ids {
		r, _, err := p.Region(id)
		if err != nil {
			return nil, err
		}
		if !r.Active() {
			return nil, fmt.Errorf("region %s: %w", id, document.ErrAlreadyDeleted)
		}
		only[id] = true
	}
	stages := mode.Stages()
	report := &RunReport{Mode: ModeSkipStyleUpdate, Stages: stages}
	if len(only) == 0 || stages.Empty() {
		return report, nil
	}

	if !p.TryAcquire() {
		return nil, document.ErrPageBusy
	}
	defer p.Release()
	stopCtx, release := o.stoppable(ctx)
	defer release()
	r := o.newRun(stages, ModeSkipStyleUpdate, stopCtx, report, 1)

	pc := &pageCtx{run: r, page: p, index: page, only: only}
	failed := false
	for _, st := range stages.Stages() {
		if failed {
			r.record(page, p, st, stage.Status{State: stage.Skipped, Reason: "previous stage failed"}, nil)
			continue
		}
		// A stop lands between stages.
		if stopCtx.Err() != nil {
			r.skipPage(page, p, stage.NewSet(st), "cancelled")
			continue
		}
		p.SetProgress(st, stage.Status{State: stage.Running})
		status, err := pc.runStage(ctx, st)
		r.record(page, p, st, status, err)
		failed = err != nil
	}
	o.emptyCache()
	report.sort()
	return report, nil
}

// TranslatePage runs translation alone on one page, keeping styles.
func (o *Orchestrator) TranslatePage(ctx context.Context, page int) (*RunReport, error) {
	return o.Run(ctx, Request{
		Pages:  []int{page},
		Stages: stage.NewSet(stage.Translation),
		Mode:   ModeTranslateOnly,
	})
}
