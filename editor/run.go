package editor

import (
	"context"

	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/pipeline"
	"github.com/wudi/pagetrans/stage"
)

// Run executes a pipeline run. Pipeline writes bypass the histories, so
// the histories of every page the run touched are cleared afterwards.
func (s *Session) Run(ctx context.Context, req pipeline.Request) (*pipeline.RunReport, error) {
	report, err := s.Pipeline.Run(ctx, req)
	s.afterRun(report)
	return report, err
}

// RunRegions runs the stages of mode on selected regions of one page.
func (s *Session) RunRegions(ctx context.Context, page int, ids []string, mode pipeline.RegionMode) (*pipeline.RunReport, error) {
	report, err := s.Pipeline.RunRegions(ctx, page, ids, mode)
	s.afterRun(report)
	return report, err
}

// TranslatePage re-translates one page, keeping its styles.
func (s *Session) TranslatePage(ctx context.Context, page int) (*pipeline.RunReport, error) {
	report, err := s.Pipeline.TranslatePage(ctx, page)
	s.afterRun(report)
	return report, err
}

// Stop cancels the current run after in-flight backend calls return.
func (s *Session) Stop() { s.Pipeline.Stop() }

func (s *Session) afterRun(report *pipeline.RunReport) {
	if report == nil {
		return
	}
	pages := s.pages(report.Pages())
	s.Histories.Clear(pages...)
	if n := len(report.Failures()); n > 0 {
		s.logger.Warn("run finished with failures", observability.Int("failures", n))
	}
}

// rerender refreshes the inpainted images of pages whose text was
// replaced outside the histories.
func (s *Session) rerender(pages []int) error {
	report, err := s.Pipeline.Run(s.ctx, pipeline.Request{
		Pages:  pages,
		Stages: stage.NewSet(stage.Inpainting),
		Mode:   pipeline.ModeSkipStyleUpdate,
	})
	s.afterRun(report)
	return err
}

func (s *Session) pages(idx []int) []*document.Page {
	out := make([]*document.Page, 0, len(idx))
	for _, i := range idx {
		if p, err := s.Project.Page(i); err == nil {
			out = append(out, p)
		}
	}
	return out
}
