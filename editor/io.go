package editor

import (
	"context"

	"github.com/wudi/pagetrans/config"
	"github.com/wudi/pagetrans/docx"
	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/project"
	"github.com/wudi/pagetrans/textio"
)

// OpenFolder starts a new project from the images in dir.
func OpenFolder(ctx context.Context, dir string, settings config.Settings, reg *modules.Registry, opts ...Option) (*Session, error) {
	proj, err := project.ImportFolder(dir)
	if err != nil {
		return nil, err
	}
	return New(ctx, proj, settings, reg, opts...)
}

// ExportText writes one text field of every page to path. The format
// follows the file extension.
func (s *Session) ExportText(path string, field document.TextField) error {
	return textio.Export(path, s.Project, field)
}

// ExportTextPair writes source and translation side by side as
// base_source and base_translation files.
func (s *Session) ExportTextPair(base string, f textio.Format) (source, translation string, err error) {
	return textio.ExportPair(base, f, s.Project)
}

// ExportDocx writes a document table of source and translation per page.
func (s *Session) ExportDocx(path string) error {
	return docx.Export(path, s.Project)
}

// ImportText reads path and writes its entries into field as one undo step
// per history log. Pages that do not line up are reported and, under the
// default strategy, left untouched.
func (s *Session) ImportText(ctx context.Context, path string, field document.TextField, opts ...textio.MatchOption) (*textio.Report, error) {
	opts = append([]textio.MatchOption{textio.WithLogger(s.logger)}, opts...)
	report, err := textio.Import(ctx, path, s.Project, field, opts...)
	if err != nil {
		return report, err
	}
	return report, s.applyImport(report, "import "+field.String())
}

// ImportDocx reads the translation column of a document written by
// ExportDocx. Pages are matched by position.
func (s *Session) ImportDocx(ctx context.Context, path string, opts ...textio.MatchOption) (*textio.Report, error) {
	opts = append([]textio.MatchOption{textio.WithLogger(s.logger)}, opts...)
	report, err := docx.Import(ctx, path, s.Project, document.TranslationText, opts...)
	if err != nil {
		return report, err
	}
	return report, s.applyImport(report, "import document")
}

func (s *Session) applyImport(report *textio.Report, label string) error {
	if err := s.Histories.DoBatch(label, report.Commands()); err != nil {
		return err
	}
	s.logger.Info("text imported",
		observability.Int("matched", len(report.Matched)),
		observability.Int("edits", len(report.Edits)))
	if !report.OK() {
		s.logger.Warn("import incomplete", observability.Error("error", report.Err()))
	}
	return nil
}
