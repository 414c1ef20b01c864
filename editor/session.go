// Package editor ties a project to its histories, style presets, search
// engine and pipeline for interactive use.
package editor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/wudi/pagetrans/config"
	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/history"
	"github.com/wudi/pagetrans/keyword"
	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/pipeline"
	"github.com/wudi/pagetrans/project"
	"github.com/wudi/pagetrans/search"
	"github.com/wudi/pagetrans/stage"
	"github.com/wudi/pagetrans/styles"
	"github.com/wudi/pagetrans/typeset"
)

var ErrNothingCopied = errors.New("no source text copied")

// Session is one open project. Editing methods are meant to be called from
// a single goroutine; pipeline runs may proceed concurrently and are
// guarded by the pages' busy flags.
type Session struct {
	Project   *document.Project
	Histories *history.Histories
	Styles    *styles.Set
	Manager   *modules.Manager
	Pipeline  *pipeline.Orchestrator
	Search    *search.Engine

	settings config.Settings
	measurer typeset.Measurer
	logger   observability.Logger
	ctx      context.Context

	mu        sync.Mutex
	clipboard []string
}

type options struct {
	logger   observability.Logger
	tracer   observability.Tracer
	styles   *styles.Set
	images   pipeline.ImageSource
	measurer typeset.Measurer
	progress func(pipeline.Progress)
	manager  *modules.Manager
}

type Option func(*options)

func WithLogger(l observability.Logger) Option       { return func(o *options) { o.logger = l } }
func WithTracer(t observability.Tracer) Option       { return func(o *options) { o.tracer = t } }
func WithImages(src pipeline.ImageSource) Option     { return func(o *options) { o.images = src } }
func WithMeasurer(m typeset.Measurer) Option         { return func(o *options) { o.measurer = m } }
func WithProgress(fn func(pipeline.Progress)) Option { return func(o *options) { o.progress = fn } }

// WithStyles shares an application-wide preset set. It is ignored when
// settings keep styles per project.
func WithStyles(s *styles.Set) Option { return func(o *options) { o.styles = s } }

// WithManager reuses a module manager, keeping loaded backends across
// projects.
func WithManager(m *modules.Manager) Option { return func(o *options) { o.manager = m } }

// New opens a session over proj. Backends are selected from settings and,
// unless load_on_demand is set, loaded before New returns; a load failure
// is logged and surfaces again on the first run.
func New(ctx context.Context, proj *document.Project, settings config.Settings, reg *modules.Registry, opts ...Option) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: observability.NopLogger{}, tracer: observability.NopTracer()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.styles == nil || settings.IndependentStylesPerProject {
		o.styles = styles.NewSet()
	}
	if o.images == nil {
		o.images = project.FileImages{Dir: filepath.Dir(proj.Path)}
	}
	if o.measurer == nil {
		m, err := typeset.DefaultShaper()
		if err != nil {
			return nil, fmt.Errorf("default font: %w", err)
		}
		o.measurer = m
	}
	if o.manager == nil {
		o.manager = modules.NewManager(reg, modules.WithLogger(o.logger), modules.WithTracer(o.tracer))
	}

	s := &Session{
		Project:   proj,
		Histories: history.NewHistories(settings.UndoScope, settings.UndoLimit),
		Styles:    o.styles,
		Manager:   o.manager,
		settings:  settings,
		measurer:  o.measurer,
		logger:    o.logger,
		ctx:       ctx,
	}
	if err := settings.Apply(ctx, s.Manager); err != nil {
		var le *stage.LoadError
		if !errors.As(err, &le) {
			return nil, err
		}
		s.logger.Warn("backend load failed", observability.Error("error", err))
	}

	popts := settings.PipelineOptions()
	popts.DefaultStyle = s.Styles.Default
	pipeOpts := []pipeline.Option{
		pipeline.WithOptions(popts),
		pipeline.WithImages(o.images),
		pipeline.WithLogger(o.logger),
		pipeline.WithTracer(o.tracer),
		pipeline.WithKeywordErrors(func(err error) {
			s.logger.Warn("keyword rule skipped", observability.Error("error", err))
		}),
	}
	if o.progress != nil {
		pipeOpts = append(pipeOpts, pipeline.WithProgress(o.progress))
	}
	s.Pipeline = pipeline.New(proj, s.Manager, pipeOpts...)
	s.Search = search.NewEngine(proj, s.Histories, search.WithLogger(o.logger), search.WithRerender(s.rerender))
	return s, nil
}

// Open loads the project file at path and opens a session over it. Presets
// and keyword lists saved with the project are restored.
func Open(ctx context.Context, path string, settings config.Settings, reg *modules.Registry, opts ...Option) (*Session, *project.Loaded, error) {
	loaded, err := project.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if loaded.Keywords != nil {
		settings.Keywords = *loaded.Keywords
	}
	s, err := New(ctx, loaded.Project, settings, reg, opts...)
	if err != nil {
		return nil, nil, err
	}
	if loaded.Styles != nil && settings.IndependentStylesPerProject {
		if err := s.Styles.Restore(*loaded.Styles); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range loaded.Changed {
		s.logger.Warn("source image changed since last save", observability.String("page", name))
	}
	for _, name := range loaded.MissingImages {
		s.logger.Warn("source image missing", observability.String("page", name))
	}
	return s, loaded, nil
}

// Settings returns the session's settings.
func (s *Session) Settings() config.Settings { return s.settings }

// SetKeywords replaces the keyword substitution lists used by later runs.
func (s *Session) SetKeywords(k keyword.Lists) {
	s.settings.Keywords = k
	opts := s.settings.PipelineOptions()
	opts.DefaultStyle = s.Styles.Default
	s.Pipeline.SetOptions(opts)
}

// Save writes the project. Presets are stored with it only when styles are
// kept per project.
func (s *Session) Save() error {
	extras := project.Extras{Keywords: &s.settings.Keywords}
	if s.settings.IndependentStylesPerProject {
		f := s.Styles.Snapshot()
		extras.Styles = &f
	}
	if err := project.Save(s.Project, extras); err != nil {
		return err
	}
	s.logger.Info("project saved", observability.String("path", s.Project.Path))
	return nil
}

// Close releases every loaded backend.
func (s *Session) Close() error {
	s.Pipeline.Stop()
	return s.Manager.UnloadAll()
}

func (s *Session) page(i int) (*document.Page, error) { return s.Project.Page(i) }
