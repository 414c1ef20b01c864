// Package pipeline runs the processing stages over the pages of a project.
//
// Stages run per page in the fixed order Detection, OCR, Translation,
// Inpainting. Every (page, stage) pair ends in its own outcome: a failure is
// recorded in the RunReport and never aborts other pages, nor stages of the
// same page that do not need the failed stage's output. Pages are processed
// concurrently up to a worker limit; a page is owned by exactly one worker
// for the duration of the run, guarded by its busy flag.
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

var (
	// ErrConfirmationRequired is returned when a full run would overwrite
	// existing results and the caller did not set Request.Destructive.
	ErrConfirmationRequired = errors.New("all existing translation results will be cleared: confirmation required")
	// ErrNoImageSource is returned by stages that need pixels when the
	// orchestrator has no ImageSource.
	ErrNoImageSource = errors.New("no image source configured")
)

// Mode selects how a run treats existing data.
type Mode int

const (
	// ModeFull runs the requested stages and resets translated regions to
	// the default style.
	ModeFull Mode = iota
	// ModeTranslateOnly restricts the run to the Translation stage.
	ModeTranslateOnly
	// ModeSkipStyleUpdate runs the requested stages and keeps region styles.
	ModeSkipStyleUpdate
)

func (m Mode) String() string {
	switch m {
	case ModeTranslateOnly:
		return "translate-only"
	case ModeSkipStyleUpdate:
		return "skip-style-update"
	}
	return "full"
}

// Request describes one run.
type Request struct {
	// Pages are project page indexes; nil means every page.
	Pages  []int
	Stages stage.Set
	Mode   Mode
	// Destructive confirms that existing results of the selected pages may
	// be cleared by a full run.
	Destructive bool
}

// Backends hands out loaded stage backends.
type Backends interface {
	Detector(ctx context.Context) (stage.Detector, error)
	Recognizer(ctx context.Context) (stage.Recognizer, error)
	Translator(ctx context.Context) (stage.Translator, error)
	Inpainter(ctx context.Context) (stage.Inpainter, error)
	UnloadAll() error
	UnloadExcept(keep stage.Stage) error
}

// ImageSource provides the source pixels of a page.
type ImageSource interface {
	Image(ctx context.Context, p *document.Page) (image.Image, error)
}

// Progress is emitted after each (page, stage) pair finishes.
type Progress struct {
	Stage stage.Stage
	Done  int
	Total int
	// Page is the project index of the page just processed.
	Page     int
	PageName string
	State    stage.State
}

// Options configure an Orchestrator.
type Options struct {
	Workers            int
	EmptyCacheAfterRun bool
	LowVRAM            bool
	KeepExistingLines  bool
	RestoreEmptyOCR    bool
	TranslateToUpper   bool
	RTL                bool
	Source             string
	Target             string
	Languages          []string
	TranslatorDelay    time.Duration
	Keywords           keyword.Lists
	// DetectorParams and OCRParams are passed with every call and override
	// the parameters the backend was loaded with.
	DetectorParams map[string]string
	OCRParams      map[string]string
	// DefaultStyle returns the style given to new regions and, in full mode,
	// to translated regions.
	DefaultStyle func() document.FontStyle
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l observability.Logger) Option { return func(o *Orchestrator) { o.logger = l } }
func WithTracer(t observability.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }
func WithImages(src ImageSource) Option        { return func(o *Orchestrator) { o.images = src } }
func WithProgress(fn func(Progress)) Option    { return func(o *Orchestrator) { o.progress = fn } }
func WithOptions(opts Options) Option          { return func(o *Orchestrator) { o.opts = opts } }
func WithSleep(fn func(time.Duration)) Option  { return func(o *Orchestrator) { o.sleep = fn } }

// WithKeywordErrors receives the keyword rules skipped because they do not
// compile.
func WithKeywordErrors(fn func(error)) Option { return func(o *Orchestrator) { o.keywordErr = fn } }

// Orchestrator schedules stage runs. Runs are serialized: a Run issued while
// another is in flight waits for it.
type Orchestrator struct {
	project    *document.Project
	backends   Backends
	images     ImageSource
	opts       Options
	logger     observability.Logger
	tracer     observability.Tracer
	progress   func(Progress)
	keywordErr func(error)
	sleep      func(time.Duration)

	runMu  sync.Mutex
	stopMu sync.Mutex
	stop   context.CancelFunc
}

// New returns an orchestrator over project using backends.
func New(project *document.Project, backends Backends, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		project:  project,
		backends: backends,
		logger:   observability.NopLogger{},
		tracer:   observability.NopTracer(),
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.opts.Workers < 1 {
		o.opts.Workers = 1
	}
	if o.opts.DefaultStyle == nil {
		o.opts.DefaultStyle = document.DefaultStyle
	}
	return o
}

// SetOptions replaces the run options. It takes effect on the next run.
func (o *Orchestrator) SetOptions(opts Options) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.DefaultStyle == nil {
		opts.DefaultStyle = o.opts.DefaultStyle
	}
	o.opts = opts
}

// Stop cancels the run in flight at the next page boundary. Stage calls
// already started run to completion; pages not yet started are skipped.
// A region-level run stops before its next stage.
func (o *Orchestrator) Stop() {
	o.stopMu.Lock()
	if o.stop != nil {
		o.stop()
	}
	o.stopMu.Unlock()
}

func (o *Orchestrator) image(ctx context.Context, p *document.Page) (image.Image, error) {
	if o.images == nil {
		return nil, ErrNoImageSource
	}
	img, err := o.images.Image(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stage.ErrNoImage, err)
	}
	return img, nil
}
