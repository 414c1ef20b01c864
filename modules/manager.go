package modules

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/stage"
)

var (
	// ErrNotSelected is returned when a stage has no backend selected.
	ErrNotSelected = errors.New("no backend selected")
	// ErrSelectionChanged is returned when the selection of a stage changed
	// while its backend was loading.
	ErrSelectionChanged = errors.New("backend selection changed during load")
	errWrongType        = errors.New("factory returned a value of the wrong type")
)

// Selection names the backend chosen for a stage and its parameters.
type Selection struct {
	Name   string            `yaml:"name" json:"name"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

type slot struct {
	sel     Selection
	gen     uint64
	backend any
}

// Manager loads, caches and unloads one backend per stage.
type Manager struct {
	reg    *Registry
	logger observability.Logger
	tracer observability.Tracer

	mu    sync.Mutex
	slots [stage.Count]slot
	group singleflight.Group
	loads atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l observability.Logger) Option { return func(m *Manager) { m.logger = l } }
func WithTracer(t observability.Tracer) Option { return func(m *Manager) { m.tracer = t } }

// NewManager returns a manager with nothing selected and nothing loaded.
func NewManager(reg *Registry, opts ...Option) *Manager {
	m := &Manager{
		reg:    reg,
		logger: observability.NopLogger{},
		tracer: observability.NopTracer(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Select chooses the backend for st. Changing the selection unloads the
// previous backend; on error the previous selection is kept.
func (m *Manager) Select(st stage.Stage, name string, params map[string]string) error {
	if _, err := m.reg.lookup(st, name); err != nil {
		return err
	}
	m.mu.Lock()
	s := &m.slots[st]
	if s.sel.Name == name && maps.Equal(s.sel.Params, params) {
		m.mu.Unlock()
		return nil
	}
	old := s.backend
	s.sel = Selection{Name: name, Params: maps.Clone(params)}
	s.backend = nil
	s.gen++
	m.mu.Unlock()
	return closeBackend(old)
}

// Selection returns the current selection of st.
func (m *Manager) Selection(st stage.Stage) Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slots[st].sel
	s.Params = maps.Clone(s.Params)
	return s
}

// Loaded reports whether the backend of st is resident.
func (m *Manager) Loaded(st stage.Stage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[st].backend != nil
}

// Loads returns how many backend instances have been created so far.
func (m *Manager) Loads() int64 { return m.loads.Load() }

// EnsureLoaded returns the backend of st, creating it if needed. Concurrent
// calls for the same stage share one instantiation. Failures are returned as
// *stage.LoadError.
func (m *Manager) EnsureLoaded(ctx context.Context, st stage.Stage) (any, error) {
	m.mu.Lock()
	s := m.slots[st]
	m.mu.Unlock()
	if s.backend != nil {
		return s.backend, nil
	}
	if s.sel.Name == "" {
		return nil, &stage.LoadError{Stage: st, Cause: ErrNotSelected}
	}

	ch := m.group.DoChan(st.String(), func() (any, error) {
		return m.load(st)
	})
	select {
	case <-ctx.Done():
		return nil, &stage.LoadError{Stage: st, Backend: s.sel.Name, Cause: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

func (m *Manager) load(st stage.Stage) (any, error) {
	m.mu.Lock()
	s := m.slots[st]
	m.mu.Unlock()
	if s.backend != nil {
		return s.backend, nil
	}
	loadErr := func(err error) error {
		return &stage.LoadError{Stage: st, Backend: s.sel.Name, Cause: err}
	}
	f, err := m.reg.lookup(st, s.sel.Name)
	if err != nil {
		return nil, loadErr(err)
	}

	// The load outlives any single caller; callers give up through their
	// own context in EnsureLoaded.
	ctx, span := m.tracer.StartSpan(context.Background(), observability.SpanBackendLoad)
	span.SetTag("stage", st.String())
	span.SetTag("backend", s.sel.Name)
	defer span.Finish()

	start := time.Now()
	b, err := f(ctx, maps.Clone(s.sel.Params))
	if err != nil {
		span.SetError(err)
		m.logger.Warn("backend load failed",
			observability.String("stage", st.String()),
			observability.String("backend", s.sel.Name),
			observability.Error("error", err))
		return nil, loadErr(err)
	}
	if !implements(st, b) {
		_ = closeBackend(b)
		return nil, loadErr(fmt.Errorf("%w: %T", errWrongType, b))
	}
	m.loads.Add(1)

	m.mu.Lock()
	cur := &m.slots[st]
	if cur.gen != s.gen {
		m.mu.Unlock()
		_ = closeBackend(b)
		return nil, loadErr(ErrSelectionChanged)
	}
	cur.backend = b
	m.mu.Unlock()

	m.logger.Info("backend loaded",
		observability.String("stage", st.String()),
		observability.String("backend", s.sel.Name),
		observability.Duration("elapsed", time.Since(start)))
	return b, nil
}

func implements(st stage.Stage, b any) bool {
	switch st {
	case stage.Detection:
		_, ok := b.(stage.Detector)
		return ok
	case stage.OCR:
		_, ok := b.(stage.Recognizer)
		return ok
	case stage.Translation:
		_, ok := b.(stage.Translator)
		return ok
	case stage.Inpainting:
		_, ok := b.(stage.Inpainter)
		return ok
	}
	return false
}

// Detector returns the loaded detector.
func (m *Manager) Detector(ctx context.Context) (stage.Detector, error) {
	b, err := m.EnsureLoaded(ctx, stage.Detection)
	if err != nil {
		return nil, err
	}
	return b.(stage.Detector), nil
}

// Recognizer returns the loaded OCR backend.
func (m *Manager) Recognizer(ctx context.Context) (stage.Recognizer, error) {
	b, err := m.EnsureLoaded(ctx, stage.OCR)
	if err != nil {
		return nil, err
	}
	return b.(stage.Recognizer), nil
}

// Translator returns the loaded translator.
func (m *Manager) Translator(ctx context.Context) (stage.Translator, error) {
	b, err := m.EnsureLoaded(ctx, stage.Translation)
	if err != nil {
		return nil, err
	}
	return b.(stage.Translator), nil
}

// Inpainter returns the loaded inpainter.
func (m *Manager) Inpainter(ctx context.Context) (stage.Inpainter, error) {
	b, err := m.EnsureLoaded(ctx, stage.Inpainting)
	if err != nil {
		return nil, err
	}
	return b.(stage.Inpainter), nil
}

// LoadAll eagerly loads the backends of every stage in set. It is used when
// load on demand is disabled. All stages are attempted; the errors are
// joined.
func (m *Manager) LoadAll(ctx context.Context, set stage.Set) error {
	var errs []error
	for _, st := range set.Stages() {
		if _, err := m.EnsureLoaded(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unload releases the backend of st. The selection is kept.
func (m *Manager) Unload(st stage.Stage) error {
	m.mu.Lock()
	s := &m.slots[st]
	b := s.backend
	s.backend = nil
	s.gen++
	m.mu.Unlock()
	if b != nil {
		m.logger.Debug("backend unloaded", observability.String("stage", st.String()))
	}
	return closeBackend(b)
}

// UnloadAll releases every loaded backend.
func (m *Manager) UnloadAll() error {
	var errs []error
	for _, st := range stage.Order {
		if err := m.Unload(st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnloadExcept releases every backend but the one of keep.
func (m *Manager) UnloadExcept(keep stage.Stage) error {
	var errs []error
	for _, st := range stage.Order {
		if st == keep {
			continue
		}
		if err := m.Unload(st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeBackend(b any) error {
	if c, ok := b.(stage.Closer); ok {
		return c.Close()
	}
	return nil
}
