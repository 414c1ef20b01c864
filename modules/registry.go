// Package modules owns the lifecycle of stage backends.
//
// A Registry maps backend names to factories for each stage. A Manager holds
// the selected backend of every stage, loads it on first use and unloads it
// on request. The orchestrator borrows backends from the Manager for the
// duration of a stage call and never keeps them.
package modules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/wudi/pagetrans/stage"
)

// ErrUnknownBackend is returned when a backend name is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Factory creates a backend instance from its parameters. The returned value
// must implement the capability interface of the stage it is registered for.
type Factory func(ctx context.Context, params map[string]string) (any, error)

// Registry is a set of named backend factories per stage.
type Registry struct {
	mu        sync.RWMutex
	factories [stage.Count]map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.factories {
		r.factories[i] = make(map[string]Factory)
	}
	return r
}

// Register adds or replaces the factory for name under st.
func (r *Registry) Register(st stage.Stage, name string, f Factory) {
	r.mu.Lock()
	r.factories[st][name] = f
	r.mu.Unlock()
}

// RegisterDetector registers a typed detector factory.
func RegisterDetector(r *Registry, name string, f func(context.Context, map[string]string) (stage.Detector, error)) {
	r.Register(stage.Detection, name, func(ctx context.Context, p map[string]string) (any, error) { return f(ctx, p) })
}

// RegisterRecognizer registers a typed OCR factory.
func RegisterRecognizer(r *Registry, name string, f func(context.Context, map[string]string) (stage.Recognizer, error)) {
	r.Register(stage.OCR, name, func(ctx context.Context, p map[string]string) (any, error) { return f(ctx, p) })
}

// RegisterTranslator registers a typed translator factory.
func RegisterTranslator(r *Registry, name string, f func(context.Context, map[string]string) (stage.Translator, error)) {
	r.Register(stage.Translation, name, func(ctx context.Context, p map[string]string) (any, error) { return f(ctx, p) })
}

// RegisterInpainter registers a typed inpainter factory.
func RegisterInpainter(r *Registry, name string, f func(context.Context, map[string]string) (stage.Inpainter, error)) {
	r.Register(stage.Inpainting, name, func(ctx context.Context, p map[string]string) (any, error) { return f(ctx, p) })
}

// Names returns the sorted backend names registered for st.
func (r *Registry) Names(st stage.Stage) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories[st]))
	for n := range r.factories[st] {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) lookup(st stage.Stage, name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[st][name]
	if !ok {
		return nil, fmt.Errorf("%s backend %q: %w", st, name, ErrUnknownBackend)
	}
	return f, nil
}
