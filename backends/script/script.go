// Package script implements a translator driven by a user JavaScript
// function, run in an embedded goja runtime.
//
// The script must define
//
//	function translate(text, source, target) { return "..." }
//
// which is called once per text. It may also define translateBatch(texts,
// source, target) returning an array, which is preferred when present.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/wudi/pagetrans/stage"
)

// Name is the registry name of the backend.
const Name = "script"

var errNoFunction = errors.New("script does not define translate(text, source, target)")

// Translator runs translate() for each text. A goja runtime is not safe for
// concurrent use, so calls are serialized.
type Translator struct {
	mu    sync.Mutex
	vm    *goja.Runtime
	one   goja.Callable
	batch goja.Callable
	delay time.Duration
}

// New compiles the script given by params "script" (inline source) or
// "script_file" (path). An optional "delay" (Go duration) paces pages.
func New(params map[string]string) (*Translator, error) {
	src := params["script"]
	if src == "" && params["script_file"] != "" {
		b, err := os.ReadFile(params["script_file"])
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		src = string(b)
	}
	if src == "" {
		return nil, &stage.MissingParamsError{Backend: Name, Params: []string{"script", "script_file"}}
	}
	t := &Translator{vm: goja.New()}
	if d := params["delay"]; d != "" {
		v, err := time.ParseDuration(d)
		if err != nil {
			return nil, fmt.Errorf("parse delay: %w", err)
		}
		t.delay = v
	}
	if _, err := t.vm.RunString(src); err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}
	t.one, _ = goja.AssertFunction(t.vm.Get("translate"))
	t.batch, _ = goja.AssertFunction(t.vm.Get("translateBatch"))
	if t.one == nil && t.batch == nil {
		return nil, errNoFunction
	}
	return t, nil
}

func (t *Translator) Name() string { return Name }

// Delay implements stage.Pacer.
func (t *Translator) Delay() time.Duration { return t.delay }

func (t *Translator) Run(ctx context.Context, in stage.TranslateInput) (stage.TranslateResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return stage.TranslateResult{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	defer t.vm.ClearInterrupt()
	go func() {
		select {
		case <-ctx.Done():
			t.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	src, dst := t.vm.ToValue(in.Source), t.vm.ToValue(in.Target)
	if t.batch != nil {
		items := make([]any, len(in.Texts))
		for i, s := range in.Texts {
			items[i] = s
		}
		v, err := t.batch(goja.Undefined(), t.vm.NewArray(items...), src, dst)
		if err != nil {
			return stage.TranslateResult{}, unwrapInterrupt(err)
		}
		var out []string
		if err := t.vm.ExportTo(v, &out); err != nil {
			return stage.TranslateResult{}, fmt.Errorf("translateBatch result: %w", err)
		}
		if err := stage.CheckCount(Name, len(in.Texts), len(out)); err != nil {
			return stage.TranslateResult{}, err
		}
		return stage.TranslateResult{Texts: out}, nil
	}

	out := make([]string, len(in.Texts))
	for i, text := range in.Texts {
		v, err := t.one(goja.Undefined(), t.vm.ToValue(text), src, dst)
		if err != nil {
			return stage.TranslateResult{}, fmt.Errorf("text %d: %w", i, unwrapInterrupt(err))
		}
		if !goja.IsUndefined(v) && !goja.IsNull(v) {
			out[i] = v.String()
		}
	}
	return stage.TranslateResult{Texts: out}, nil
}

func unwrapInterrupt(err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if cause, ok := ie.Value().(error); ok {
			return cause
		}
		return context.Canceled
	}
	return err
}
