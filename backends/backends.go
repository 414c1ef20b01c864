// Package backends wires the built-in stage backends into a registry and
// provides translator decorators.
package backends

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wudi/pagetrans/backends/contour"
	"github.com/wudi/pagetrans/backends/fill"
	"github.com/wudi/pagetrans/backends/script"
	"github.com/wudi/pagetrans/backends/tesseract"
	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/stage"
)

// Copy is a translator that returns the source texts unchanged. It is the
// default when no translator is configured, so a run can still typeset the
// recognized text.
type Copy struct{}

func (Copy) Name() string { return "copy" }

func (Copy) Run(_ context.Context, in stage.TranslateInput) (stage.TranslateResult, error) {
	return stage.TranslateResult{Texts: append([]string(nil), in.Texts...)}, nil
}

// RetryPolicy configures translator retries. Max <= 0 disables them.
type RetryPolicy struct {
	Max      int
	Interval time.Duration
}

// RetryTranslator retries transient translator failures with exponential
// backoff. Context errors, missing parameters and result count mismatches
// are permanent.
type RetryTranslator struct {
	next   stage.Translator
	policy RetryPolicy
}

// NewRetryTranslator wraps next with policy.
func NewRetryTranslator(next stage.Translator, policy RetryPolicy) *RetryTranslator {
	if policy.Interval <= 0 {
		policy.Interval = 500 * time.Millisecond
	}
	return &RetryTranslator{next: next, policy: policy}
}

func (r *RetryTranslator) Name() string { return r.next.Name() }

func (r *RetryTranslator) Run(ctx context.Context, in stage.TranslateInput) (stage.TranslateResult, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.Interval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.policy.Max)), ctx)
	return backoff.RetryWithData(func() (stage.TranslateResult, error) {
		res, err := r.next.Run(ctx, in)
		if err != nil && permanent(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, b)
}

func permanent(err error) bool {
	var mp *stage.MissingParamsError
	return errors.As(err, &mp) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, stage.ErrResultMismatch)
}

// Delay forwards the wrapped translator's pacing.
func (r *RetryTranslator) Delay() time.Duration {
	if p, ok := r.next.(stage.Pacer); ok {
		return p.Delay()
	}
	return 0
}

// Close releases the wrapped translator.
func (r *RetryTranslator) Close() error {
	if c, ok := r.next.(stage.Closer); ok {
		return c.Close()
	}
	return nil
}

// Unwrap returns the decorated translator.
func (r *RetryTranslator) Unwrap() stage.Translator { return r.next }

// RegisterBuiltin adds every built-in backend to reg. Translators are
// wrapped with retry when policy allows it.
func RegisterBuiltin(reg *modules.Registry, policy RetryPolicy) {
	modules.RegisterDetector(reg, contour.Name, func(_ context.Context, p map[string]string) (stage.Detector, error) {
		return contour.New(p)
	})
	modules.RegisterInpainter(reg, fill.Name, func(_ context.Context, p map[string]string) (stage.Inpainter, error) {
		return fill.New(p)
	})
	tesseract.Register(reg)

	translators := map[string]func(map[string]string) (stage.Translator, error){
		"copy":      func(map[string]string) (stage.Translator, error) { return Copy{}, nil },
		script.Name: func(p map[string]string) (stage.Translator, error) { return script.New(p) },
	}
	for name, f := range translators {
		modules.RegisterTranslator(reg, name, func(_ context.Context, p map[string]string) (stage.Translator, error) {
			t, err := f(p)
			if err != nil {
				return nil, err
			}
			if policy.Max > 0 {
				return NewRetryTranslator(t, policy), nil
			}
			return t, nil
		})
	}
}
