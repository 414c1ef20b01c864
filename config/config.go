// Package config loads and saves the YAML settings file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wudi/pagetrans/backends"
	"github.com/wudi/pagetrans/history"
	"github.com/wudi/pagetrans/keyword"
	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/pipeline"
	"github.com/wudi/pagetrans/stage"
)

// Stages toggles each pipeline stage.
type Stages struct {
	Detect    bool `yaml:"detect"`
	OCR       bool `yaml:"ocr"`
	Translate bool `yaml:"translate"`
	Inpaint   bool `yaml:"inpaint"`
}

// Set returns the enabled stages.
func (s Stages) Set() stage.Set {
	var out stage.Set
	for st, on := range map[stage.Stage]bool{
		stage.Detection:   s.Detect,
		stage.OCR:         s.OCR,
		stage.Translation: s.Translate,
		stage.Inpainting:  s.Inpaint,
	} {
		if on {
			out = out.Add(st)
		}
	}
	return out
}

// Backends is the selected backend of every stage.
type Backends struct {
	Detector   modules.Selection `yaml:"detector"`
	OCR        modules.Selection `yaml:"ocr"`
	Translator modules.Selection `yaml:"translator"`
	Inpainter  modules.Selection `yaml:"inpainter"`
}

// For returns the selection for st.
func (b Backends) For(st stage.Stage) modules.Selection {
	switch st {
	case stage.Detection:
		return b.Detector
	case stage.OCR:
		return b.OCR
	case stage.Translation:
		return b.Translator
	default:
		return b.Inpainter
	}
}

type Settings struct {
	LoadOnDemand       bool     `yaml:"load_on_demand"`
	EmptyCacheAfterRun bool     `yaml:"empty_cache_after_run"`
	Workers            int      `yaml:"workers"`
	EnabledStages      Stages   `yaml:"enabled_stages"`
	Backends           Backends `yaml:"backends"`

	TranslateSource string   `yaml:"translate_source"`
	TranslateTarget string   `yaml:"translate_target"`
	OCRLanguages    []string `yaml:"ocr_languages,omitempty"`

	DetectorParams map[string]string `yaml:"detector_params,omitempty"`
	OCRParams      map[string]string `yaml:"ocr_params,omitempty"`

	KeepExistingLines  bool `yaml:"keep_existing_lines"`
	RestoreEmptyOCR    bool `yaml:"restore_empty_ocr"`
	TranslationToUpper bool `yaml:"translation_to_upper"`

	TranslatorRetries       int           `yaml:"translator_retries"`
	TranslatorRetryInterval time.Duration `yaml:"translator_retry_interval"`
	TranslatorDelay         time.Duration `yaml:"translator_delay"`

	LowVRAM         bool `yaml:"low_vram"`
	RTLReadingOrder bool `yaml:"rtl_reading_order"`

	UndoScope                   history.Scope `yaml:"undo_scope"`
	UndoLimit                   int           `yaml:"undo_limit"`
	IndependentStylesPerProject bool          `yaml:"independent_styles_per_project"`

	Keywords keyword.Lists `yaml:"keywords"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		Workers:       1,
		EnabledStages: Stages{Detect: true, OCR: true, Translate: true, Inpaint: true},
		Backends: Backends{
			Detector:   modules.Selection{Name: "contour"},
			OCR:        modules.Selection{Name: "tesseract", Params: map[string]string{"lang": "jpn"}},
			Translator: modules.Selection{Name: "copy"},
			Inpainter:  modules.Selection{Name: "fill"},
		},
		TranslateSource:         "ja",
		TranslateTarget:         "en",
		TranslatorRetries:       3,
		TranslatorRetryInterval: 500 * time.Millisecond,
		UndoScope:               history.ScopePage,
		UndoLimit:               200,
	}
}

// Load reads settings from path on top of Default. Unknown keys are an
// error. An empty file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Default(), fmt.Errorf("config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Default(), fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

// LoadOrDefault is Load, returning the defaults when path does not exist.
func LoadOrDefault(path string) (Settings, error) {
	s, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return s, err
}

// Save writes the settings to path.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	switch {
	case s.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", s.Workers)
	case s.TranslatorRetries < 0:
		return fmt.Errorf("translator_retries must not be negative, got %d", s.TranslatorRetries)
	case s.TranslatorDelay < 0 || s.TranslatorRetryInterval < 0:
		return errors.New("translator durations must not be negative")
	case s.UndoLimit < 0:
		return fmt.Errorf("undo_limit must not be negative, got %d", s.UndoLimit)
	}
	for _, st := range stage.Order {
		if s.EnabledStages.Set().Has(st) && s.Backends.For(st).Name == "" {
			return fmt.Errorf("stage %s is enabled but has no backend", st)
		}
	}
	return nil
}

// RetryPolicy returns the translator retry policy.
func (s Settings) RetryPolicy() backends.RetryPolicy {
	return backends.RetryPolicy{Max: s.TranslatorRetries, Interval: s.TranslatorRetryInterval}
}

// PipelineOptions maps the settings onto orchestrator options.
func (s Settings) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Workers:            max(1, s.Workers),
		EmptyCacheAfterRun: s.EmptyCacheAfterRun,
		LowVRAM:            s.LowVRAM,
		KeepExistingLines:  s.KeepExistingLines,
		RestoreEmptyOCR:    s.RestoreEmptyOCR,
		TranslateToUpper:   s.TranslationToUpper,
		RTL:                s.RTLReadingOrder,
		Source:             s.TranslateSource,
		Target:             s.TranslateTarget,
		Languages:          s.OCRLanguages,
		TranslatorDelay:    s.TranslatorDelay,
		DetectorParams:     s.DetectorParams,
		OCRParams:          s.OCRParams,
		Keywords:           s.Keywords,
	}
}

// Apply selects the configured backend of every stage. Unless
// LoadOnDemand is set, enabled stages are loaded right away.
func (s Settings) Apply(ctx context.Context, m *modules.Manager) error {
	for _, st := range stage.Order {
		sel := s.Backends.For(st)
		if sel.Name == "" {
			continue
		}
		if err := m.Select(st, sel.Name, sel.Params); err != nil {
			return fmt.Errorf("%s backend: %w", st, err)
		}
	}
	if s.LoadOnDemand {
		return nil
	}
	return m.LoadAll(ctx, s.EnabledStages.Set())
}
