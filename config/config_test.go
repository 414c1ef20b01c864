package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wudi/pagetrans/backends"
	"github.com/wudi/pagetrans/history"
	"github.com/wudi/pagetrans/keyword"
	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/stage"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
	if got := Default().EnabledStages.Set(); got != stage.All() {
		t.Fatalf("enabled = %v", got)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := write(t, `
workers: 4
low_vram: true
translator_delay: 2s
undo_scope: project
enabled_stages:
  detect: true
  ocr: true
  translate: true
  inpaint: false
backends:
  detector: {name: contour, params: {threshold: "80"}}
  ocr: {name: tesseract}
  translator: {name: script, params: {script_file: tr.js}}
  inpainter: {name: fill}
ocr_params: {tessedit_pageseg_mode: "6"}
keywords:
  mt_result:
    - keyword: colour
      substitution: color
`)
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Workers != 4 || !s.LowVRAM || s.TranslatorDelay != 2*time.Second || s.UndoScope != history.ScopeProject {
		t.Fatalf("settings = %+v", s)
	}
	if s.EnabledStages.Set().Has(stage.Inpainting) || !s.EnabledStages.Set().Has(stage.OCR) {
		t.Fatalf("enabled = %v", s.EnabledStages.Set())
	}
	if s.Backends.For(stage.Detection).Params["threshold"] != "80" || s.Backends.For(stage.Translation).Name != "script" {
		t.Fatalf("backends = %+v", s.Backends)
	}
	if len(s.Keywords.MTResult) != 1 || s.Keywords.MTResult[0].Substitution != "color" {
		t.Fatalf("keywords = %+v", s.Keywords)
	}
	// Unset keys keep their defaults.
	if s.TranslateTarget != "en" || s.TranslatorRetries != 3 {
		t.Fatalf("defaults lost: %+v", s)
	}

	opts := s.PipelineOptions()
	if opts.Workers != 4 || !opts.LowVRAM || opts.TranslatorDelay != 2*time.Second || len(opts.Keywords.MTResult) != 1 {
		t.Fatalf("pipeline options = %+v", opts)
	}
	if opts.OCRParams["tessedit_pageseg_mode"] != "6" || opts.DetectorParams != nil {
		t.Fatalf("per-call params = %v, %v", opts.OCRParams, opts.DetectorParams)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":  "wrokers: 2\n",
		"negative":     "workers: -1\n",
		"bad scope":    "undo_scope: galaxy\n",
		"bad duration": "translator_delay: soon\n",
		"missing name": "backends:\n  detector: {name: \"\"}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(write(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEmptyAndMissingFiles(t *testing.T) {
	s, err := Load(write(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if s.Workers != Default().Workers {
		t.Fatalf("workers = %d", s.Workers)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); !os.IsNotExist(err) {
		t.Fatalf("err = %v", err)
	}
	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.yaml")); err != nil {
		t.Fatal(err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	s := Default()
	s.TranslatorDelay = 1500 * time.Millisecond
	s.UndoScope = history.ScopeProject
	s.Keywords.Source = keyword.List{{Keyword: "a", Substitution: "b", UseRegex: true}}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "undo_scope: project") {
		t.Fatalf("saved:\n%s", data)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.TranslatorDelay != s.TranslatorDelay || got.UndoScope != s.UndoScope || !got.Keywords.Source[0].UseRegex {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestApplySelectsBackends(t *testing.T) {
	reg := modules.NewRegistry()
	backends.RegisterBuiltin(reg, Default().RetryPolicy())
	m := modules.NewManager(reg)

	s := Default()
	s.EnabledStages.OCR = false
	if err := s.Apply(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	if m.Selection(stage.OCR).Name != "tesseract" {
		t.Fatalf("ocr selection = %+v", m.Selection(stage.OCR))
	}
	if !m.Loaded(stage.Detection) || m.Loaded(stage.OCR) {
		t.Fatalf("loaded: detection=%v ocr=%v", m.Loaded(stage.Detection), m.Loaded(stage.OCR))
	}

	lazy := Default()
	lazy.LoadOnDemand = true
	m2 := modules.NewManager(reg)
	if err := lazy.Apply(context.Background(), m2); err != nil {
		t.Fatal(err)
	}
	if m2.Loaded(stage.Detection) {
		t.Fatal("loaded eagerly with load_on_demand")
	}

	bad := Default()
	bad.Backends.Translator.Name = "nope"
	if err := bad.Apply(context.Background(), modules.NewManager(reg)); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
