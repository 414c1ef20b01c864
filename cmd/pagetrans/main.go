package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wudi/pagetrans/backends"
	"github.com/wudi/pagetrans/config"
	"github.com/wudi/pagetrans/document"
	"github.com/wudi/pagetrans/editor"
	"github.com/wudi/pagetrans/modules"
	"github.com/wudi/pagetrans/observability"
	"github.com/wudi/pagetrans/pipeline"
	"github.com/wudi/pagetrans/project"
	"github.com/wudi/pagetrans/recovery"
	"github.com/wudi/pagetrans/stage"
	"github.com/wudi/pagetrans/textio"
)

const usage = `Usage: pagetrans <command> [flags] <folder> [args]

Commands:
  run       detect, recognize, translate and inpaint the pages of a folder
  export    write source and translation text to a file
  import    read text from a file into a field of the project
  backends  list registered backends per stage
`

type common struct {
	configPath string
	verbose    bool
	// lazy defers backend loading for commands that never run a stage.
	lazy bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "pagetrans.yaml", "Settings file; defaults are used when it does not exist")
	fs.BoolVar(&c.verbose, "v", false, "Log debug output")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCmd(ctx, args)
	case "export":
		err = exportCmd(ctx, args)
	case "import":
		err = importCmd(ctx, args)
	case "backends":
		err = backendsCmd()
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "pagetrans: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagetrans: %v\n", err)
		var usageErr usageError
		if errors.As(err, &usageErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

func newLogger(verbose bool) observability.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return observability.NewLogrus(l)
}

func registry(settings config.Settings) *modules.Registry {
	reg := modules.NewRegistry()
	backends.RegisterBuiltin(reg, settings.RetryPolicy())
	return reg
}

// open resumes the project saved in dir, or starts one from its images.
func open(ctx context.Context, dir string, c common, logger observability.Logger, opts ...editor.Option) (*editor.Session, error) {
	settings, err := config.LoadOrDefault(c.configPath)
	if err != nil {
		return nil, err
	}
	settings.LoadOnDemand = settings.LoadOnDemand || c.lazy
	opts = append([]editor.Option{editor.WithLogger(logger)}, opts...)
	reg := registry(settings)

	path := project.FilePath(dir)
	if _, err := os.Stat(path); err == nil {
		s, _, err := editor.Open(ctx, path, settings, reg, opts...)
		return s, err
	}
	s, err := editor.OpenFolder(ctx, dir, settings, reg, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("new project", observability.String("path", path), observability.Int("pages", s.Project.Len()))
	return s, nil
}

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var c common
	c.register(fs)
	stages := fs.String("stages", "", "Comma-separated stages to run (detection,ocr,translation,inpainting); default is every enabled stage")
	pages := fs.String("pages", "", "Comma-separated 1-based page numbers; default is every page")
	force := fs.Bool("force", false, "Allow a full run to clear existing results")
	translateOnly := fs.Bool("translate-only", false, "Only re-translate, keeping detected regions and styles")
	keepStyles := fs.Bool("keep-styles", false, "Keep region styles instead of resetting them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("run needs exactly one folder")
	}

	logger := newLogger(c.verbose)
	s, err := open(ctx, fs.Arg(0), c, logger, editor.WithProgress(func(p pipeline.Progress) {
		logger.Info("progress",
			observability.String("page", p.PageName),
			observability.String("stage", p.Stage.String()),
			observability.String("state", p.State.String()),
			observability.Int("done", p.Done),
			observability.Int("total", p.Total))
	}))
	if err != nil {
		return err
	}
	defer s.Close()

	req := pipeline.Request{Stages: s.Settings().EnabledStages.Set(), Destructive: *force}
	if *stages != "" {
		if req.Stages, err = parseStages(*stages); err != nil {
			return err
		}
	}
	if req.Pages, err = parsePages(*pages, s.Project.Len()); err != nil {
		return err
	}
	switch {
	case *translateOnly:
		req.Mode = pipeline.ModeTranslateOnly
	case *keepStyles:
		req.Mode = pipeline.ModeSkipStyleUpdate
	}

	report, runErr := s.Run(ctx, req)
	if report != nil {
		if err := emit("report", report); err != nil {
			return err
		}
	}
	if err := s.Save(); err != nil {
		return err
	}
	return runErr
}

func exportCmd(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var c common
	c.register(fs)
	out := fs.String("out", "", "Output file; the extension selects .txt, .md, .html or .docx")
	field := fs.String("field", "translation", "Text field to write: source or translation")
	pair := fs.Bool("pair", false, "Write <out>_source and <out>_translation files instead of one field")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *out == "" {
		return usageError("export needs -out and one folder")
	}
	c.lazy = true
	s, err := open(context.Background(), fs.Arg(0), c, newLogger(c.verbose), editor.WithImages(noImages{}))
	if err != nil {
		return err
	}
	defer s.Close()

	switch {
	case strings.EqualFold(filepath.Ext(*out), ".docx"):
		return s.ExportDocx(*out)
	case *pair:
		f := textio.FormatFromPath(*out)
		base := strings.TrimSuffix(*out, filepath.Ext(*out))
		src, tr, err := s.ExportTextPair(base, f)
		if err != nil {
			return err
		}
		fmt.Println(src)
		fmt.Println(tr)
		return nil
	}
	tf, err := parseField(*field)
	if err != nil {
		return err
	}
	return s.ExportText(*out, tf)
}

func importCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var c common
	c.register(fs)
	field := fs.String("field", "translation", "Text field to overwrite: source or translation")
	strict := fs.Bool("strict", false, "Refuse the import unless every page matches")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageError("import needs a folder and a file")
	}
	dir, file := fs.Arg(0), fs.Arg(1)
	tf, err := parseField(*field)
	if err != nil {
		return err
	}
	c.lazy = true
	s, err := open(ctx, dir, c, newLogger(c.verbose), editor.WithImages(noImages{}))
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []textio.MatchOption
	if *strict {
		opts = append(opts, textio.WithStrategy(recovery.NewStrictStrategy()))
	}
	var report *textio.Report
	if strings.EqualFold(filepath.Ext(file), ".docx") {
		report, err = s.ImportDocx(ctx, file, opts...)
	} else {
		report, err = s.ImportText(ctx, file, tf, opts...)
	}
	if report != nil {
		if err := emit("import", struct {
			Matched    []string `json:"matched"`
			Missing    []string `json:"missing,omitempty"`
			Unexpected []string `json:"unexpected,omitempty"`
			Unmatched  []string `json:"unmatched,omitempty"`
			Edits      int      `json:"edits"`
		}{report.Matched, report.Missing, report.Unexpected, report.Unmatched, len(report.Edits)}); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	return s.Save()
}

func backendsCmd() error {
	reg := registry(config.Default())
	out := make(map[string][]string, len(stage.Order))
	for _, st := range stage.Order {
		out[st.String()] = reg.Names(st)
	}
	return emit("backends", out)
}

func parseStages(s string) (stage.Set, error) {
	var set stage.Set
	for _, name := range strings.Split(s, ",") {
		st, err := stage.Parse(strings.TrimSpace(name))
		if err != nil {
			return 0, usageError(err.Error())
		}
		set = set.Add(st)
	}
	return set, nil
}

func parsePages(s string, n int) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || i < 1 || i > n {
			return nil, usageError(fmt.Sprintf("invalid page %q (project has %d pages)", part, n))
		}
		out = append(out, i-1)
	}
	return out, nil
}

func parseField(s string) (document.TextField, error) {
	switch strings.ToLower(s) {
	case "source":
		return document.SourceText, nil
	case "translation":
		return document.TranslationText, nil
	}
	return 0, usageError(fmt.Sprintf("unknown field %q", s))
}

func emit(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	fmt.Printf("== %s ==\n%s\n\n", name, data)
	return nil
}
