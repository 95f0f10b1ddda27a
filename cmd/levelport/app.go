package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/batch"
	"github.com/cory-johannsen/levelport/internal/config"
	"github.com/cory-johannsen/levelport/internal/convert"
	"github.com/cory-johannsen/levelport/internal/convert/rules"
	"github.com/cory-johannsen/levelport/internal/extract"
	"github.com/cory-johannsen/levelport/internal/lifecycle"
	"github.com/cory-johannsen/levelport/internal/pathutil"
	"github.com/cory-johannsen/levelport/internal/resource"
	"github.com/cory-johannsen/levelport/internal/scripting"
	"github.com/cory-johannsen/levelport/internal/storage/postgres"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
	"github.com/cory-johannsen/levelport/internal/t3d/textio"
	"github.com/cory-johannsen/levelport/internal/watch"
)

// app holds the components shared by every conversion of one invocation.
type app struct {
	cfg     config.Config
	opts    convert.Options
	logger  *zap.Logger
	report  io.Writer
	scripts *scripting.Manager
	conv    *convert.Converter
	coord   *extract.Coordinator
	pool    *postgres.Pool
	ledger  *postgres.RunRepository

	// mu serializes report output from concurrent batch workers.
	mu sync.Mutex
}

// newApp wires the converter from cfg. withExtract enables asset export
// even when the configuration leaves it off.
//
// Precondition: cfg must be valid with both generations set.
func newApp(ctx context.Context, cfg config.Config, withExtract bool, logger *zap.Logger, report io.Writer) (*app, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, opts: opts, logger: logger, report: report}

	a.scripts = scripting.NewManager(logger)
	limit := cfg.Conversion.InstructionLimit
	if cfg.Conversion.ScriptsDir != "" {
		if err := a.scripts.LoadGlobal(cfg.Conversion.ScriptsDir, limit); err != nil {
			a.Close()
			return nil, fmt.Errorf("loading scripts: %w", err)
		}
	}
	rs, err := rules.LoadRuleset(cfg.Conversion.RulesDir, a.scripts, limit)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	var exporter convert.Exporter
	if withExtract || cfg.Resources.Enabled {
		a.coord, err = newCoordinator(cfg.Resources, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		exporter = a.coord
	}
	a.conv = convert.New(rules.NewEngine(rs, logger), exporter, logger)

	if cfg.Database.Enabled {
		a.pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to ledger database: %w", err)
		}
		a.ledger = postgres.NewRunRepository(a.pool.DB())
		logger.Info("ledger connected", zap.String("host", cfg.Database.Host))
	}
	return a, nil
}

func optionsFromConfig(cfg config.Config) (convert.Options, error) {
	src, err := scene.ParseGeneration(cfg.Conversion.Source)
	if err != nil {
		return convert.Options{}, fmt.Errorf("source generation: %w", err)
	}
	dst, err := scene.ParseGeneration(cfg.Conversion.Target)
	if err != nil {
		return convert.Options{}, fmt.Errorf("target generation: %w", err)
	}
	opts := convert.Options{
		Source:   src,
		Target:   dst,
		Scale:    cfg.Conversion.Scale,
		Encoding: cfg.Output.Encoding,
		CRLF:     cfg.Output.CRLF,
	}
	return opts, opts.Validate()
}

func newCoordinator(cfg config.ResourcesConfig, logger *zap.Logger) (*extract.Coordinator, error) {
	bins, err := cfg.ExtractorsByKind()
	if err != nil {
		return nil, err
	}
	if len(bins) == 0 {
		return nil, errors.New("resource export requested but no extractors are configured")
	}
	// Kinds configured with the same binary share one extractor, so a
	// package holding several of them is extracted by one run.
	commands := make(map[string]*extract.Command)
	extractors := make(map[resource.Kind]extract.Extractor, len(bins))
	for kind, bin := range bins {
		cmd, ok := commands[bin]
		if !ok {
			cmd = extract.NewCommand(bin, logger)
			commands[bin] = cmd
		}
		extractors[kind] = cmd
	}
	return extract.NewCoordinator(extract.NewLocator(cfg.PackageDirs...), extractors, cfg.ExportDir, logger), nil
}

// Close releases the scripting VMs and the ledger pool.
func (a *app) Close() {
	if a.scripts != nil {
		a.scripts.Close()
	}
	if a.pool != nil {
		_ = a.pool.Close()
	}
}

// outputFor maps a source file to its output path. A source inside a
// directory input keeps its relative path below outDir.
func (a *app) outputFor(in, src, outDir string) (string, error) {
	rel := filepath.Base(src)
	if info, err := os.Stat(in); err == nil && info.IsDir() {
		r, err := filepath.Rel(in, src)
		if err != nil {
			return "", err
		}
		rel = r
	}
	return pathutil.SafeJoin(outDir, pathutil.ChangeExtension(rel, a.cfg.Output.Extension))
}

// convertFile converts one file. An out of "-" writes the document to w.
func (a *app) convertFile(ctx context.Context, in, out string, w io.Writer) batch.FileReport {
	f := batch.FileReport{Source: in, Output: out}
	if out == "-" {
		src, _, err := textio.ReadFile(in)
		if err != nil {
			f.Err = err
			return f
		}
		f.Result, f.Err = a.conv.Convert(ctx, src, a.opts)
		if f.Result != nil {
			data, err := textio.Encode(f.Result.Text, f.Result.Encoding)
			if err == nil {
				_, err = w.Write(data)
			}
			f.Err = errors.Join(f.Err, err)
		}
		return f
	}
	f.Result, f.Err = a.conv.ConvertFile(ctx, in, out, a.opts)
	if f.Result != nil {
		f.Duration = f.Result.Duration
	}
	return f
}

// runBatch converts a directory tree.
func (a *app) runBatch(ctx context.Context, in, outDir string) (*batch.Report, error) {
	r := batch.New(a.conv, a.logger)
	r.OnFile = a.finished
	return r.Run(ctx, batch.Options{
		InputDir:  in,
		OutputDir: outDir,
		Pattern:   a.cfg.Batch.Pattern,
		Extension: a.cfg.Output.Extension,
		Workers:   a.cfg.Batch.Workers,
		Convert:   a.opts,
	})
}

// watch reconverts in, a file or directory, on every change until ctx is
// done or a signal arrives.
func (a *app) watch(ctx context.Context, in, outDir string) error {
	w, err := watch.New(a.cfg.Batch.Pattern, a.cfg.Watch.Debounce, func(ctx context.Context, path string) {
		out, err := a.outputFor(in, path, outDir)
		if err != nil {
			a.logger.Warn("changed file has no output path", zap.String("path", path), zap.Error(err))
			return
		}
		a.finished(ctx, a.convertFile(ctx, path, out, nil))
	}, a.logger)
	if err != nil {
		return err
	}
	if err := w.Add(in); err != nil {
		_ = w.Close()
		return err
	}

	lc := lifecycle.New(a.logger)
	lc.Add("watch", w)
	if a.pool != nil {
		lc.Add("ledger", &lifecycle.FuncService{CloseFn: a.pool.Close})
		a.pool = nil
	}
	a.logger.Info("watching for changes", zap.String("path", in), zap.Duration("debounce", a.cfg.Watch.Debounce))
	return lc.Run(ctx)
}

// finished reports one file and records it in the ledger.
func (a *app) finished(ctx context.Context, f batch.FileReport) {
	a.mu.Lock()
	printReport(a.report, f)
	a.mu.Unlock()
	if a.ledger == nil {
		return
	}
	run, err := a.ledger.Record(ctx, runFromReport(f, a.opts))
	if err != nil {
		a.logger.Warn("recording conversion run", zap.String("source", f.Source), zap.Error(err))
		return
	}
	a.logger.Debug("conversion run recorded", zap.Stringer("run", run.ID))
}

// runFromReport builds the ledger entry for one file.
func runFromReport(f batch.FileReport, opts convert.Options) postgres.Run {
	run := postgres.Run{
		SourcePath:       f.Source,
		OutputPath:       f.Output,
		SourceGeneration: opts.Source.String(),
		TargetGeneration: opts.Target.String(),
		Status:           string(f.Status()),
		Diagnostics:      map[string]int{},
		Duration:         f.Duration,
	}
	if f.Err != nil {
		run.Error = f.Err.Error()
	}
	if f.Result != nil {
		run.ActorsIn = f.Result.ActorsIn
		run.ActorsOut = f.Result.ActorsOut
		for k, n := range f.Result.Counts() {
			run.Diagnostics[string(k)] = n
		}
		if run.Duration == 0 {
			run.Duration = f.Result.Duration
		}
	}
	return run
}

// printReport writes a one-line summary of f followed by its diagnostics.
func printReport(w io.Writer, f batch.FileReport) {
	if w == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", f.Source, f.Status())
	if f.Result != nil {
		counts := f.Result.Counts()
		kinds := make([]string, 0, len(counts))
		for k, n := range counts {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, " (actors %d -> %d", f.Result.ActorsIn, f.Result.ActorsOut)
		if len(kinds) > 0 {
			fmt.Fprintf(&b, ", %s", strings.Join(kinds, " "))
		}
		b.WriteString(")")
	}
	if f.Output != "" && f.Output != "-" {
		fmt.Fprintf(&b, " -> %s", f.Output)
	}
	b.WriteString("\n")
	if f.Err != nil {
		fmt.Fprintf(&b, "  error: %v\n", f.Err)
	}
	if f.Result != nil {
		for _, d := range f.Result.Diagnostics {
			fmt.Fprintf(&b, "  %s\n", d)
		}
	}
	_, _ = io.WriteString(w, b.String())
}
