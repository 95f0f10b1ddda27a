// Package batch converts every source document under a directory tree with
// a bounded pool of workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/levelport/internal/convert"
	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/pathutil"
)

// Status is the outcome of one file.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Options configures one batch.
type Options struct {
	InputDir  string
	OutputDir string
	// Pattern matches source file names, case-insensitively; default "*.t3d".
	Pattern string
	// Extension of the written files; default ".t3d".
	Extension string
	Workers   int
	Convert   convert.Options
}

// FileReport is the outcome of converting one file.
type FileReport struct {
	Source string
	Output string
	// Result is nil when the file could not be converted at all.
	Result   *convert.Result
	Err      error
	Duration time.Duration
}

// Status classifies the report.
func (f FileReport) Status() Status {
	switch {
	case f.Result == nil:
		return StatusFailed
	case f.Result.Partial:
		return StatusPartial
	case f.Err != nil:
		return StatusFailed
	default:
		return StatusOK
	}
}

// Report is the outcome of a batch, with files in source path order.
type Report struct {
	Files    []FileReport
	Duration time.Duration
}

// Failed returns the number of files that did not convert completely.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Status() != StatusOK {
			n++
		}
	}
	return n
}

// Counts sums the diagnostics of every file by kind.
func (r *Report) Counts() map[diag.Kind]int {
	counts := make(map[diag.Kind]int)
	for _, f := range r.Files {
		if f.Result == nil {
			continue
		}
		for k, n := range f.Result.Counts() {
			counts[k] += n
		}
	}
	return counts
}

// Runner converts batches. It shares one Converter, and through it one
// exporter, across all workers.
type Runner struct {
	conv   *convert.Converter
	logger *zap.Logger
	// OnFile, when set, is called once per finished file from the worker
	// that converted it.
	OnFile func(ctx context.Context, f FileReport)
}

// New creates a Runner.
//
// Precondition: conv must be non-nil.
func New(conv *convert.Converter, logger *zap.Logger) *Runner {
	if conv == nil {
		panic("batch.New: converter must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{conv: conv, logger: logger}
}

// Discover returns every file under dir whose name matches pattern, sorted.
//
// Precondition: dir must be a readable directory.
func Discover(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*.t3d"
	}
	pattern = strings.ToLower(pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, strings.ToLower(d.Name())); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Run converts every matching file under opts.InputDir into the same
// relative path under opts.OutputDir. A file that fails does not stop the
// batch.
//
// Postcondition: the Report lists every discovered file. Cancellation
// returns the Report so far together with an error wrapping ctx.Err().
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.Convert.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if opts.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if opts.Extension == "" {
		opts.Extension = ".t3d"
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	files, err := Discover(opts.InputDir, opts.Pattern)
	if err != nil {
		return nil, err
	}
	r.logger.Info("batch started",
		zap.String("input", opts.InputDir),
		zap.Int("files", len(files)),
		zap.Int("workers", workers),
	)

	report := &Report{Files: make([]FileReport, len(files))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range files {
		i, src := i, src
		if gctx.Err() != nil {
			report.Files[i] = FileReport{Source: src, Err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			f := r.convertOne(gctx, opts, src)
			report.Files[i] = f
			if r.OnFile != nil {
				r.OnFile(gctx, f)
			}
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = time.Since(start)

	r.logger.Info("batch finished",
		zap.Int("files", len(files)),
		zap.Int("failed", report.Failed()),
		zap.Duration("duration", report.Duration),
	)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch cancelled: %w", err)
	}
	return report, nil
}

func (r *Runner) convertOne(ctx context.Context, opts Options, src string) FileReport {
	start := time.Now()
	f := FileReport{Source: src}
	rel, err := filepath.Rel(opts.InputDir, src)
	if err != nil {
		f.Err = err
		return f
	}
	out, err := pathutil.SafeJoin(opts.OutputDir, pathutil.ChangeExtension(rel, opts.Extension))
	if err != nil {
		f.Err = err
		return f
	}
	f.Output = out
	f.Result, f.Err = r.conv.ConvertFile(ctx, src, out, opts.Convert)
	f.Duration = time.Since(start)
	if f.Err != nil {
		r.logger.Warn("file not converted",
			zap.String("source", src),
			zap.String("status", string(f.Status())),
			zap.Error(f.Err),
		)
	}
	return f
}
