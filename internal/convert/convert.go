// Package convert runs one document through the conversion pipeline:
// parse, rules, geometry, resource resolution, optional asset export and
// writing.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/convert/geometry"
	"github.com/cory-johannsen/levelport/internal/convert/rules"
	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/resource"
	"github.com/cory-johannsen/levelport/internal/t3d/parser"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
	"github.com/cory-johannsen/levelport/internal/t3d/textio"
	"github.com/cory-johannsen/levelport/internal/t3d/writer"
)

// Options selects the generation pair and output form of one run.
type Options struct {
	Source scene.Generation
	Target scene.Generation
	// Scale overrides the world scale; 0 uses geometry.DefaultScale.
	Scale float64
	// Encoding is the output encoding preference: auto, utf8 or utf16.
	Encoding string
	CRLF     bool
}

// Pair returns the run's generation pair.
func (o Options) Pair() scene.Pair { return scene.Pair{Source: o.Source, Target: o.Target} }

// Validate reports option combinations no run can satisfy.
func (o Options) Validate() error {
	var errs []error
	if o.Source == scene.GenUnknown {
		errs = append(errs, errors.New("source generation is required"))
	}
	if o.Target == scene.GenUnknown {
		errs = append(errs, errors.New("target generation is required"))
	}
	if o.Scale < 0 {
		errs = append(errs, fmt.Errorf("scale must not be negative, got %v", o.Scale))
	}
	if _, err := textio.ForTarget(o.Target, o.Encoding); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Exporter is the asset extraction collaborator. It exports the resources
// of one package and returns the written file for each resource name it
// produced.
type Exporter interface {
	Export(ctx context.Context, exp resource.PackageExport) (map[string]string, error)
}

// Result is the outcome of one run.
type Result struct {
	Document    *scene.Document
	Text        string
	Encoding    textio.Encoding
	Diagnostics []diag.Diagnostic
	Registry    *resource.Registry
	Geometry    geometry.Stats
	ActorsIn    int
	ActorsOut   int
	Duration    time.Duration
	// Partial is set when the run was cancelled; Document and Text then
	// hold whatever was converted before cancellation.
	Partial bool
	Reason  string
}

// Counts returns the number of diagnostics of each kind.
func (r *Result) Counts() map[diag.Kind]int {
	counts := make(map[diag.Kind]int)
	for _, d := range r.Diagnostics {
		counts[d.Kind]++
	}
	return counts
}

// Converter runs documents through the pipeline. It holds only read-only
// state and may be shared by concurrent runs.
type Converter struct {
	engine   *rules.Engine
	exporter Exporter
	logger   *zap.Logger
}

// New creates a Converter. exporter may be nil to skip asset export.
//
// Precondition: engine must be non-nil.
func New(engine *rules.Engine, exporter Exporter, logger *zap.Logger) *Converter {
	if engine == nil {
		panic("convert.New: engine must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{engine: engine, exporter: exporter, logger: logger}
}

// run carries the state of one Convert call.
type run struct {
	opts   Options
	diags  *diag.List
	reg    *resource.Registry
	result *Result
	start  time.Time
}

// Convert converts T3D source text.
//
// Postcondition: a structural parse error returns a nil Result and an error
// wrapping *diag.StructuralError. Cancellation returns a Partial Result
// together with an error wrapping ctx.Err(). Every other problem is a
// diagnostic on a complete Result.
func (c *Converter) Convert(ctx context.Context, src string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	enc, _ := textio.ForTarget(opts.Target, opts.Encoding)

	r := &run{
		opts:  opts,
		diags: diag.NewList(c.logger),
		reg:   resource.NewRegistry(),
		start: time.Now(),
	}
	r.result = &Result{Registry: r.reg, Encoding: enc}
	pair := opts.Pair()

	doc, err := parser.Parse(src, opts.Source, r.diags)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	r.result.ActorsIn = len(doc.Actors())
	if err := ctx.Err(); err != nil {
		r.result.Document = &scene.Document{Header: scene.Header{Generation: opts.Target}}
		return c.cancelled(r, fmt.Errorf("after parsing: %w", err))
	}

	geo := geometry.New(pair, opts.Scale, c.logger)
	rc := rules.NewContext(pair, geo.Scale(), r.diags, c.logger)
	out, err := c.engine.ConvertDocument(ctx, rc, doc)
	r.result.Document = out
	if err != nil {
		return c.cancelled(r, err)
	}

	st, err := geo.ConvertDocument(ctx, out, r.diags)
	r.result.Geometry = st
	if err != nil {
		return c.cancelled(r, err)
	}

	lines := Resolve(out, r.reg)
	if c.exporter != nil {
		if err := c.export(ctx, r, lines); err != nil {
			return c.cancelled(r, err)
		}
	}

	if err := c.finish(r); err != nil {
		return nil, err
	}
	c.logger.Info("document converted",
		zap.String("pair", pair.String()),
		zap.Int("actors_in", r.result.ActorsIn),
		zap.Int("actors_out", r.result.ActorsOut),
		zap.Int("resources", r.reg.Len()),
		zap.Int("diagnostics", len(r.result.Diagnostics)),
		zap.Duration("duration", r.result.Duration),
	)
	return r.result, nil
}

// export hands each package with unexported resources to the exporter and
// records the produced files. Every resource left without a file gets one
// Resource diagnostic at its first reference.
func (c *Converter) export(ctx context.Context, r *run, lines map[*resource.PackageResource]int) error {
	for _, exp := range r.reg.PendingExports() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("exporting resources: %w", err)
		}
		files, err := c.exporter.Export(ctx, exp)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("exporting %s: %w", exp.Package, ctx.Err())
			}
			for _, res := range exp.Resources {
				r.diags.Warn(diag.KindResource, lines[res], "resource %s unresolved: %v", res.FullName(), err)
			}
			continue
		}
		byName := make(map[string]string, len(files))
		for name, path := range files {
			byName[foldName(name)] = path
		}
		for _, res := range exp.Resources {
			if path, ok := byName[foldName(res.Name)]; ok {
				res.ExportedFile = path
				delete(byName, foldName(res.Name))
				continue
			}
			r.diags.Warn(diag.KindResource, lines[res], "resource %s unresolved: not exported from package %s", res.FullName(), exp.Package)
		}
		// The rest of the package is registered too, so later references
		// and reports see the exported files. Its kind is known only when
		// the package was exported for a single kind.
		kind := resource.KindOther
		if kinds := exp.Kinds(); len(kinds) == 1 {
			kind = kinds[0]
		}
		extra := make([]string, 0, len(byName))
		for name := range files {
			if _, ok := byName[foldName(name)]; ok {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		for _, name := range extra {
			if res := r.reg.Add(exp.Package, name, kind); !res.Exported() {
				res.ExportedFile = files[name]
			}
		}
	}
	return nil
}

func (c *Converter) finish(r *run) error {
	var buf bytes.Buffer
	if err := writer.New(&buf, writer.Options{CRLF: r.opts.CRLF}).WriteDocument(r.result.Document); err != nil {
		return err
	}
	r.result.Text = buf.String()
	r.result.ActorsOut = len(r.result.Document.Actors())
	r.result.Diagnostics = r.diags.Items()
	r.result.Duration = time.Since(r.start)
	return nil
}

func (c *Converter) cancelled(r *run, err error) (*Result, error) {
	r.result.Partial = true
	r.result.Reason = err.Error()
	r.diags.Add(diag.SeverityError, diag.KindCancelled, 0, "conversion cancelled: %v", err)
	if ferr := c.finish(r); ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	c.logger.Warn("conversion cancelled",
		zap.String("pair", r.opts.Pair().String()),
		zap.Int("actors_out", r.result.ActorsOut),
		zap.Error(err),
	)
	return r.result, err
}
