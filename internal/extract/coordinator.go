package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cory-johannsen/levelport/internal/pathutil"
	"github.com/cory-johannsen/levelport/internal/resource"
)

// ErrNoExtractor is returned for resource kinds without a configured tool.
var ErrNoExtractor = errors.New("no extractor configured")

// Coordinator exports packages on behalf of conversion runs. Each package
// is extracted at most once for the Coordinator's lifetime, even when many
// runs ask for it concurrently. A package holding several kinds is handed
// once to each distinct tool configured for those kinds.
type Coordinator struct {
	locator    *Locator
	extractors map[resource.Kind]Extractor
	outputDir  string
	logger     *zap.Logger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]outcome
	runs  int
}

type outcome struct {
	files map[string]string
	err   error
}

// NewCoordinator creates a Coordinator writing below outputDir.
//
// Precondition: locator must be non-nil; outputDir must be non-empty.
func NewCoordinator(locator *Locator, extractors map[resource.Kind]Extractor, outputDir string, logger *zap.Logger) *Coordinator {
	if locator == nil {
		panic("extract.NewCoordinator: locator must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		locator:    locator,
		extractors: extractors,
		outputDir:  outputDir,
		logger:     logger,
		memo:       make(map[string]outcome),
	}
}

// Export extracts exp.Package and returns the files it produced, keyed by
// resource name. Repeated calls for the same package return the memoized
// outcome, including a failure. Cancellation is never memoized.
func (c *Coordinator) Export(ctx context.Context, exp resource.PackageExport) (map[string]string, error) {
	key := strings.ToLower(exp.Package)
	if o, ok := c.cached(key); ok {
		return o.files, o.err
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if o, ok := c.cached(key); ok {
			return o.files, o.err
		}
		files, err := c.extract(ctx, exp)
		if ctx.Err() == nil {
			c.mu.Lock()
			c.memo[key] = outcome{files: files, err: err}
			c.mu.Unlock()
		}
		return files, err
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

// Runs returns how many times an extractor tool was started.
func (c *Coordinator) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func (c *Coordinator) cached(key string) (outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.memo[key]
	return o, ok
}

// toolRun is one extractor and the kinds it is run for.
type toolRun struct {
	ex    Extractor
	kinds []resource.Kind
}

// tools groups kinds by the extractor configured for them, in kind order.
// Kinds without an extractor are returned separately.
func (c *Coordinator) tools(kinds []resource.Kind) (runs []toolRun, missing []resource.Kind) {
	for _, k := range kinds {
		ex, ok := c.extractors[k]
		if !ok || ex == nil {
			missing = append(missing, k)
			continue
		}
		i := slices.IndexFunc(runs, func(r toolRun) bool { return r.ex == ex })
		if i < 0 {
			runs = append(runs, toolRun{ex: ex})
			i = len(runs) - 1
		}
		runs[i].kinds = append(runs[i].kinds, k)
	}
	return runs, missing
}

func (c *Coordinator) extract(ctx context.Context, exp resource.PackageExport) (map[string]string, error) {
	kinds := exp.Kinds()
	runs, missing := c.tools(kinds)
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w for %s resources", ErrNoExtractor, kindList(kinds))
	}
	if exp.Package == "" || exp.Package == "." || exp.Package == ".." || strings.ContainsAny(exp.Package, `/\`) {
		return nil, fmt.Errorf("%w: package name %q", pathutil.ErrUnsafePath, exp.Package)
	}
	pkgFile, err := c.locator.Locate(exp.Package, kinds...)
	if err != nil {
		return nil, err
	}
	dir, err := pathutil.SafeJoin(c.outputDir, exp.Package)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	if len(missing) > 0 {
		c.logger.Warn("no extractor for some resource kinds",
			zap.String("package", exp.Package),
			zap.String("kinds", kindList(missing)),
		)
	}

	files := make(map[string]string)
	var errs []error
	for _, run := range runs {
		c.mu.Lock()
		c.runs++
		c.mu.Unlock()
		c.logger.Debug("extracting package",
			zap.String("package", exp.Package),
			zap.String("kinds", kindList(run.kinds)),
			zap.String("file", pkgFile),
			zap.String("output", dir),
		)
		out, err := run.ex.Extract(ctx, pkgFile, dir)
		if err != nil {
			c.logger.Warn("package extraction failed",
				zap.String("package", exp.Package),
				zap.String("kinds", kindList(run.kinds)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", kindList(run.kinds), err))
			continue
		}
		for name, path := range out {
			if _, dup := files[name]; !dup {
				files[name] = path
			}
		}
	}
	if len(files) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return files, nil
}

func kindList(kinds []resource.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}
