package extract_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/levelport/internal/extract"
	"github.com/cory-johannsen/levelport/internal/resource"
)

type fakeExtractor struct {
	calls atomic.Int32
	err   error
	gate  chan struct{}
	// names are the resources the tool reports; Floor when empty.
	names []string
}

func (f *fakeExtractor) Extract(ctx context.Context, packageFile, outputDir string) (map[string]string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	names := f.names
	if len(names) == 0 {
		names = []string{"Floor"}
	}
	files := make(map[string]string, len(names))
	for _, n := range names {
		files[n] = filepath.Join(outputDir, n+".bmp")
	}
	return files, nil
}

func texturesExport() resource.PackageExport {
	return resource.PackageExport{
		Package:   "Floors",
		Resources: []*resource.PackageResource{{Package: "Floors", Name: "Floor", Kind: resource.KindTexture}},
	}
}

func newCoordinator(t *testing.T, ex extract.Extractor) (*extract.Coordinator, string) {
	t.Helper()
	pkgs := t.TempDir()
	touch(t, pkgs, "Floors.utx")
	out := t.TempDir()
	c := extract.NewCoordinator(extract.NewLocator(pkgs),
		map[resource.Kind]extract.Extractor{resource.KindTexture: ex}, out, zap.NewNop())
	return c, out
}

func TestCoordinator_ExtractsOncePerPackage(t *testing.T) {
	fake := &fakeExtractor{gate: make(chan struct{})}
	c, out := newCoordinator(t, fake)

	var wg sync.WaitGroup
	results := make([]map[string]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			files, err := c.Export(context.Background(), texturesExport())
			assert.NoError(t, err)
			results[i] = files
		}(i)
	}
	close(fake.gate)
	wg.Wait()

	files, err := c.Export(context.Background(), texturesExport())
	require.NoError(t, err)

	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, 1, c.Runs())
	want := filepath.Join(out, "Floors", "Floor.bmp")
	assert.Equal(t, want, files["Floor"])
	for _, r := range results {
		assert.Equal(t, want, r["Floor"])
	}
}

func TestCoordinator_MemoizesFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pkgs := t.TempDir()
	touch(t, pkgs, "Floors.utx")
	fake := &fakeExtractor{err: errors.New("corrupt package")}
	c := extract.NewCoordinator(extract.NewLocator(pkgs),
		map[resource.Kind]extract.Extractor{resource.KindTexture: fake}, t.TempDir(), zap.New(core))

	_, err1 := c.Export(context.Background(), texturesExport())
	_, err2 := c.Export(context.Background(), texturesExport())

	require.Error(t, err1)
	assert.Equal(t, err1, err2)
	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("package extraction failed").Len())
}

func TestCoordinator_NoExtractorForKind(t *testing.T) {
	c, _ := newCoordinator(t, &fakeExtractor{})
	exp := texturesExport()
	exp.Resources[0].Kind = resource.KindSound

	_, err := c.Export(context.Background(), exp)
	assert.ErrorIs(t, err, extract.ErrNoExtractor)
}

func TestCoordinator_PackageNotFound(t *testing.T) {
	fake := &fakeExtractor{}
	c, _ := newCoordinator(t, fake)
	exp := texturesExport()
	exp.Package = "Elsewhere"

	_, err := c.Export(context.Background(), exp)
	assert.ErrorIs(t, err, extract.ErrPackageNotFound)
	assert.Zero(t, fake.calls.Load())
}

func TestCoordinator_RejectsEscapingPackageName(t *testing.T) {
	pkgs := t.TempDir()
	touch(t, pkgs, "...utx")
	fake := &fakeExtractor{}
	c := extract.NewCoordinator(extract.NewLocator(pkgs),
		map[resource.Kind]extract.Extractor{resource.KindTexture: fake}, t.TempDir(), nil)

	_, err := c.Export(context.Background(), resource.PackageExport{
		Package:   "..",
		Resources: []*resource.PackageResource{{Package: "..", Name: "Floor", Kind: resource.KindTexture}},
	})
	require.Error(t, err)
	assert.Zero(t, fake.calls.Load())
}

func mixedExport() resource.PackageExport {
	return resource.PackageExport{
		Package: "Props",
		Resources: []*resource.PackageResource{
			{Package: "Props", Name: "Wall", Kind: resource.KindTexture},
			{Package: "Props", Name: "Rock", Kind: resource.KindStaticMesh},
			{Package: "Props", Name: "Hum", Kind: resource.KindSound},
		},
	}
}

func TestCoordinator_MixedPackageRunsSharedToolOnce(t *testing.T) {
	pkgs := t.TempDir()
	touch(t, pkgs, "Props.upk")
	out := t.TempDir()
	tool := &fakeExtractor{names: []string{"Wall", "Rock", "Hum"}}
	c := extract.NewCoordinator(extract.NewLocator(pkgs), map[resource.Kind]extract.Extractor{
		resource.KindTexture:    tool,
		resource.KindStaticMesh: tool,
		resource.KindSound:      tool,
	}, out, nil)

	files, err := c.Export(context.Background(), mixedExport())
	require.NoError(t, err)
	_, err = c.Export(context.Background(), mixedExport())
	require.NoError(t, err)

	assert.Equal(t, int32(1), tool.calls.Load())
	assert.Equal(t, 1, c.Runs())
	assert.Len(t, files, 3)
	assert.Equal(t, filepath.Join(out, "Props", "Hum.bmp"), files["Hum"])
}

func TestCoordinator_MixedPackageMergesDistinctTools(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pkgs := t.TempDir()
	touch(t, pkgs, "Props.upk")
	textures := &fakeExtractor{names: []string{"Wall"}}
	sounds := &fakeExtractor{err: errors.New("unsupported codec")}
	c := extract.NewCoordinator(extract.NewLocator(pkgs), map[resource.Kind]extract.Extractor{
		resource.KindTexture: textures,
		resource.KindSound:   sounds,
	}, t.TempDir(), zap.New(core))

	files, err := c.Export(context.Background(), mixedExport())
	require.NoError(t, err)

	assert.Equal(t, int32(1), textures.calls.Load())
	assert.Equal(t, int32(1), sounds.calls.Load())
	assert.Equal(t, 2, c.Runs())
	assert.Contains(t, files, "Wall")
	assert.Equal(t, 1, logs.FilterMessage("package extraction failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("no extractor for some resource kinds").Len())
}

func TestNewCoordinator_NilLocatorPanics(t *testing.T) {
	assert.Panics(t, func() { extract.NewCoordinator(nil, nil, "out", nil) })
}
