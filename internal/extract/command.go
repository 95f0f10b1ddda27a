// Package extract exports binary assets from legacy packages by running an
// external extractor tool, once per package per batch.
package extract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/pathutil"
)

// Extractor exports every resource of one package file into outputDir and
// returns the written file for each resource name.
type Extractor interface {
	Extract(ctx context.Context, packageFile, outputDir string) (map[string]string, error)
}

// DefaultExtension is the file extension the texture extractor writes.
const DefaultExtension = ".bmp"

// Command runs an extractor binary as `binary packageFile outputDir`. The
// arguments are passed directly, never through a shell.
type Command struct {
	Binary string
	// Extension of the files the tool writes; defaults to DefaultExtension.
	Extension string
	logger    *zap.Logger
}

// NewCommand creates a Command for binary.
//
// Precondition: binary must be non-empty.
func NewCommand(binary string, logger *zap.Logger) *Command {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{Binary: binary, Extension: DefaultExtension, logger: logger}
}

// Extract runs the tool and parses its progress output.
//
// Postcondition: the returned map holds one entry per resource the tool
// reported; a non-zero exit status is an error.
func (c *Command) Extract(ctx context.Context, packageFile, outputDir string) (map[string]string, error) {
	pkgAbs, err := filepath.Abs(packageFile)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", packageFile, err)
	}
	outAbs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", outputDir, err)
	}

	cmd := exec.CommandContext(ctx, c.Binary, pkgAbs, outAbs)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("extracting %s: %w", filepath.Base(packageFile), ctx.Err())
		}
		return nil, fmt.Errorf("extracting %s with %s: %w: %s", filepath.Base(packageFile), c.Binary, err, strings.TrimSpace(string(out)))
	}

	ext := c.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	files := ParseOutput(out, outAbs, ext)
	c.logger.Info("package extracted",
		zap.String("package", pkgAbs),
		zap.String("tool", c.Binary),
		zap.Int("resources", len(files)),
	)
	return files, nil
}

const extractMarker = "Extracting texture "

// ParseOutput reads the extractor's progress log, where each exported
// resource appears as "Extracting texture <Name>... OK" and several may
// share a line. Names that would escape outputDir are ignored.
func ParseOutput(out []byte, outputDir, ext string) map[string]string {
	files := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		for {
			i := strings.Index(line, extractMarker)
			if i < 0 {
				break
			}
			line = line[i+len(extractMarker):]
			end := strings.IndexAny(line, ". \t")
			name := line
			if end >= 0 {
				name = line[:end]
			}
			if name == "" {
				continue
			}
			path, err := pathutil.SafeJoin(outputDir, pathutil.ChangeExtension(name, ext))
			if err != nil {
				continue
			}
			files[name] = path
		}
	}
	return files
}
