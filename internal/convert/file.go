package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/t3d/textio"
)

// ConvertFile reads inPath in whatever encoding it uses, converts it and
// writes the result to outPath in the target's encoding, creating parent
// directories as needed. A partial result is still written so the converted
// prefix is not lost.
func (c *Converter) ConvertFile(ctx context.Context, inPath, outPath string, opts Options) (*Result, error) {
	src, enc, err := textio.ReadFile(inPath)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("source read",
		zap.String("path", inPath),
		zap.String("encoding", string(enc)),
		zap.Int("bytes", len(src)),
	)

	res, convErr := c.Convert(ctx, src, opts)
	if res == nil {
		return nil, fmt.Errorf("converting %s: %w", inPath, convErr)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return res, fmt.Errorf("creating output directory for %s: %w", outPath, err)
	}
	if err := textio.WriteFile(outPath, res.Text, res.Encoding); err != nil {
		return res, err
	}
	if convErr != nil {
		return res, fmt.Errorf("converting %s: %w", inPath, convErr)
	}
	return res, nil
}
