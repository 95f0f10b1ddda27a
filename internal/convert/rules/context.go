package rules

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// Context carries the per-document state of one conversion run. It is not
// safe for concurrent use.
type Context struct {
	Pair scene.Pair
	// Scale is the world-unit factor from source to target.
	Scale  float64
	Diags  *diag.List
	Logger *zap.Logger

	seq   map[string]int
	names map[string]bool
}

// NewContext creates a Context for one document.
//
// Precondition: diags must be non-nil.
// Postcondition: a scale of 0 is treated as 1.
func NewContext(pair scene.Pair, scale float64, diags *diag.List, logger *zap.Logger) *Context {
	if scale == 0 {
		scale = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		Pair:   pair,
		Scale:  scale,
		Diags:  diags,
		Logger: logger,
		seq:    make(map[string]int),
		names:  make(map[string]bool),
	}
}

// Reserve records an existing actor name so generated names never collide
// with it.
func (c *Context) Reserve(name string) {
	if name != "" {
		c.names[strings.ToLower(name)] = true
	}
}

// NewName derives a name for a generated companion actor as
// <original>_<suffix><n>, where n counts per suffix across the document.
//
// Postcondition: the result differs from every reserved or previously
// generated name.
func (c *Context) NewName(original, suffix string) string {
	for {
		c.seq[suffix]++
		name := fmt.Sprintf("%s_%s%d", original, suffix, c.seq[suffix])
		if key := strings.ToLower(name); !c.names[key] {
			c.names[key] = true
			return name
		}
	}
}
