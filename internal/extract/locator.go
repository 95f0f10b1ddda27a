package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cory-johannsen/levelport/internal/resource"
)

// ErrPackageNotFound is returned when no configured directory holds the
// package file.
var ErrPackageNotFound = errors.New("package file not found")

// kindExtensions lists the package file extensions that may hold each kind
// of resource, most likely first. UE3 packages hold every kind.
var kindExtensions = map[resource.Kind][]string{
	resource.KindTexture:    {".utx", ".upk", ".u"},
	resource.KindStaticMesh: {".usx", ".upk", ".u"},
	resource.KindSound:      {".uax", ".upk", ".u"},
	resource.KindOther:      {".u", ".upk"},
}

// Locator finds package files in a list of directories.
type Locator struct {
	dirs []string
}

// NewLocator creates a Locator searching dirs in order.
func NewLocator(dirs ...string) *Locator {
	return &Locator{dirs: append([]string(nil), dirs...)}
}

// Locate returns the file holding pkg for resources of the given kinds.
// Extensions able to hold every kind are tried first. File names match
// case-insensitively.
func (l *Locator) Locate(pkg string, kinds ...resource.Kind) (string, error) {
	exts := extensionsFor(kinds)
	want := strings.ToLower(pkg)
	for _, ext := range exts {
		for _, dir := range l.dirs {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				name := strings.ToLower(e.Name())
				if name == want+ext {
					return filepath.Join(dir, e.Name()), nil
				}
			}
		}
	}
	return "", fmt.Errorf("%w: %s (%s) in %s", ErrPackageNotFound, pkg, strings.Join(exts, ", "), strings.Join(l.dirs, ", "))
}

// extensionsFor orders the candidate extensions for kinds: those shared by
// every kind, then the rest, each in per-kind priority order.
func extensionsFor(kinds []resource.Kind) []string {
	if len(kinds) == 0 {
		kinds = []resource.Kind{resource.KindOther}
	}
	shared := func(ext string) bool {
		for _, k := range kinds {
			if !slices.Contains(kindExtensions[k], ext) {
				return false
			}
		}
		return true
	}
	var common, rest []string
	for _, k := range kinds {
		for _, ext := range kindExtensions[k] {
			if slices.Contains(common, ext) || slices.Contains(rest, ext) {
				continue
			}
			if shared(ext) {
				common = append(common, ext)
			} else {
				rest = append(rest, ext)
			}
		}
	}
	return append(common, rest...)
}
