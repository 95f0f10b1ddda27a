// Package pathutil holds the path and file-name helpers shared by the
// converter's file-facing components.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned when a relative path escapes its base directory.
var ErrUnsafePath = errors.New("path escapes base directory")

// IsPathSafe reports whether path, resolved against base, stays inside
// base.
func IsPathSafe(path, base string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absBase, target)
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SafeJoin joins rel onto base and rejects results outside base.
//
// Postcondition: on success the returned path is inside base.
func SafeJoin(base, rel string) (string, error) {
	if filepath.IsAbs(rel) || !IsPathSafe(rel, base) {
		return "", fmt.Errorf("%w: %q under %q", ErrUnsafePath, rel, base)
	}
	return filepath.Join(base, rel), nil
}

// Extension returns the lower-cased extension of path without its dot, or
// "" when there is none.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ChangeExtension replaces the extension of path with ext, which may be
// given with or without a leading dot. An empty ext removes the extension.
func ChangeExtension(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// OutputName builds the file name an exported resource is written to:
// <package>_<resource>.<ext>, with group separators and characters that are
// unsafe in file names replaced by underscores.
func OutputName(pkg, resource, ext string) string {
	name := sanitize(pkg) + "_" + sanitize(resource)
	return ChangeExtension(name, ext)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '/' || r == '\\' || r == ':' || r == ' ':
			return '_'
		case r < 0x20 || strings.ContainsRune(`*?"<>|'`, r):
			return '_'
		default:
			return r
		}
	}, s)
}
