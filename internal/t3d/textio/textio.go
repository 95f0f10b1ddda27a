// Package textio reads and writes T3D files in the encodings the editors
// produce: UTF-8 (with or without BOM) and UTF-16.
package textio

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// Encoding names a supported text encoding.
type Encoding string

const (
	UTF8    Encoding = "utf8"
	UTF16LE Encoding = "utf16le"
	UTF16BE Encoding = "utf16be"
)

// Output encoding preferences accepted by ForTarget.
const (
	PreferAuto  = "auto"
	PreferUTF8  = "utf8"
	PreferUTF16 = "utf16"
)

// Detect guesses the encoding of data. A byte-order mark wins; otherwise a
// NUL byte in the first line means UTF-16, and its position tells the byte
// order for ASCII text.
func Detect(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return UTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return UTF16BE
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8
	}
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	nul := bytes.IndexByte(first, 0)
	switch {
	case nul < 0:
		// An empty first line in UTF-16LE shows its NUL just past the newline.
		if len(first) < len(data)-1 && data[len(first)+1] == 0 && len(first)%2 == 0 {
			return UTF16LE
		}
		return UTF8
	case nul%2 == 0:
		return UTF16BE
	default:
		return UTF16LE
	}
}

func codec(enc Encoding) (encoding.Encoding, error) {
	switch enc {
	case UTF8:
		return unicode.UTF8BOM, nil
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}

// Decode detects the encoding of data and returns its text without any BOM.
//
// Postcondition: on success enc is the encoding that was detected.
func Decode(data []byte) (text string, enc Encoding, err error) {
	enc = Detect(data)
	c, err := codec(enc)
	if err != nil {
		return "", "", err
	}
	out, _, err := transform.Bytes(c.NewDecoder(), data)
	if err != nil {
		return "", "", fmt.Errorf("decoding %s: %w", enc, err)
	}
	return string(out), enc, nil
}

// Encode renders text in enc. UTF-16 output carries a BOM; UTF-8 output
// does not.
func Encode(text string, enc Encoding) ([]byte, error) {
	if enc == UTF8 {
		return []byte(text), nil
	}
	c, err := codec(enc)
	if err != nil {
		return nil, err
	}
	out, _, err := transform.Bytes(c.NewEncoder(), []byte(text))
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", enc, err)
	}
	return out, nil
}

// ForTarget chooses the output encoding for a target generation. "auto"
// picks UTF-16LE for UE3, whose editor exports UTF-16, and UTF-8 otherwise.
func ForTarget(target scene.Generation, preference string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "", PreferAuto:
		if target == scene.UE3 {
			return UTF16LE, nil
		}
		return UTF8, nil
	case PreferUTF8, "utf-8":
		return UTF8, nil
	case PreferUTF16, "utf-16", string(UTF16LE):
		return UTF16LE, nil
	case string(UTF16BE):
		return UTF16BE, nil
	default:
		return "", fmt.Errorf("unknown output encoding %q", preference)
	}
}

// ReadFile reads and decodes a T3D file.
func ReadFile(path string) (string, Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	text, enc, err := Decode(data)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	return text, enc, nil
}

// WriteFile encodes text and writes it to path.
func WriteFile(path, text string, enc Encoding) error {
	data, err := Encode(text, enc)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
