// Package diag carries the recoverable anomalies found while converting a
// document. Every anomaly is recorded exactly once; only structural errors
// abort a run.
package diag

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Kind classifies a diagnostic by the stage and failure mode that produced it.
type Kind string

const (
	KindStructural Kind = "structural"
	KindSyntax     Kind = "syntax"
	KindRuleGap    Kind = "rule_gap"
	KindDropped    Kind = "dropped"
	KindGeometry   Kind = "geometry"
	KindResource   Kind = "resource"
	KindCancelled  Kind = "cancelled"
)

// Diagnostic is one recorded anomaly. Line is 1-based; 0 means the anomaly
// has no single source location (e.g. an extractor failure).
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Message  string
	Line     int
}

// String renders the diagnostic as "L<line>: <severity> [<kind>] <message>".
func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("L%d: %s [%s] %s", d.Line, d.Severity, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s", d.Severity, d.Kind, d.Message)
}

// List collects diagnostics for one conversion run. It is not safe for
// concurrent use; each run owns its own List.
type List struct {
	items  []Diagnostic
	logger *zap.Logger
}

// NewList creates an empty List. A nil logger disables logging.
func NewList(logger *zap.Logger) *List {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &List{logger: logger}
}

// Add records a diagnostic and mirrors it to the logger at debug level.
func (l *List) Add(sev Severity, kind Kind, line int, format string, args ...any) {
	d := Diagnostic{Severity: sev, Kind: kind, Message: fmt.Sprintf(format, args...), Line: line}
	l.items = append(l.items, d)
	l.logger.Debug("diagnostic",
		zap.String("severity", sev.String()),
		zap.String("kind", string(kind)),
		zap.Int("line", line),
		zap.String("message", d.Message),
	)
}

// Warn records a warning.
func (l *List) Warn(kind Kind, line int, format string, args ...any) {
	l.Add(SeverityWarning, kind, line, format, args...)
}

// Info records an informational diagnostic.
func (l *List) Info(kind Kind, line int, format string, args ...any) {
	l.Add(SeverityInfo, kind, line, format, args...)
}

// Items returns the recorded diagnostics in insertion order.
func (l *List) Items() []Diagnostic {
	out := make([]Diagnostic, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of recorded diagnostics.
func (l *List) Len() int { return len(l.items) }

// OfKind returns the diagnostics of the given kind in insertion order.
func (l *List) OfKind(kind Kind) []Diagnostic {
	var out []Diagnostic
	for _, d := range l.items {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Counts returns the number of diagnostics per kind.
func (l *List) Counts() map[Kind]int {
	counts := make(map[Kind]int)
	for _, d := range l.items {
		counts[d.Kind]++
	}
	return counts
}

// Sorted returns the diagnostics ordered by line, keeping insertion order
// for equal lines.
func (l *List) Sorted() []Diagnostic {
	out := l.Items()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// StructuralError reports block structure that cannot be recovered. Line is
// the furthest source line the parser reached.
type StructuralError struct {
	Line    int
	Message string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural error at line %d: %s", e.Line, e.Message)
}
