package diag_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/levelport/internal/diag"
)

func TestList_RecordsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := diag.NewList(zap.New(core))

	l.Warn(diag.KindSyntax, 7, "malformed line %q", "BadProperty***@@")
	l.Info(diag.KindDropped, 3, "property %s dropped", "bHidden")
	l.Add(diag.SeverityError, diag.KindCancelled, 0, "conversion cancelled")

	require.Equal(t, 3, l.Len())
	items := l.Items()
	assert.Equal(t, diag.Diagnostic{Severity: diag.SeverityWarning, Kind: diag.KindSyntax, Line: 7, Message: `malformed line "BadProperty***@@"`}, items[0])
	assert.Len(t, l.OfKind(diag.KindDropped), 1)
	assert.Equal(t, map[diag.Kind]int{diag.KindSyntax: 1, diag.KindDropped: 1, diag.KindCancelled: 1}, l.Counts())

	entries := logs.FilterMessage("diagnostic").All()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(7), entries[0].ContextMap()["line"])
	assert.Equal(t, "syntax", entries[0].ContextMap()["kind"])
}

func TestList_ItemsIsACopy(t *testing.T) {
	l := diag.NewList(nil)
	l.Warn(diag.KindRuleGap, 1, "x")
	items := l.Items()
	items[0].Message = "changed"
	assert.Equal(t, "x", l.Items()[0].Message)
}

func TestDiagnostic_String(t *testing.T) {
	d := diag.Diagnostic{Severity: diag.SeverityWarning, Kind: diag.KindGeometry, Line: 15, Message: "degenerate polygon"}
	assert.Equal(t, "L15: warning [geometry] degenerate polygon", d.String())

	d.Line = 0
	assert.Equal(t, "warning [geometry] degenerate polygon", d.String())
}

func TestStructuralError(t *testing.T) {
	err := fmt.Errorf("parsing document: %w", &diag.StructuralError{Line: 42, Message: "End Actor without Begin"})
	var se *diag.StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 42, se.Line)
	assert.Contains(t, err.Error(), "line 42")
}

func TestList_SortedIsStableByLine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOf(rapid.IntRange(0, 20)).Draw(t, "lines")
		l := diag.NewList(nil)
		for i, line := range lines {
			l.Warn(diag.KindSyntax, line, "%d", i)
		}
		sorted := l.Sorted()
		require.Len(t, sorted, len(lines))
		for i := 1; i < len(sorted); i++ {
			prev, cur := sorted[i-1], sorted[i]
			if prev.Line > cur.Line {
				t.Fatalf("out of order at %d: %d > %d", i, prev.Line, cur.Line)
			}
			if prev.Line == cur.Line && prev.Message > cur.Message && len(prev.Message) == len(cur.Message) {
				t.Fatalf("insertion order lost at line %d", cur.Line)
			}
		}
	})
}
