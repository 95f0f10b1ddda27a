package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusOK, StatusPartial, StatusFailed} {
		assert.True(t, ValidStatus(s), s)
	}
	assert.False(t, ValidStatus(""))
	assert.False(t, ValidStatus("OK"))
}

func TestPropertyListLimitAlwaysPositive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(-1000, 1000).Draw(t, "limit")
		got := listLimit(limit)
		if got < 1 {
			t.Fatalf("limit %d produced %d", limit, got)
		}
		if limit >= 1 && got != limit {
			t.Fatalf("positive limit %d changed to %d", limit, got)
		}
	})
}

func TestRecord_RejectsInvalidStatusBeforeQuerying(t *testing.T) {
	repo := NewRunRepository(nil)
	_, err := repo.Record(context.Background(), Run{Status: "done"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
