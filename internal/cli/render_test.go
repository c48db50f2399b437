package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"budgetview/internal/core"
	"budgetview/internal/firefly"
)

func TestCacheNotice(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		synced time.Time
		want   string
	}{
		{"unknown sync time", time.Time{}, "showing cached data"},
		{"minutes", now.Add(-5 * time.Minute), "showing cached data (synced 5 minutes ago)"},
		{"hours", now.Add(-3 * time.Hour), "showing cached data (synced 3 hours ago)"},
		{"days", now.Add(-72 * time.Hour), "showing cached data (synced 3 days ago)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cacheNotice(tt.synced, now))
		})
	}
}

func TestPrintCacheNotice_PlainWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	printCacheNotice(&buf, newStyles(&buf), now.Add(-2*time.Hour), true, now)

	assert.Equal(t, "\nshowing cached data (synced 2 hours ago)\ndata may be outdated\n", buf.String())
}

func TestMoney(t *testing.T) {
	assert.Equal(t, core.FormatMoney(core.Money{Cents: 123456}, "EUR"), money(firefly.Amount("1234.56"), "EUR"))
	assert.Equal(t, "n/a XYZ", money(firefly.Amount("n/a"), "XYZ"))
}

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	tbl := newTable(&buf, newStyles(&buf), "NAME", "TYPE")
	tbl.row("Checking", "asset")
	tbl.row("Cash", "cash")
	assert.NoError(t, tbl.flush())

	assert.Equal(t, "NAME      TYPE\nChecking  asset\nCash      cash\n", buf.String())
}
