package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giveawaybot/internal/giveaway"
)

func TestPrintRecords(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := map[string]*giveaway.Record{
		"late":  {ID: "late", Prize: "Exoskeleton", WinnerCount: 1, EndTime: now.Add(2 * time.Hour).Unix()},
		"soon":  {ID: "soon", Prize: "Medkit", WinnerCount: 2, EndTime: now.Add(time.Minute).Unix(), Participants: []int64{1, 2}},
		"done":  {ID: "done", Prize: "Bread", WinnerCount: 1, EndTime: now.Add(-time.Hour).Unix(), Ended: true},
		"stale": {ID: "stale", Prize: "Vodka", WinnerCount: 1, EndTime: now.Add(-time.Minute).Unix()},
	}

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, records, now, false))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[1], "stale"))
	assert.Contains(t, lines[1], "overdue")
	assert.True(t, strings.HasPrefix(lines[2], "soon"))
	assert.Contains(t, lines[2], "Medkit")
	assert.True(t, strings.HasPrefix(lines[3], "late"))
	assert.Equal(t, "3 giveaway(s)", lines[4])

	buf.Reset()
	require.NoError(t, printRecords(&buf, records, now, true))
	assert.Contains(t, buf.String(), "ended")
	assert.Contains(t, buf.String(), "4 giveaway(s)")
}
