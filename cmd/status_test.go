package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/scholar-sites/sitesync/internal/model"
	"github.com/scholar-sites/sitesync/internal/profilesync"
)

func init() {
	// Replace global logger with a no-op to keep test output quiet.
	zap.ReplaceGlobals(zap.NewNop())
}

func TestFormatStatusEntries_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatStatusEntries(&buf, nil)

	assert.Contains(t, buf.String(), "no sync entries yet")
}

func TestFormatStatusEntries_SingleEntry(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	entries := []profilesync.Entry{
		{
			TenantID:  "t1",
			CatalogID: "A5023888391",
			Frequency: model.FrequencyWeekly,
			Status:    profilesync.StatusSuccess,
			Message:   "synced 142 works",
			Timestamp: ts,
		},
	}

	var buf bytes.Buffer
	formatStatusEntries(&buf, entries)

	output := buf.String()
	assert.Contains(t, output, "TENANT")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "t1")
	assert.Contains(t, output, "A5023888391")
	assert.Contains(t, output, "weekly")
	assert.Contains(t, output, "success")
	assert.Contains(t, output, "2026-03-01 10:30:00")
	assert.Contains(t, output, "synced 142 works")
}

func TestFormatStatusEntries_LongMessageTruncated(t *testing.T) {
	long := "catalog: unexpected status 500 from https://api.openalex.org/entities/A5023888391?select=everything"

	entries := []profilesync.Entry{
		{TenantID: "t1", Status: profilesync.StatusError, Message: long, Timestamp: time.Now()},
	}

	var buf bytes.Buffer
	formatStatusEntries(&buf, entries)

	assert.NotContains(t, buf.String(), long)
	assert.Contains(t, buf.String(), "...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "toolong...", truncate("toolong to fit", 10))
}
