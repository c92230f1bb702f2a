package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTenantStatusServes(t *testing.T) {
	assert.True(t, TenantStatusActive.Serves())
	assert.True(t, TenantStatusPending.Serves())
	assert.False(t, TenantStatusSuspended.Serves())
	assert.False(t, TenantStatusCancelled.Serves())
}

func TestSyncFrequencyInterval(t *testing.T) {
	assert.Equal(t, 24*time.Hour, FrequencyDaily.Interval())
	assert.Equal(t, 7*24*time.Hour, FrequencyWeekly.Interval())
	assert.Equal(t, 30*24*time.Hour, FrequencyMonthly.Interval())

	// Unknown tiers fall back to the monthly interval.
	assert.Equal(t, 30*24*time.Hour, SyncFrequency("hourly").Interval())
	assert.Equal(t, 30*24*time.Hour, SyncFrequency("").Interval())
}

func TestParseFrequency(t *testing.T) {
	assert.Equal(t, FrequencyDaily, ParseFrequency("daily"))
	assert.Equal(t, FrequencyWeekly, ParseFrequency("weekly"))
	assert.Equal(t, FrequencyMonthly, ParseFrequency("monthly"))
	assert.Equal(t, FrequencyMonthly, ParseFrequency("yearly"))
	assert.Equal(t, FrequencyMonthly, ParseFrequency(""))
}
