package dcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/surfacemet/surfaced/internal/database"
)

func timePtr(t time.Time) *time.Time { return &t }
func intPtr(i int) *int              { return &i }

func TestEligible(t *testing.T) {
	// window closes at 06:10 UTC: transmission at 06:00 plus a 10 minute window
	device := func(last *time.Time) *database.DCPDevice {
		return &database.DCPDevice{
			DCPAddress:                "CE8AD2E2",
			FirstTransmissionSeconds:  6 * 3600,
			TransmissionWindowSeconds: 600,
			LastExecution:             last,
		}
	}
	day := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		now  time.Time
		want bool
	}{
		{"never executed", nil, day.Add(1 * time.Hour), true},
		{"window not yet closed", timePtr(day.Add(-12 * time.Hour)), day.Add(5 * time.Hour), false},
		{"due after window", timePtr(day.Add(-12 * time.Hour)), day.Add(7 * time.Hour), true},
		{"already ran today", timePtr(day.Add(8 * time.Hour)), day.Add(9 * time.Hour), false},
		{"exactly at window close", timePtr(day.Add(-12 * time.Hour)), day.Add(6*time.Hour + 10*time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligible(device(tt.last), tt.now))
		})
	}
}

func TestQueryWindowHours(t *testing.T) {
	now := time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		max  int
		want int
	}{
		{"no prior execution uses minimum", nil, 48, 3},
		{"recent execution clamps to minimum", timePtr(now.Add(-30 * time.Minute)), 48, 3},
		{"mid-range passes through", timePtr(now.Add(-10 * time.Hour)), 48, 10},
		{"stale execution clamps to max", timePtr(now.Add(-200 * time.Hour)), 48, 48},
		{"zero max falls back to default", timePtr(now.Add(-200 * time.Hour)), 0, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QueryWindowHours(tt.last, now, tt.max))
		})
	}
}

func TestCriteriaFileContent(t *testing.T) {
	got := CriteriaFileContent("CE8AD2E2", nil, 3)
	assert.Equal(t, "DRS_SINCE: now - 3 hour\nDRS_UNTIL: now\nDCP_ADDRESS: CE8AD2E2\n", got)

	got = CriteriaFileContent("CE8AD2E2", intPtr(75), 12)
	assert.Equal(t, "DRS_SINCE: now - 12 hour\nDRS_UNTIL: now\nDCP_ADDRESS: CE8AD2E2\nCHANNEL: |75\n", got)
}
