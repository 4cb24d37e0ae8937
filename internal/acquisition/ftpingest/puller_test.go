package ftpingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronMatches(t *testing.T) {
	tests := []struct {
		name string
		expr string
		now  time.Time
		want bool
	}{
		{"every minute", "* * * * *", time.Date(2023, 6, 15, 10, 37, 12, 0, time.UTC), true},
		{"top of hour hit", "0 * * * *", time.Date(2023, 6, 15, 10, 0, 45, 0, time.UTC), true},
		{"top of hour miss", "0 * * * *", time.Date(2023, 6, 15, 10, 1, 0, 0, time.UTC), false},
		{"every 15 min hit", "*/15 * * * *", time.Date(2023, 6, 15, 10, 45, 0, 0, time.UTC), true},
		{"every 15 min miss", "*/15 * * * *", time.Date(2023, 6, 15, 10, 50, 0, 0, time.UTC), false},
		{"specific daily hit", "30 6 * * *", time.Date(2023, 6, 15, 6, 30, 59, 0, time.UTC), true},
		{"specific daily miss", "30 6 * * *", time.Date(2023, 6, 15, 7, 30, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cronMatches(tt.expr, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCronMatchesInvalidExpression(t *testing.T) {
	_, err := cronMatches("not a cron line", time.Now())
	assert.Error(t, err)
}

func TestSpoolPath(t *testing.T) {
	now := time.Date(2023, 6, 5, 14, 30, 25, 0, time.UTC)
	got := SpoolPath("/var/spool/surfaced", "TOA5", "PHILIP-GOLDSON", "station5min.dat", now)
	want := filepath.Join("/var/spool/surfaced", "TOA5", "PHILIP-GOLDSON", "2023", "06", "05", "20230605143025_station5min.dat")
	assert.Equal(t, want, got)
}
