package ftpingest

import (
	"time"

	"github.com/robfig/cron/v3"
)

// cronMatches reports whether a standard five-field cron expression fires
// within the minute containing now. The schedule's next activation after
// the instant just before the minute boundary lands exactly on the
// boundary iff the expression matches this minute.
func cronMatches(expr string, now time.Time) (bool, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return false, err
	}
	minute := now.Truncate(time.Minute)
	return schedule.Next(minute.Add(-time.Second)).Equal(minute), nil
}
