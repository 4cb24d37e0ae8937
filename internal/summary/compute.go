// Package summary computes hourly, daily, rolling-24h and minimum-interval
// aggregates over raw readings. Bucketing and aggregation are pure functions
// over fetched readings; persistence is transactional delete-then-insert or
// upsert on the natural key, so every job is re-entrant.
package summary

import (
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"gonum.org/v1/gonum/stat"
)

// Aggregate holds the five standard aggregate values for one group
type Aggregate struct {
	Min   float64
	Max   float64
	Avg   float64
	Sum   float64
	Count int
}

// aggregate computes the standard aggregates over a non-empty value slice
func aggregate(values []float64) Aggregate {
	agg := Aggregate{
		Min: values[0],
		Max: values[0],
	}
	for _, v := range values {
		if v < agg.Min {
			agg.Min = v
		}
		if v > agg.Max {
			agg.Max = v
		}
		agg.Sum += v
	}
	agg.Avg = stat.Mean(values, nil)
	agg.Count = len(values)
	return agg
}

// usable reports whether a reading participates in aggregation: accepted
// flags and a calculated value different from the missing-data sentinel.
func usable(r *database.Reading) bool {
	return r.Accepted() && r.Value() != database.MissingValue
}

// hourBucket assigns a reading to its hour bucket. Sub-daily readings
// landing exactly on an hour boundary belong to the previous hour, so the
// timestamp is shifted back one second before truncation; daily readings
// truncate plainly.
func hourBucket(ts time.Time, isDaily bool) time.Time {
	if isDaily {
		return ts.Truncate(time.Hour)
	}
	return ts.Add(-time.Second).Truncate(time.Hour)
}

// localDay assigns a reading to its station-local calendar day for the
// given fixed UTC offset. The boundary rule matches hourBucket: a sub-daily
// reading at exactly local midnight belongs to the previous day.
func localDay(ts time.Time, utcOffsetMinutes int, isDaily bool) time.Time {
	local := ts.Add(time.Duration(utcOffsetMinutes) * time.Minute)
	if !isDaily {
		local = local.Add(-time.Second)
	}
	return local.UTC().Truncate(24 * time.Hour)
}

// groupKey identifies one aggregation group
type groupKey struct {
	Period     time.Time
	StationID  int
	VariableID int
}

// bucketReadings groups usable readings by (bucket, station, variable)
// using the supplied bucketing function
func bucketReadings(readings []database.Reading, bucket func(r *database.Reading) time.Time) map[groupKey][]float64 {
	groups := make(map[groupKey][]float64)
	for i := range readings {
		r := &readings[i]
		if !usable(r) {
			continue
		}
		key := groupKey{
			Period:     bucket(r),
			StationID:  r.StationID,
			VariableID: r.VariableID,
		}
		groups[key] = append(groups[key], r.Value())
	}
	return groups
}

// pairKey identifies a (station, variable) pair
type pairKey struct {
	StationID  int
	VariableID int
}

// IntervalStats describes the observed record density for one pair on one day
type IntervalStats struct {
	MinimumIntervalSec    float64
	RecordCount           int
	IdealRecordCount      float64
	RecordCountPercentage float64
}

const daySeconds = 24 * 60 * 60

// intervalStats computes the minimum look-ahead spacing between consecutive
// readings, the ideal record count a full day of that spacing would yield,
// and the achieved percentage. Daily readings span a fixed 24-hour interval.
// The readings must be ordered by timestamp and belong to one pair.
func intervalStats(readings []database.Reading) IntervalStats {
	st := IntervalStats{RecordCount: len(readings)}
	if len(readings) == 0 {
		return st
	}

	minInterval := 0.0
	for i := range readings {
		var interval float64
		if readings[i].IsDaily {
			interval = daySeconds
		} else if i+1 < len(readings) {
			interval = readings[i+1].Timestamp.Sub(readings[i].Timestamp).Seconds()
		} else {
			continue
		}
		if minInterval == 0 || interval < minInterval {
			minInterval = interval
		}
	}

	if minInterval <= 0 {
		return st
	}

	st.MinimumIntervalSec = minInterval
	st.IdealRecordCount = daySeconds / minInterval
	st.RecordCountPercentage = float64(st.RecordCount) / st.IdealRecordCount * 100
	return st
}
