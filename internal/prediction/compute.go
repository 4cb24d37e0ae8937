// Package prediction feeds windowed rainfall accumulations from a
// neighborhood of stations to an external ML service and writes the
// returned labels back onto the target station's raw readings.
package prediction

import (
	"sort"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
)

// windowValue is one station's accumulated value ending at Timestamp
type windowValue struct {
	Timestamp time.Time
	StationID int
	Acc       float64
}

// accumulate computes, per station, the rolling sum of the last
// interval/period readings ending at each reading. A window whose oldest
// member is a full interval or more behind its newest spans a gap and is
// discarded; leading readings without enough predecessors are likewise
// skipped. Readings must already exclude missing values.
func accumulate(readings []database.Reading, dataPeriodMinutes, intervalMinutes int) []windowValue {
	if dataPeriodMinutes <= 0 || intervalMinutes <= 0 {
		return nil
	}
	// number of rows preceding the current one in a full window
	frequency := intervalMinutes/dataPeriodMinutes - 1
	if frequency < 0 {
		frequency = 0
	}
	interval := time.Duration(intervalMinutes) * time.Minute

	byStation := make(map[int][]database.Reading)
	for _, r := range readings {
		byStation[r.StationID] = append(byStation[r.StationID], r)
	}

	var values []windowValue
	for stationID, series := range byStation {
		sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
		for i := frequency; i < len(series); i++ {
			earliest := series[i-frequency].Timestamp
			if series[i].Timestamp.Sub(earliest) >= interval {
				continue
			}
			acc := 0.0
			for j := i - frequency; j <= i; j++ {
				acc += series[j].Measured
			}
			values = append(values, windowValue{
				Timestamp: series[i].Timestamp,
				StationID: stationID,
				Acc:       acc,
			})
		}
	}

	sort.Slice(values, func(i, j int) bool {
		if !values[i].Timestamp.Equal(values[j].Timestamp) {
			return values[i].Timestamp.Before(values[j].Timestamp)
		}
		return values[i].StationID < values[j].StationID
	})
	return values
}

// RequestRow is one timestamp's feature vector: every neighborhood
// station's accumulation plus their average
type RequestRow struct {
	Datetime time.Time
	Values   map[int]float64
	Avg      float64
}

// groupRows assembles per-timestamp rows, keeping only timestamps where
// every neighborhood station contributed a value. The model needs the full
// feature vector; a partial row would skew the average.
func groupRows(values []windowValue, stationIDs []int) []RequestRow {
	byTime := make(map[time.Time]map[int]float64)
	for _, v := range values {
		cells, ok := byTime[v.Timestamp]
		if !ok {
			cells = make(map[int]float64)
			byTime[v.Timestamp] = cells
		}
		cells[v.StationID] = v.Acc
	}

	var rows []RequestRow
	for ts, cells := range byTime {
		complete := true
		for _, id := range stationIDs {
			if _, ok := cells[id]; !ok {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		sum := 0.0
		for _, v := range cells {
			sum += v
		}
		rows = append(rows, RequestRow{
			Datetime: ts,
			Values:   cells,
			Avg:      sum / float64(len(cells)),
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Datetime.Before(rows[j].Datetime) })
	return rows
}
