// Package export produces CSV artifacts from the raw or summarized data
// of one station. The artifact carries a descriptive header block followed
// by a wide table: one row per local timestamp, one column per variable.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
)

// Data sources an artifact can draw from
const (
	SourceRaw    = "raw_data"
	SourceHourly = "hourly_summary"
	SourceDaily  = "daily_summary"
)

// SourceDescription returns the human-readable name used in the artifact
// header
func SourceDescription(source string) string {
	switch source {
	case SourceRaw:
		return "Raw data"
	case SourceHourly:
		return "Hourly summary"
	case SourceDaily:
		return "Daily summary"
	default:
		return source
	}
}

// DayChunks splits [start, end) at day boundaries relative to start, so
// each query stays bounded no matter the requested range. The final chunk
// absorbs any partial day.
func DayChunks(start, end time.Time) [][2]time.Time {
	if !start.Before(end) {
		return nil
	}
	bounds := []time.Time{start}
	cur := start
	for cur.Before(end) && cur.Add(24*time.Hour).Before(end) {
		cur = cur.Add(24 * time.Hour)
		bounds = append(bounds, cur)
	}
	bounds = append(bounds, end)

	chunks := make([][2]time.Time, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		chunks = append(chunks, [2]time.Time{bounds[i], bounds[i+1]})
	}
	return chunks
}

// SummaryValue selects the summary column matching the variable's sampling
// operation: 1,2 average, 3 minimum, 4 maximum, anything else sum
func SummaryValue(samplingOperationID int16, minValue, maxValue, avgValue, sumValue float64) float64 {
	switch samplingOperationID {
	case 1, 2:
		return avgValue
	case 3:
		return minValue
	case 4:
		return maxValue
	default:
		return sumValue
	}
}

// DenseFill adds one missing-value point per variable for every cadence
// step in [start, end) that has no point, so reception gaps in raw exports
// appear as explicit MISSING cells instead of silently absent timestamps.
// Off-cadence points are kept. A non-positive interval disables filling.
func DenseFill(points []Point, start, end time.Time, intervalSeconds int, variableIDs []int) []Point {
	if intervalSeconds <= 0 || !start.Before(end) {
		return points
	}

	present := make(map[time.Time]map[int]bool)
	for _, p := range points {
		cells, ok := present[p.Local]
		if !ok {
			cells = make(map[int]bool)
			present[p.Local] = cells
		}
		cells[p.VariableID] = true
	}

	step := time.Duration(intervalSeconds) * time.Second
	for ts := start; ts.Before(end); ts = ts.Add(step) {
		for _, varID := range variableIDs {
			if !present[ts][varID] {
				points = append(points, Point{Local: ts, VariableID: varID, Value: database.MissingValue})
			}
		}
	}
	return points
}

// VariableLabel builds the column description: "SYM - Name (unit)", the
// unit omitted when the variable has none
func VariableLabel(v *database.Variable) string {
	if v.UnitSymbol != "" {
		return fmt.Sprintf("%s - %s (%s)", v.Symbol, v.Name, v.UnitSymbol)
	}
	return fmt.Sprintf("%s - %s", v.Symbol, v.Name)
}

// Point is one (timestamp, variable, value) cell before pivoting. The
// timestamp is already in station-local time.
type Point struct {
	Local      time.Time
	VariableID int
	Value      float64
}

// Pivot turns the long-form points into wide CSV rows: Year, Month, Day,
// Time, then one value column per variable in the given order. Timestamps
// are emitted in ascending order; missing cells stay empty.
func Pivot(points []Point, variableOrder []int) [][]string {
	byTime := make(map[time.Time]map[int]float64)
	for _, p := range points {
		cells, ok := byTime[p.Local]
		if !ok {
			cells = make(map[int]float64)
			byTime[p.Local] = cells
		}
		cells[p.VariableID] = p.Value
	}

	times := make([]time.Time, 0, len(byTime))
	for ts := range byTime {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	rows := make([][]string, 0, len(times))
	for _, ts := range times {
		row := []string{
			ts.Format("2006"),
			ts.Format("01"),
			ts.Format("02"),
			ts.Format("15:04:05"),
		}
		for _, varID := range variableOrder {
			if v, ok := byTime[ts][varID]; ok {
				row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return rows
}
