package database

// MissingValue is the sentinel value marking absent data in raw readings.
// Readings carrying it are excluded from every aggregate.
const MissingValue = -99.9

// Quality and manual flag codes for raw readings. A reading is accepted for
// aggregation when its manual flag is GOOD or ESTIMATED, or when no manual
// flag is set and its quality flag is GOOD or ESTIMATED.
const (
	FlagGood       int16 = 1
	FlagSuspicious int16 = 2
	FlagBad        int16 = 3
	FlagEstimated  int16 = 4
)

// QC test flag codes carried on the step and persistence columns. NEUTRAL
// means the test has no configured threshold for the (station, variable)
// pair and carries no description.
const (
	QCNeutral    int16 = 1
	QCSuspicious int16 = 2
	QCGood       int16 = 4
)

// StationDataFile processing statuses. Transitions are monotonic except
// REPROGRAM, which routes a finished file back through the scheduler.
const (
	StatusPending    int16 = 1
	StatusInProgress int16 = 2
	StatusDone       int16 = 3
	StatusError      int16 = 4
	StatusSkipped    int16 = 5
	StatusReprogram  int16 = 6
)

// Accepted reports whether a reading's flags admit it into aggregates.
func Accepted(manualFlag *int16, qualityFlag int16) bool {
	if manualFlag != nil {
		return *manualFlag == FlagGood || *manualFlag == FlagEstimated
	}
	return qualityFlag == FlagGood || qualityFlag == FlagEstimated
}
