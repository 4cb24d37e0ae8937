package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const timestampLayout = "2006-01-02 15:04:05"

// CSVDecoder ingests logger CSV files in the TOA5 family: an optional
// environment line, a column-name header, optional unit and aggregation
// rows, then data rows whose first column is a station-local timestamp.
// Columns are matched to variables by symbol; unmatched columns are
// ignored. Each ingested reading enqueues summary recomputation for its
// hour and local day.
type CSVDecoder struct {
	db      *gorm.DB
	logger  *zap.SugaredLogger
	isDaily bool
}

func NewCSVDecoder(db *gorm.DB, logger *zap.SugaredLogger, isDaily bool) *CSVDecoder {
	return &CSVDecoder{
		db:      db,
		logger:  logger,
		isDaily: isDaily,
	}
}

func (d *CSVDecoder) Decode(ctx context.Context, path string, stationID int, utcOffsetMinutes int, overrideOnConflict bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	variables, err := d.variablesBySymbol(ctx)
	if err != nil {
		return err
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	columns, err := readHeader(reader)
	if err != nil {
		return err
	}

	columnVariable := make(map[int]int)
	for i, name := range columns {
		upper := strings.ToUpper(strings.TrimSpace(name))
		if i == 0 || upper == "TIMESTAMP" || upper == "RECORD" {
			continue
		}
		if id, ok := variables[upper]; ok {
			columnVariable[i] = id
		}
	}
	if len(columnVariable) == 0 {
		return fmt.Errorf("no columns in %s match a registered variable", path)
	}

	offset := time.Duration(utcOffsetMinutes) * time.Minute
	var readings []database.Reading

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading data row: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		local, err := time.Parse(timestampLayout, strings.Trim(record[0], `" `))
		if err != nil {
			return fmt.Errorf("parsing timestamp %q: %w", record[0], err)
		}
		utc := local.Add(-offset).UTC()

		for col, variableID := range columnVariable {
			if col >= len(record) {
				continue
			}
			raw := strings.TrimSpace(record[col])
			if raw == "" || strings.EqualFold(raw, "NAN") {
				continue
			}
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("parsing value %q for column %d: %w", raw, col, err)
			}
			readings = append(readings, database.Reading{
				StationID:   stationID,
				VariableID:  variableID,
				Timestamp:   utc,
				Measured:    value,
				QualityFlag: database.FlagGood,
				IsDaily:     d.isDaily,
			})
		}
	}

	if len(readings) == 0 {
		return fmt.Errorf("no readings decoded from %s", path)
	}
	return d.store(ctx, readings, stationID, offset, overrideOnConflict)
}

func (d *CSVDecoder) variablesBySymbol(ctx context.Context) (map[string]int, error) {
	var variables []database.Variable
	if err := d.db.WithContext(ctx).Find(&variables).Error; err != nil {
		return nil, fmt.Errorf("loading variables: %w", err)
	}
	bySymbol := make(map[string]int, len(variables))
	for _, v := range variables {
		bySymbol[strings.ToUpper(v.Symbol)] = v.ID
	}
	return bySymbol, nil
}

// store inserts the readings and enqueues summary recomputation for every
// touched hour and local day. On conflict an existing reading wins unless
// the job asked for an override.
func (d *CSVDecoder) store(ctx context.Context, readings []database.Reading, stationID int, offset time.Duration, overrideOnConflict bool) error {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "station_id"}, {Name: "variable_id"}, {Name: "datetime"}},
		DoNothing: true,
	}
	if overrideOnConflict {
		conflict.DoNothing = false
		conflict.DoUpdates = clause.AssignmentColumns([]string{"measured", "is_daily"})
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(conflict).CreateInBatches(readings, 500).Error; err != nil {
			return fmt.Errorf("storing readings: %w", err)
		}

		hours := make(map[time.Time]bool)
		days := make(map[time.Time]bool)
		for _, r := range readings {
			hours[r.Timestamp.Truncate(time.Hour)] = true
			local := r.Timestamp.Add(offset)
			days[time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)] = true
		}

		for hour := range hours {
			task := database.HourlySummaryTask{Datetime: hour, StationID: stationID}
			if err := tx.Create(&task).Error; err != nil {
				return fmt.Errorf("enqueueing hourly summary task: %w", err)
			}
		}
		for day := range days {
			task := database.DailySummaryTask{Date: day, StationID: stationID}
			if err := tx.Create(&task).Error; err != nil {
				return fmt.Errorf("enqueueing daily summary task: %w", err)
			}
		}
		return nil
	})
}

// readHeader consumes the TOA5 preamble if present and returns the column
// names. Files may start directly with the header row.
func readHeader(reader *csv.Reader) ([]string, error) {
	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if len(first) > 0 && strings.EqualFold(strings.Trim(first[0], `" `), "TOA5") {
		// environment line; the next row carries the column names, followed
		// by unit and aggregation rows
		columns, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("reading column header: %w", err)
		}
		for i := 0; i < 2; i++ {
			if _, err := reader.Read(); err != nil && err != io.EOF {
				return nil, fmt.Errorf("reading header preamble: %w", err)
			}
		}
		return columns, nil
	}
	return first, nil
}
