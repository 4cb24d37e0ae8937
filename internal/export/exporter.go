package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/surfacemet/surfaced/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Exporter materializes DataFile records into CSV artifacts
type Exporter struct {
	db        *gorm.DB
	outputDir string
	location  *time.Location
	logger    *zap.SugaredLogger
}

func NewExporter(db *gorm.DB, outputDir string, location *time.Location, logger *zap.SugaredLogger) *Exporter {
	if location == nil {
		location = time.UTC
	}
	return &Exporter{
		db:        db,
		outputDir: outputDir,
		location:  location,
		logger:    logger,
	}
}

// RunPending materializes every requested artifact that has not been
// attempted yet. A row is a request until ready_at is stamped; both
// success and failure stamp it, so one request gets one attempt.
func (e *Exporter) RunPending(ctx context.Context) error {
	var pending []database.DataFile
	err := e.db.WithContext(ctx).
		Where("ready = ? AND ready_at IS NULL", false).
		Order("created_at").
		Find(&pending).Error
	if err != nil {
		return fmt.Errorf("loading pending export requests: %w", err)
	}

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		req := &pending[i]
		if err := e.Run(ctx, req.ID, req.StartDate, req.EndDate); err != nil {
			e.logger.Errorw("export request failed", "file", req.ID, "error", err)
		}
	}
	return nil
}

// Run builds the artifact for one DataFile over [start, end). Any failure
// marks the record not-ready with zero lines; the record's status is the
// only failure signal a consumer sees.
func (e *Exporter) Run(ctx context.Context, fileID uuid.UUID, start, end time.Time) error {
	e.logger.Infow("exporting data file", "file", fileID)

	var dataFile database.DataFile
	if err := e.db.WithContext(ctx).First(&dataFile, "id = ?", fileID).Error; err != nil {
		return fmt.Errorf("loading data file %s: %w", fileID, err)
	}

	if err := e.export(ctx, &dataFile, start, end); err != nil {
		e.logger.Errorw("export failed", "file", fileID, "error", err)
		e.markOutcome(ctx, &dataFile, false, 0)
		return err
	}
	return nil
}

func (e *Exporter) export(ctx context.Context, dataFile *database.DataFile, start, end time.Time) error {
	var station database.Station
	if err := e.db.WithContext(ctx).First(&station, dataFile.StationID).Error; err != nil {
		return fmt.Errorf("loading station: %w", err)
	}

	var variableIDs []int
	if err := dataFile.VariableIDs.AssignTo(&variableIDs); err != nil {
		return fmt.Errorf("decoding variable selection: %w", err)
	}

	var variables []database.Variable
	err := e.db.WithContext(ctx).
		Where("id IN ?", variableIDs).
		Order("name").
		Find(&variables).Error
	if err != nil {
		return fmt.Errorf("loading variables: %w", err)
	}

	points, err := e.collect(ctx, dataFile, &station, variableIDs, variables, start, end)
	if err != nil {
		return err
	}

	order := make([]int, len(variables))
	labels := make([]string, len(variables))
	for i := range variables {
		order[i] = variables[i].ID
		labels[i] = VariableLabel(&variables[i])
	}

	rows := Pivot(points, order)
	path := filepath.Join(e.outputDir, fmt.Sprintf("%s.csv", dataFile.ID))
	if err := e.writeArtifact(path, dataFile, &station, labels, rows, start, end); err != nil {
		return err
	}

	e.markOutcome(ctx, dataFile, true, len(rows))
	e.logger.Infow("data exported", "file", dataFile.ID, "path", path, "lines", len(rows))
	return nil
}

// collect gathers the long-form points for the artifact, querying one day
// chunk at a time so a multi-year request never materializes in a single
// query.
func (e *Exporter) collect(ctx context.Context, dataFile *database.DataFile, station *database.Station, variableIDs []int, variables []database.Variable, start, end time.Time) ([]Point, error) {
	opByVariable := make(map[int]int16, len(variables))
	for _, v := range variables {
		opByVariable[v.ID] = v.SamplingOperationID
	}
	offset := time.Duration(station.UTCOffsetMinutes) * time.Minute

	var points []Point
	for _, chunk := range DayChunks(start, end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch dataFile.Source {
		case SourceRaw:
			var readings []database.Reading
			err := e.db.WithContext(ctx).
				Where("station_id = ? AND variable_id IN ? AND datetime >= ? AND datetime < ?",
					station.ID, variableIDs, chunk[0], chunk[1]).
				Find(&readings).Error
			if err != nil {
				return nil, fmt.Errorf("querying raw data: %w", err)
			}
			chunkPoints := make([]Point, 0, len(readings))
			for _, r := range readings {
				chunkPoints = append(chunkPoints, Point{
					Local:      r.Timestamp.Add(offset).UTC(),
					VariableID: r.VariableID,
					Value:      r.Measured,
				})
			}
			// raw artifacts materialize the request's cadence, so a
			// reception gap exports as a MISSING row
			chunkPoints = DenseFill(chunkPoints,
				chunk[0].Add(offset).UTC(), chunk[1].Add(offset).UTC(),
				dataFile.IntervalSeconds, variableIDs)
			points = append(points, chunkPoints...)

		case SourceHourly:
			var summaries []database.HourlySummary
			err := e.db.WithContext(ctx).
				Where("station_id = ? AND variable_id IN ? AND datetime >= ? AND datetime < ?",
					station.ID, variableIDs, chunk[0], chunk[1]).
				Find(&summaries).Error
			if err != nil {
				return nil, fmt.Errorf("querying hourly summary: %w", err)
			}
			for _, s := range summaries {
				points = append(points, Point{
					Local:      s.Datetime.Add(offset).UTC(),
					VariableID: s.VariableID,
					Value:      SummaryValue(opByVariable[s.VariableID], s.MinValue, s.MaxValue, s.AvgValue, s.SumValue),
				})
			}

		case SourceDaily:
			var summaries []database.DailySummary
			err := e.db.WithContext(ctx).
				Where("station_id = ? AND variable_id IN ? AND day >= ? AND day < ?",
					station.ID, variableIDs, chunk[0], chunk[1]).
				Find(&summaries).Error
			if err != nil {
				return nil, fmt.Errorf("querying daily summary: %w", err)
			}
			for _, s := range summaries {
				points = append(points, Point{
					Local:      s.Day,
					VariableID: s.VariableID,
					Value:      SummaryValue(opByVariable[s.VariableID], s.MinValue, s.MaxValue, s.AvgValue, s.SumValue),
				})
			}

		default:
			return nil, fmt.Errorf("unknown export source %q", dataFile.Source)
		}
	}
	return points, nil
}

// writeArtifact writes the header block, a blank line, the column header
// and the data rows
func (e *Exporter) writeArtifact(path string, dataFile *database.DataFile, station *database.Station, labels []string, rows [][]string, start, end time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating artifact: %w", err)
	}
	defer f.Close()

	description := ""
	for _, label := range labels {
		description += label + "   "
	}

	w := csv.NewWriter(f)
	header := [][]string{
		{"Station:", fmt.Sprintf("%s - %s", station.Code, station.Name)},
		{"Data source:", SourceDescription(dataFile.Source)},
		{"Description:", description},
		{"Latitude:", fmt.Sprintf("%v", station.Latitude)},
		{"Longitude:", fmt.Sprintf("%v", station.Longitude)},
		{"Date of completion:", time.Now().UTC().Format("2006-01-02 15:04:05")},
		{"Prepared by:", dataFile.PreparedBy},
		{"Start date:", start.In(e.location).Format("2006-01-02 15:04:05"), "End date:", end.In(e.location).Format("2006-01-02 15:04:05")},
		{},
	}
	for _, record := range header {
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing artifact header: %w", err)
		}
	}

	columns := append([]string{"Year", "Month", "Day", "Time"}, labels...)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("writing column header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing artifact row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func (e *Exporter) markOutcome(ctx context.Context, dataFile *database.DataFile, ready bool, lines int) {
	now := time.Now().UTC()
	err := e.db.WithContext(ctx).Model(dataFile).
		Updates(map[string]interface{}{
			"ready":    ready,
			"ready_at": now,
			"lines":    lines,
		}).Error
	if err != nil {
		e.logger.Errorw("failed to record export outcome", "file", dataFile.ID, "error", err)
	}
}
