package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/surfacemet/surfaced/internal/database"
	"github.com/surfacemet/surfaced/pkg/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// defaultScanWindow is the trailing span examined each cycle
	defaultScanWindow = 2*time.Hour + 30*time.Minute

	defaultHTTPTimeout = 60 * time.Second
)

// Client runs the configured prediction tasks against the external service
type Client struct {
	db     *gorm.DB
	url    string
	http   *http.Client
	logger *zap.SugaredLogger
}

func NewClient(db *gorm.DB, cfg *config.PredictionData, logger *zap.SugaredLogger) *Client {
	timeout := defaultHTTPTimeout
	if cfg.Timeout != "" {
		if parsed, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = parsed
		}
	}
	return &Client{
		db:     db,
		url:    cfg.URL,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// RunAll executes every configured prediction task over the trailing scan
// window. Task failures are contained: one broken task or an unreachable
// service never blocks the others.
func (c *Client) RunAll(ctx context.Context) error {
	var tasks []database.PredictionTask
	if err := c.db.WithContext(ctx).Find(&tasks).Error; err != nil {
		return fmt.Errorf("loading prediction tasks: %w", err)
	}

	end := time.Now().UTC()
	start := end.Add(-defaultScanWindow)

	for i := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.runTask(ctx, &tasks[i], start, end); err != nil {
			c.logger.Errorw("prediction task failed", "task", tasks[i].Name, "error", err)
		}
	}
	return nil
}

func (c *Client) runTask(ctx context.Context, task *database.PredictionTask, start, end time.Time) error {
	c.logger.Infow("running prediction task", "task", task.Name, "start", start, "end", end)

	var members []database.PredictionTaskStation
	err := c.db.WithContext(ctx).
		Where("prediction_task_id = ?", task.ID).
		Find(&members).Error
	if err != nil {
		return fmt.Errorf("loading neighborhood: %w", err)
	}
	stationIDs := make([]int, 0, len(members))
	for _, m := range members {
		stationIDs = append(stationIDs, m.StationID)
	}
	if len(stationIDs) == 0 {
		return fmt.Errorf("prediction task %q has an empty neighborhood", task.Name)
	}

	var mapping map[string]int16
	if err := task.ResultMapping.AssignTo(&mapping); err != nil {
		return fmt.Errorf("decoding result mapping: %w", err)
	}

	var readings []database.Reading
	err = c.db.WithContext(ctx).
		Where("station_id IN ? AND variable_id = ? AND datetime >= ? AND datetime <= ? AND measured <> ?",
			stationIDs, task.VariableID, start, end, database.MissingValue).
		Order("station_id, datetime").
		Find(&readings).Error
	if err != nil {
		return fmt.Errorf("loading readings: %w", err)
	}
	if len(readings) == 0 {
		return fmt.Errorf("no data found for window %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	rows := groupRows(accumulate(readings, task.DataPeriodMinutes, task.IntervalMinutes), stationIDs)
	if len(rows) == 0 {
		return fmt.Errorf("no complete windows for task %q in the scan window", task.Name)
	}

	results, abandoned, err := c.post(ctx, task.PredictionID, rows)
	if err != nil {
		return err
	}
	if abandoned {
		return nil
	}

	return c.writeback(ctx, task, mapping, results)
}

// serviceResult is one record of the prediction service's response
type serviceResult struct {
	Datetime   time.Time   `json:"datetime"`
	Prediction interface{} `json:"prediction"`
}

// post sends the feature rows and decodes the response. A non-200 reply is
// logged and abandons the cycle without error; the schedule is the retry.
func (c *Client) post(ctx context.Context, predictionID string, rows []RequestRow) ([]serviceResult, bool, error) {
	data := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		record := map[string]interface{}{
			"datetime": row.Datetime.Format(time.RFC3339),
			"avg":      row.Avg,
		}
		for stationID, value := range row.Values {
			record[strconv.Itoa(stationID)] = value
		}
		data = append(data, record)
	}

	body, err := json.Marshal(map[string]interface{}{
		"prediction_id": predictionID,
		"data":          data,
	})
	if err != nil {
		return nil, false, fmt.Errorf("encoding prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("building prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("calling prediction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Errorw("prediction service returned an error", "status", resp.StatusCode)
		return nil, true, nil
	}

	var results []serviceResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, false, fmt.Errorf("decoding prediction response: %w", err)
	}
	return results, false, nil
}

// writeback maps each returned prediction code through the task's result
// mapping and stamps the target station's readings. An unmapped code is a
// configuration error and aborts the whole writeback; a partial labelling
// would silently mix mapped and unmapped results.
func (c *Client) writeback(ctx context.Context, task *database.PredictionTask, mapping map[string]int16, results []serviceResult) error {
	type update struct {
		datetime time.Time
		flag     int16
	}
	updates := make([]update, 0, len(results))
	for _, r := range results {
		code := fmt.Sprintf("%v", r.Prediction)
		flag, ok := mapping[code]
		if !ok {
			return fmt.Errorf("invalid mapping for result %q on prediction %q", code, task.PredictionID)
		}
		updates = append(updates, update{datetime: r.Datetime, flag: flag})
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			err := tx.Model(&database.Reading{}).
				Where("station_id = ? AND variable_id = ? AND datetime = ?",
					task.TargetStationID, task.VariableID, u.datetime).
				Update("ml_flag", u.flag).Error
			if err != nil {
				return fmt.Errorf("labelling reading at %s: %w", u.datetime, err)
			}
		}
		return nil
	})
}
