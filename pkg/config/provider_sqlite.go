package config

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from the SQLite database.
// Settings live in a single key-value table so the same database can be
// edited by external tooling without schema knowledge.
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	settings, err := s.loadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	config := &ConfigData{
		Database: DatabaseData{ConnectionString: settings["database.connection_string"]},
		Ingest: IngestData{
			SpoolDir:       settings["ingest.spool_dir"],
			DefaultDecoder: settings["ingest.default_decoder"],
		},
		Export: ExportData{
			OutputDir:    settings["export.output_dir"],
			TimezoneName: settings["export.timezone_name"],
		},
		Schedule: ScheduleData{
			IngestInterval:          settings["schedule.ingest_interval"],
			SummaryBacklogInterval:  settings["schedule.summary_backlog_interval"],
			Last24hInterval:         settings["schedule.last24h_interval"],
			MinimumIntervalInterval: settings["schedule.minimum_interval_interval"],
			QCInterval:              settings["schedule.qc_interval"],
			PredictionInterval:      settings["schedule.prediction_interval"],
			DCPInterval:             settings["schedule.dcp_interval"],
			ExportInterval:          settings["schedule.export_interval"],
		},
		LogFile: settings["log_file"],
	}

	if settings["lightning.hostname"] != "" {
		config.Lightning = &LightningData{
			Hostname:     settings["lightning.hostname"],
			Port:         settings["lightning.port"],
			PartnerID:    settings["lightning.partner_id"],
			MinLatitude:  parseFloat(settings["lightning.min_latitude"]),
			MaxLatitude:  parseFloat(settings["lightning.max_latitude"]),
			MinLongitude: parseFloat(settings["lightning.min_longitude"]),
			MaxLongitude: parseFloat(settings["lightning.max_longitude"]),
		}
	}

	if settings["lrgs.executable_path"] != "" {
		config.LRGS = &LRGSData{
			ExecutablePath:   settings["lrgs.executable_path"],
			Hostname:         settings["lrgs.hostname"],
			Port:             settings["lrgs.port"],
			Username:         settings["lrgs.username"],
			Password:         settings["lrgs.password"],
			CriteriaFilePath: settings["lrgs.criteria_file_path"],
			MaxWindowHours:   parseInt(settings["lrgs.max_window_hours"]),
			CommandTimeout:   settings["lrgs.command_timeout"],
		}
	}

	if settings["prediction.url"] != "" {
		config.Prediction = &PredictionData{
			URL:     settings["prediction.url"],
			Timeout: settings["prediction.timeout"],
		}
	}

	return config, nil
}

func (s *SQLiteProvider) loadSettings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// GetDatabaseConfig returns the database configuration section
func (s *SQLiteProvider) GetDatabaseConfig() (*DatabaseData, error) {
	cfg, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

// GetScheduleConfig returns the job schedule configuration section
func (s *SQLiteProvider) GetScheduleConfig() (*ScheduleData, error) {
	cfg, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &cfg.Schedule, nil
}

// IsReadOnly returns false: SQLite configuration can be modified at runtime
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the underlying database handle
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

func parseFloat(v string) float64 {
	var f float64
	fmt.Sscanf(v, "%g", &f)
	return f
}

func parseInt(v string) int {
	var i int
	fmt.Sscanf(v, "%d", &i)
	return i
}
