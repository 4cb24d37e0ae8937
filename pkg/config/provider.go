package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDatabaseConfig() (*DatabaseData, error)
	GetScheduleConfig() (*ScheduleData, error)

	// Configuration management (for future SQLite-specific operations)
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Database   DatabaseData    `json:"database"`
	Ingest     IngestData      `json:"ingest,omitempty"`
	Lightning  *LightningData  `json:"lightning,omitempty"`
	LRGS       *LRGSData       `json:"lrgs,omitempty"`
	Prediction *PredictionData `json:"prediction,omitempty"`
	Export     ExportData      `json:"export,omitempty"`
	Schedule   ScheduleData    `json:"schedule,omitempty"`
	LogFile    string          `json:"log_file,omitempty"`
}

// DatabaseData holds the TimescaleDB connection configuration
type DatabaseData struct {
	ConnectionString string `json:"connection_string"`
}

// IngestData holds configuration for file ingestion
type IngestData struct {
	SpoolDir       string `json:"spool_dir,omitempty"`
	DefaultDecoder string `json:"default_decoder,omitempty"`
}

// LightningData holds configuration for the lightning network feed
type LightningData struct {
	Hostname     string  `json:"hostname"`
	Port         string  `json:"port"`
	PartnerID    string  `json:"partner_id"`
	MinLatitude  float64 `json:"min_latitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

// LRGSData holds configuration for the DCP retrieval subprocess
type LRGSData struct {
	ExecutablePath   string `json:"executable_path"`
	Hostname         string `json:"hostname"`
	Port             string `json:"port"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	CriteriaFilePath string `json:"criteria_file_path"`
	MaxWindowHours   int    `json:"max_window_hours,omitempty"`
	CommandTimeout   string `json:"command_timeout,omitempty"`
}

// PredictionData holds configuration for the external prediction service
type PredictionData struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout,omitempty"`
}

// ExportData holds configuration for bulk data export artifacts
type ExportData struct {
	OutputDir    string `json:"output_dir,omitempty"`
	TimezoneName string `json:"timezone_name,omitempty"`
}

// ScheduleData holds the periodic trigger intervals for the worker jobs.
// Values are Go duration strings; empty values fall back to defaults. The
// FTP pull tick is not configurable: it is pinned to the one-minute
// granularity of the profile cron gates.
type ScheduleData struct {
	IngestInterval          string `json:"ingest_interval,omitempty"`
	SummaryBacklogInterval  string `json:"summary_backlog_interval,omitempty"`
	Last24hInterval         string `json:"last24h_interval,omitempty"`
	MinimumIntervalInterval string `json:"minimum_interval_interval,omitempty"`
	QCInterval              string `json:"qc_interval,omitempty"`
	PredictionInterval      string `json:"prediction_interval,omitempty"`
	DCPInterval             string `json:"dcp_interval,omitempty"`
	ExportInterval          string `json:"export_interval,omitempty"`
}
