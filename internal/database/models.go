package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
)

// Station represents an observing station in the network
type Station struct {
	ID               int     `gorm:"primaryKey;column:id"`
	Code             string  `gorm:"column:code;not null;unique"`
	Name             string  `gorm:"column:name;not null"`
	Latitude         float64 `gorm:"column:latitude"`
	Longitude        float64 `gorm:"column:longitude"`
	UTCOffsetMinutes int     `gorm:"column:utc_offset_minutes;not null"`
	IsActive         bool    `gorm:"column:is_active;default:true"`
}

func (Station) TableName() string {
	return "stations"
}

// Variable represents a measured quantity (air temperature, rainfall, ...)
type Variable struct {
	ID int `gorm:"primaryKey;column:id"`
	// Symbol is the short form used in export column headers
	Symbol     string `gorm:"column:symbol;not null"`
	Name       string `gorm:"column:name;not null"`
	UnitSymbol string `gorm:"column:unit_symbol"`
	// SamplingOperationID selects the summary column used when exporting
	// aggregated sources: 1,2 = avg, 3 = min, 4 = max, 6 = sum
	SamplingOperationID int16 `gorm:"column:sampling_operation_id"`
}

func (Variable) TableName() string {
	return "variables"
}

// StationVariable holds per-(station, variable) QC configuration. A nil
// threshold disables the corresponding test for the pair.
type StationVariable struct {
	ID                      int      `gorm:"primaryKey;autoIncrement;column:id"`
	StationID               int      `gorm:"column:station_id;uniqueIndex:idx_station_variable;not null"`
	VariableID              int      `gorm:"column:variable_id;uniqueIndex:idx_station_variable;not null"`
	TestStepValue           *float64 `gorm:"column:test_step_value"`
	TestPersistenceVariance *float64 `gorm:"column:test_persistence_variance"`
}

func (StationVariable) TableName() string {
	return "station_variables"
}

// Reading is a raw time-series observation. Consisted, when present,
// supersedes Measured everywhere a value is derived.
type Reading struct {
	StationID   int       `gorm:"primaryKey;column:station_id"`
	VariableID  int       `gorm:"primaryKey;column:variable_id"`
	Timestamp   time.Time `gorm:"primaryKey;column:datetime"`
	Measured    float64   `gorm:"column:measured"`
	Consisted   *float64  `gorm:"column:consisted"`
	ManualFlag  *int16    `gorm:"column:manual_flag"`
	QualityFlag int16     `gorm:"column:quality_flag"`
	MLFlag      *int16    `gorm:"column:ml_flag"`
	IsDaily     bool      `gorm:"column:is_daily;default:false"`

	QCStepFlag           int16  `gorm:"column:qc_step_quality_flag;default:1"`
	QCStepDescription    string `gorm:"column:qc_step_description"`
	QCPersistFlag        int16  `gorm:"column:qc_persist_quality_flag;default:1"`
	QCPersistDescription string `gorm:"column:qc_persist_description"`
}

func (Reading) TableName() string {
	return "raw_data"
}

// Value returns the calculated value: Consisted when set, Measured otherwise.
func (r *Reading) Value() float64 {
	if r.Consisted != nil {
		return *r.Consisted
	}
	return r.Measured
}

// Accepted reports whether the reading's flags admit it into aggregates.
func (r *Reading) Accepted() bool {
	return Accepted(r.ManualFlag, r.QualityFlag)
}

// HourlySummary is one aggregated hour for a (station, variable) pair
type HourlySummary struct {
	Datetime   time.Time `gorm:"primaryKey;column:datetime"`
	StationID  int       `gorm:"primaryKey;column:station_id"`
	VariableID int       `gorm:"primaryKey;column:variable_id"`
	MinValue   float64   `gorm:"column:min_value"`
	MaxValue   float64   `gorm:"column:max_value"`
	AvgValue   float64   `gorm:"column:avg_value"`
	SumValue   float64   `gorm:"column:sum_value"`
	NumRecords int       `gorm:"column:num_records"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (HourlySummary) TableName() string {
	return "hourly_summary"
}

// DailySummary is one aggregated station-local day for a (station, variable) pair
type DailySummary struct {
	Day        time.Time `gorm:"primaryKey;column:day"`
	StationID  int       `gorm:"primaryKey;column:station_id"`
	VariableID int       `gorm:"primaryKey;column:variable_id"`
	MinValue   float64   `gorm:"column:min_value"`
	MaxValue   float64   `gorm:"column:max_value"`
	AvgValue   float64   `gorm:"column:avg_value"`
	SumValue   float64   `gorm:"column:sum_value"`
	NumRecords int       `gorm:"column:num_records"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (DailySummary) TableName() string {
	return "daily_summary"
}

// Last24hSummary is the rolling 24-hour aggregate plus the most recent
// accepted value, one row per (station, variable)
type Last24hSummary struct {
	Datetime    time.Time `gorm:"column:datetime"`
	StationID   int       `gorm:"primaryKey;column:station_id"`
	VariableID  int       `gorm:"primaryKey;column:variable_id"`
	MinValue    float64   `gorm:"column:min_value"`
	MaxValue    float64   `gorm:"column:max_value"`
	AvgValue    float64   `gorm:"column:avg_value"`
	SumValue    float64   `gorm:"column:sum_value"`
	NumRecords  int       `gorm:"column:num_records"`
	LatestValue float64   `gorm:"column:latest_value"`
}

func (Last24hSummary) TableName() string {
	return "last24h_summary"
}

// StationDataInterval records the minimum observed spacing between
// consecutive readings for a (day, station, variable), used to estimate
// expected record density
type StationDataInterval struct {
	Day                   time.Time `gorm:"primaryKey;column:datetime"`
	StationID             int       `gorm:"primaryKey;column:station_id"`
	VariableID            int       `gorm:"primaryKey;column:variable_id"`
	MinimumIntervalSec    float64   `gorm:"column:minimum_interval_seconds"`
	RecordCount           int       `gorm:"column:record_count"`
	IdealRecordCount      float64   `gorm:"column:ideal_record_count"`
	RecordCountPercentage float64   `gorm:"column:record_count_percentage"`
	CreatedAt             time.Time `gorm:"column:created_at"`
	UpdatedAt             time.Time `gorm:"column:updated_at"`
}

func (StationDataInterval) TableName() string {
	return "station_data_minimum_interval"
}

// StationDataFile is a file ingestion job. Status transitions are driven by
// the ingestion scheduler; Observation holds the truncated diagnostic text
// for failed attempts.
type StationDataFile struct {
	ID                 int       `gorm:"primaryKey;autoIncrement;column:id"`
	StationID          int       `gorm:"column:station_id;not null"`
	DecoderName        string    `gorm:"column:decoder_name"`
	UTCOffsetMinutes   int       `gorm:"column:utc_offset_minutes"`
	Filepath           string    `gorm:"column:filepath;not null"`
	FileHash           string    `gorm:"column:file_hash;index"`
	FileSize           int64     `gorm:"column:file_size"`
	IsHistorical       bool      `gorm:"column:is_historical_data;default:false"`
	OverrideOnConflict bool      `gorm:"column:override_data_on_conflict;default:false"`
	Status             int16     `gorm:"column:status;default:1;index"`
	Observation        string    `gorm:"column:observation"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (StationDataFile) TableName() string {
	return "station_data_files"
}

// FlashEvent is one lightning strike accepted from the network feed
type FlashEvent struct {
	ID        int       `gorm:"primaryKey;autoIncrement;column:id"`
	Timestamp time.Time `gorm:"column:datetime;index;not null"`
	Latitude  float64   `gorm:"column:latitude"`
	Longitude float64   `gorm:"column:longitude"`
	Frame     []byte    `gorm:"column:frame"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (FlashEvent) TableName() string {
	return "flashes"
}

// HourlySummaryTask is a backlog entry requesting recomputation of one
// hour bucket for one station
type HourlySummaryTask struct {
	ID         int        `gorm:"primaryKey;autoIncrement;column:id"`
	Datetime   time.Time  `gorm:"column:datetime;index;not null"`
	StationID  int        `gorm:"column:station_id;not null"`
	StartedAt  *time.Time `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

func (HourlySummaryTask) TableName() string {
	return "hourly_summary_tasks"
}

// DailySummaryTask is a backlog entry requesting recomputation of one
// station-local day for one station
type DailySummaryTask struct {
	ID         int        `gorm:"primaryKey;autoIncrement;column:id"`
	Date       time.Time  `gorm:"column:date;index;not null"`
	StationID  int        `gorm:"column:station_id;not null"`
	StartedAt  *time.Time `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
}

func (DailySummaryTask) TableName() string {
	return "daily_summary_tasks"
}

// FTPServer is a physical server shared by one or more ingestion profiles
type FTPServer struct {
	ID           int    `gorm:"primaryKey;autoIncrement;column:id"`
	Host         string `gorm:"column:host;not null"`
	Port         int    `gorm:"column:port;default:21"`
	Username     string `gorm:"column:username"`
	Password     string `gorm:"column:password"`
	IsActiveMode bool   `gorm:"column:is_active_mode;default:false"`
}

func (FTPServer) TableName() string {
	return "ftp_servers"
}

// StationFileIngestion is an FTP pull profile: which files to fetch from
// which server, on what cron schedule, and how to enqueue them
type StationFileIngestion struct {
	ID                 int       `gorm:"primaryKey;autoIncrement;column:id"`
	FTPServerID        int       `gorm:"column:ftp_server_id;not null"`
	FTPServer          FTPServer `gorm:"foreignKey:FTPServerID"`
	StationID          int       `gorm:"column:station_id;not null"`
	Station            Station   `gorm:"foreignKey:StationID"`
	DecoderName        string    `gorm:"column:decoder_name;not null"`
	CronSchedule       string    `gorm:"column:cron_schedule;not null"`
	RemoteFolder       string    `gorm:"column:remote_folder"`
	FilePattern        string    `gorm:"column:file_pattern"`
	IsBinaryTransfer   bool      `gorm:"column:is_binary_transfer;default:false"`
	DeleteFromServer   bool      `gorm:"column:delete_from_server;default:false"`
	IsHistorical       bool      `gorm:"column:is_historical_data;default:false"`
	OverrideOnConflict bool      `gorm:"column:override_data_on_conflict;default:false"`
	UTCOffsetMinutes   int       `gorm:"column:utc_offset_minutes"`
	IsActive           bool      `gorm:"column:is_active;default:true"`
}

func (StationFileIngestion) TableName() string {
	return "station_file_ingestions"
}

// DCPDevice is a data collection platform polled through the LRGS
// retrieval subprocess
type DCPDevice struct {
	ID         int    `gorm:"primaryKey;autoIncrement;column:id"`
	DCPAddress string `gorm:"column:dcp_address;not null;unique"`
	// FirstTransmissionSeconds is the scheduled time of day, in seconds
	// after midnight UTC
	FirstTransmissionSeconds  int        `gorm:"column:first_transmission_seconds"`
	TransmissionWindowSeconds int        `gorm:"column:transmission_window_seconds"`
	FirstChannel              *int       `gorm:"column:first_channel"`
	DecoderName               string     `gorm:"column:decoder_name"`
	LastExecution             *time.Time `gorm:"column:last_execution"`
}

func (DCPDevice) TableName() string {
	return "dcp_devices"
}

// DCPDeviceStation links a device to a station. A device must map to
// exactly one station for dispatch to proceed.
type DCPDeviceStation struct {
	ID          int    `gorm:"primaryKey;autoIncrement;column:id"`
	DCPDeviceID int    `gorm:"column:dcp_device_id;not null"`
	StationID   int    `gorm:"column:station_id;not null"`
	DecoderName string `gorm:"column:decoder_name"`
}

func (DCPDeviceStation) TableName() string {
	return "dcp_device_stations"
}

// DataFile is the metadata record for an export artifact. Ready stays
// false until the artifact is completely written.
type DataFile struct {
	ID              uuid.UUID    `gorm:"primaryKey;column:id;type:uuid"`
	StationID       int          `gorm:"column:station_id;not null"`
	Source          string       `gorm:"column:source;not null"`
	StartDate       time.Time    `gorm:"column:start_date;not null"`
	EndDate         time.Time    `gorm:"column:end_date;not null"`
	VariableIDs     pgtype.JSONB `gorm:"column:variable_ids;type:jsonb"`
	IntervalSeconds int          `gorm:"column:interval_in_seconds"`
	PreparedBy      string       `gorm:"column:prepared_by"`
	Ready           bool         `gorm:"column:ready;default:false"`
	ReadyAt         *time.Time   `gorm:"column:ready_at"`
	Lines           int          `gorm:"column:lines"`
	CreatedAt       time.Time    `gorm:"column:created_at"`
}

func (DataFile) TableName() string {
	return "data_files"
}

// PredictionTask configures one ML labelling run: the neighborhood feeding
// the model, the windowing parameters, and the mapping from returned
// prediction codes to quality flags
type PredictionTask struct {
	ID                int          `gorm:"primaryKey;autoIncrement;column:id"`
	Name              string       `gorm:"column:name;not null"`
	PredictionID      string       `gorm:"column:prediction_id;not null"`
	TargetStationID   int          `gorm:"column:target_station_id;not null"`
	VariableID        int          `gorm:"column:variable_id;not null"`
	DataPeriodMinutes int          `gorm:"column:data_period_in_minutes;not null"`
	IntervalMinutes   int          `gorm:"column:interval_in_minutes;not null"`
	ResultMapping     pgtype.JSONB `gorm:"column:result_mapping;type:jsonb;default:'{}'"`
}

func (PredictionTask) TableName() string {
	return "prediction_tasks"
}

// PredictionTaskStation is one member of a prediction task's neighborhood
type PredictionTaskStation struct {
	ID               int `gorm:"primaryKey;autoIncrement;column:id"`
	PredictionTaskID int `gorm:"column:prediction_task_id;not null;index"`
	StationID        int `gorm:"column:station_id;not null"`
}

func (PredictionTaskStation) TableName() string {
	return "prediction_task_stations"
}
