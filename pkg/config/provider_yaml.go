package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// yamlConfig mirrors ConfigData with YAML tags
type yamlConfig struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	Ingest struct {
		SpoolDir       string `yaml:"spool_dir"`
		DefaultDecoder string `yaml:"default_decoder"`
	} `yaml:"ingest"`
	Lightning *struct {
		Hostname     string  `yaml:"hostname"`
		Port         string  `yaml:"port"`
		PartnerID    string  `yaml:"partner_id"`
		MinLatitude  float64 `yaml:"min_latitude"`
		MaxLatitude  float64 `yaml:"max_latitude"`
		MinLongitude float64 `yaml:"min_longitude"`
		MaxLongitude float64 `yaml:"max_longitude"`
	} `yaml:"lightning"`
	LRGS *struct {
		ExecutablePath   string `yaml:"executable_path"`
		Hostname         string `yaml:"hostname"`
		Port             string `yaml:"port"`
		Username         string `yaml:"username"`
		Password         string `yaml:"password"`
		CriteriaFilePath string `yaml:"criteria_file_path"`
		MaxWindowHours   int    `yaml:"max_window_hours"`
		CommandTimeout   string `yaml:"command_timeout"`
	} `yaml:"lrgs"`
	Prediction *struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"prediction"`
	Export struct {
		OutputDir    string `yaml:"output_dir"`
		TimezoneName string `yaml:"timezone_name"`
	} `yaml:"export"`
	Schedule struct {
		IngestInterval          string `yaml:"ingest_interval"`
		SummaryBacklogInterval  string `yaml:"summary_backlog_interval"`
		Last24hInterval         string `yaml:"last24h_interval"`
		MinimumIntervalInterval string `yaml:"minimum_interval_interval"`
		QCInterval              string `yaml:"qc_interval"`
		PredictionInterval      string `yaml:"prediction_interval"`
		DCPInterval             string `yaml:"dcp_interval"`
		ExportInterval          string `yaml:"export_interval"`
	} `yaml:"schedule"`
	LogFile string `yaml:"log_file"`
}

// LoadConfig loads the complete configuration from a YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var raw yamlConfig
	err = yaml.Unmarshal(cfgFile, &raw)
	if err != nil {
		return nil, err
	}

	config := &ConfigData{
		Database: DatabaseData{ConnectionString: raw.Database.ConnectionString},
		Ingest: IngestData{
			SpoolDir:       raw.Ingest.SpoolDir,
			DefaultDecoder: raw.Ingest.DefaultDecoder,
		},
		Export: ExportData{
			OutputDir:    raw.Export.OutputDir,
			TimezoneName: raw.Export.TimezoneName,
		},
		Schedule: ScheduleData{
			IngestInterval:          raw.Schedule.IngestInterval,
			SummaryBacklogInterval:  raw.Schedule.SummaryBacklogInterval,
			Last24hInterval:         raw.Schedule.Last24hInterval,
			MinimumIntervalInterval: raw.Schedule.MinimumIntervalInterval,
			QCInterval:              raw.Schedule.QCInterval,
			PredictionInterval:      raw.Schedule.PredictionInterval,
			DCPInterval:             raw.Schedule.DCPInterval,
			ExportInterval:          raw.Schedule.ExportInterval,
		},
		LogFile: raw.LogFile,
	}

	if raw.Lightning != nil {
		config.Lightning = &LightningData{
			Hostname:     raw.Lightning.Hostname,
			Port:         raw.Lightning.Port,
			PartnerID:    raw.Lightning.PartnerID,
			MinLatitude:  raw.Lightning.MinLatitude,
			MaxLatitude:  raw.Lightning.MaxLatitude,
			MinLongitude: raw.Lightning.MinLongitude,
			MaxLongitude: raw.Lightning.MaxLongitude,
		}
	}

	if raw.LRGS != nil {
		config.LRGS = &LRGSData{
			ExecutablePath:   raw.LRGS.ExecutablePath,
			Hostname:         raw.LRGS.Hostname,
			Port:             raw.LRGS.Port,
			Username:         raw.LRGS.Username,
			Password:         raw.LRGS.Password,
			CriteriaFilePath: raw.LRGS.CriteriaFilePath,
			MaxWindowHours:   raw.LRGS.MaxWindowHours,
			CommandTimeout:   raw.LRGS.CommandTimeout,
		}
	}

	if raw.Prediction != nil {
		config.Prediction = &PredictionData{
			URL:     raw.Prediction.URL,
			Timeout: raw.Prediction.Timeout,
		}
	}

	y.config = config
	return config, nil
}

// GetDatabaseConfig returns the database configuration section
func (y *YAMLProvider) GetDatabaseConfig() (*DatabaseData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Database, nil
}

// GetScheduleConfig returns the job schedule configuration section
func (y *YAMLProvider) GetScheduleConfig() (*ScheduleData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return &y.config.Schedule, nil
}

// IsReadOnly returns true: YAML configuration is not writable at runtime
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML providers
func (y *YAMLProvider) Close() error {
	return nil
}
