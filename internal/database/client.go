package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/surfacemet/surfaced/internal/log"
	"github.com/surfacemet/surfaced/pkg/config"
	"go.uber.org/zap"
)

// Client holds the connection to the TimescaleDB database
type Client struct {
	config *config.DatabaseData
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(c *config.DatabaseData, logger *zap.SugaredLogger) *Client {
	return &Client{
		config: c,
		logger: logger,
	}
}

// Connect connects to the TimescaleDB database
func (c *Client) Connect() error {
	var err error
	c.DB, err = CreateConnection(c.config.ConnectionString)
	return err
}

// CreateConnection is a helper function to create a database connection with standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a TimescaleDB connection:", err)
		return nil, err
	}
	log.Info("TimescaleDB connection successful")

	return db, nil
}
