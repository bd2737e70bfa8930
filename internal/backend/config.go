package backend

import (
	"fmt"

	"budgetwise/internal/config"
)

// StoreType names a persisted session store implementation.
type StoreType string

const (
	MemoryStore StoreType = "memory"
	SQLiteStore StoreType = "sqlite"
	RedisStore  StoreType = "redis"
)

func (t StoreType) IsValid() bool {
	switch t {
	case MemoryStore, SQLiteStore, RedisStore:
		return true
	default:
		return false
	}
}

func (t StoreType) String() string {
	return string(t)
}

// Config holds what the factory needs to build the local infrastructure.
type Config struct {
	Store StoreType

	SQLiteDBPath string
	RedisURL     string
	RedisPrefix  string

	// AMQP publishing is off when AMQPURL is empty.
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Sheets export is off when GoogleSpreadsheetID is empty.
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	storeType := StoreType(appConfig.StoreBackend)
	if !storeType.IsValid() {
		return Config{}, fmt.Errorf("invalid store backend in config: %s", appConfig.StoreBackend)
	}

	return Config{
		Store:        storeType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		RedisURL:     appConfig.RedisURL,
		RedisPrefix:  appConfig.RedisPrefix,

		AMQPURL:        appConfig.AMQPURL,
		AMQPExchange:   appConfig.AMQPExchange,
		AMQPRoutingKey: appConfig.AMQPRoutingKey,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Store.IsValid() {
		return fmt.Errorf("invalid store backend: %s", c.Store)
	}

	switch c.Store {
	case SQLiteStore:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case RedisStore:
		if c.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for redis backend")
		}
	}

	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPRoutingKey == "") {
		return fmt.Errorf("AMQP exchange and routing key are required when AMQP is enabled")
	}
	return nil
}

// StoreTypes returns all valid store types
func StoreTypes() []StoreType {
	return []StoreType{MemoryStore, SQLiteStore, RedisStore}
}
