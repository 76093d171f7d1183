package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dineshvijayakumar2/flansa-builder/models"
)

// Manager owns the main connection of the builder. It is created once by the
// caller and passed to whatever needs it.
type Manager struct {
	db     *gorm.DB
	config *models.DatabaseConfig
	owned  bool
}

// Open connects using cfg, configures the pool and migrates the builder
// tables.
func Open(cfg *models.DatabaseConfig) (*Manager, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(LogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to main database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	m := &Manager{db: db, config: cfg, owned: true}
	if err := m.AutoMigrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return m, nil
}

// NewWithDB wraps a connection owned by the caller. Close leaves it open.
func NewWithDB(db *gorm.DB) (*Manager, error) {
	m := &Manager{db: db}
	if err := m.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return m, nil
}

func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(models.All()...)
}

func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Dialect is the gorm dialector name: postgres, mysql or sqlite.
func (m *Manager) Dialect() string {
	return m.db.Dialector.Name()
}

func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}
	return nil
}

func (m *Manager) Close() error {
	if !m.owned {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Dialector picks the gorm driver for a config.
func Dialector(cfg *models.DatabaseConfig) (gorm.Dialector, error) {
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build DSN: %w", err)
	}

	switch cfg.DbType {
	case "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DbType)
	}
}

func BuildDSN(cfg *models.DatabaseConfig) (string, error) {
	switch cfg.DbType {
	case "postgresql":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.DatabaseName, sslMode)
		for _, key := range sortedKeys(cfg.ConnectionParams) {
			dsn += fmt.Sprintf(" %s=%v", key, cfg.ConnectionParams[key])
		}
		return dsn, nil

	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DatabaseName)

		params := map[string]interface{}{
			"charset":   "utf8mb4",
			"parseTime": "True",
			"loc":       "Local",
		}
		for key, value := range cfg.ConnectionParams {
			params[key] = value
		}

		pairs := make([]string, 0, len(params))
		for _, key := range sortedKeys(params) {
			pairs = append(pairs, fmt.Sprintf("%s=%v", key, params[key]))
		}
		return dsn + "?" + strings.Join(pairs, "&"), nil

	case "sqlite":
		dsn := cfg.DatabaseName
		if len(cfg.ConnectionParams) > 0 {
			pairs := make([]string, 0, len(cfg.ConnectionParams))
			for _, key := range sortedKeys(cfg.ConnectionParams) {
				pairs = append(pairs, fmt.Sprintf("%s=%v", key, cfg.ConnectionParams[key]))
			}
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + strings.Join(pairs, "&")
		}
		return dsn, nil

	default:
		return "", fmt.Errorf("unsupported database type: %s", cfg.DbType)
	}
}

// LogLevel maps a config level name onto gorm's logger levels.
func LogLevel(name string) logger.LogLevel {
	switch strings.ToLower(name) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
