package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/dineshvijayakumar2/flansa-builder/models"
)

const DefaultPath = "./configs/flansa.json"

type AppConfig struct {
	Server   ServerConfig          `json:"server"`
	Database models.DatabaseConfig `json:"database"`
	Files    FilesConfig           `json:"files"`
}

type ServerConfig struct {
	Port        int      `json:"port" validate:"min=1,max=65535"`
	BasePath    string   `json:"base_path" validate:"required,startswith=/"`
	CORSOrigins []string `json:"cors_origins"`
}

type FilesConfig struct {
	// URLPrefix is prepended to relative attachment paths.
	URLPrefix string `json:"url_prefix" validate:"required"`
}

type Loader struct {
	validator *validator.Validate
	getenv    func(string) string
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(),
		getenv:    os.Getenv,
	}
}

// Load reads the file named by CONFIG_PATH, or DefaultPath.
func (l *Loader) Load() (*AppConfig, error) {
	path := l.getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return l.LoadFromFile(path)
}

func (l *Loader) LoadFromFile(configPath string) (*AppConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.LoadFromBytes(data)
}

func (l *Loader) LoadFromBytes(data []byte) (*AppConfig, error) {
	var config AppConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	l.setDefaults(&config)
	if err := l.applyEnv(&config); err != nil {
		return nil, err
	}

	if err := l.validator.Struct(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (l *Loader) setDefaults(config *AppConfig) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.BasePath == "" {
		config.Server.BasePath = "/api"
	}
	if config.Files.URLPrefix == "" {
		config.Files.URLPrefix = "/files/"
	}

	db := &config.Database
	if db.Port == 0 {
		switch db.DbType {
		case "postgresql":
			db.Port = 5432
		case "mysql":
			db.Port = 3306
		}
	}
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = 10
	}
	if db.MaxIdleConns == 0 {
		db.MaxIdleConns = 5
	}
	if db.ConnMaxLifetime == 0 {
		db.ConnMaxLifetime = 3600
	}
	if db.LogLevel == "" {
		db.LogLevel = "warn"
	}
}

func (l *Loader) applyEnv(config *AppConfig) error {
	if v := l.getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		config.Server.Port = port
	}
	if v := l.getenv("API_BASE_PATH"); v != "" {
		config.Server.BasePath = v
	}
	if v := l.getenv("FILE_URL_PREFIX"); v != "" {
		config.Files.URLPrefix = v
	}
	return nil
}
