package app

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

type HeaderConfig struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

type Config struct {
	Server struct {
		Port       string `toml:"port"`
		EnableAuth bool   `toml:"enable_auth"`
		// DevMode disables student notifications.
		DevMode bool `toml:"dev_mode"`
	} `toml:"server"`

	Auth struct {
		RedisURL         string `toml:"redis_url"`
		TokenHeader      string `toml:"token_header"`
		TokenKeyTemplate string `toml:"token_key_template"`
	} `toml:"auth"`

	API struct {
		StudentIDHeader string         `toml:"student_id_header"`
		RequiredHeaders []HeaderConfig `toml:"required_headers"`
		MaxUploadMB     int64          `toml:"max_upload_mb"`
	} `toml:"api"`

	Database struct {
		DSN           string `toml:"dsn"`
		MigrationsDir string `toml:"migrations_dir"`
	} `toml:"database"`

	Storage struct {
		UploadDir string `toml:"upload_dir"`
	} `toml:"storage"`

	Rubric struct {
		// RulesFile replaces the built-in DocType rule table.
		RulesFile string `toml:"rules_file"`
	} `toml:"rubric"`

	Queue struct {
		Backend     string `toml:"backend"`
		RedisURL    string `toml:"redis_url"`
		Key         string `toml:"key"`
		Workers     int    `toml:"workers"`
		MaxAttempts int    `toml:"max_attempts"`
	} `toml:"queue"`

	Notify struct {
		SMTPAddr      string `toml:"smtp_addr"`
		From          string `toml:"from"`
		Username      string `toml:"username"`
		Password      string `toml:"password"`
		SubjectPrefix string `toml:"subject_prefix"`
	} `toml:"notify"`
}

const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf(
			"error reading config file %s\n> Error: %w\n> Content:\n%s",
			path,
			err,
			string(data),
		)
	}

	logger.Debug.Printf("Loaded queue config: %+v", config.Queue)

	return config, nil
}

// ParseConfig decodes a TOML document and fills in defaults.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if config.Server.Port == "" {
		return nil, fmt.Errorf("Server port is not specified in config, use a value like :9999")
	}
	if config.Database.DSN == "" {
		return nil, fmt.Errorf("database.dsn is not specified in config")
	}

	if config.Database.MigrationsDir == "" {
		config.Database.MigrationsDir = "./migrations"
	}
	if config.Storage.UploadDir == "" {
		config.Storage.UploadDir = "./uploads"
	}
	if config.API.StudentIDHeader == "" {
		config.API.StudentIDHeader = "X-Student-Id"
	}
	if config.API.MaxUploadMB <= 0 {
		config.API.MaxUploadMB = 32
	}
	if config.Auth.TokenHeader == "" {
		config.Auth.TokenHeader = "Authorization"
	}
	if config.Auth.TokenKeyTemplate == "" {
		config.Auth.TokenKeyTemplate = "auth:{student}"
	}

	switch config.Queue.Backend {
	case "":
		config.Queue.Backend = QueueMemory
	case QueueMemory:
	case QueueRedis:
		if config.Queue.RedisURL == "" {
			return nil, fmt.Errorf("queue.redis_url is required for the redis queue backend")
		}
	default:
		return nil, fmt.Errorf("unknown queue backend %q", config.Queue.Backend)
	}

	return &config, nil
}
