package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"sqlite"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"cropdesk.db"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address           string        `envconfig:"CROPDESK_ADDRESS" default:":8080"`
	MetricsAddress    string        `envconfig:"CROPDESK_METRICS_ADDRESS" default:":8081"`
	LogLevel          string        `envconfig:"CROPDESK_LOG_LEVEL" default:"info"`
	LogFormat         string        `envconfig:"CROPDESK_LOG_FORMAT" default:"console"`
	DataDir           string        `envconfig:"CROPDESK_DATA_DIR" default:"./data"`
	StagingDir        string        `envconfig:"CROPDESK_STAGING_DIR" default:""`
	Interpreter       string        `envconfig:"CROPDESK_PYTHON" default:"python3"`
	MaxFiles          int           `envconfig:"CROPDESK_MAX_FILES" default:"50"`
	MaxFileSize       int64         `envconfig:"CROPDESK_MAX_FILE_SIZE" default:"52428800"`
	PollInterval      time.Duration `envconfig:"CROPDESK_POLL_INTERVAL" default:"1s"`
	DefaultDeadline   time.Duration `envconfig:"CROPDESK_DEFAULT_DEADLINE" default:"2m"`
	MaxConcurrentJobs int64         `envconfig:"CROPDESK_MAX_CONCURRENT_JOBS" default:"0"`
	HistoryPageSize   int           `envconfig:"CROPDESK_HISTORY_PAGE_SIZE" default:"10"`
	AllowedOrigins    []string      `envconfig:"CROPDESK_ALLOWED_ORIGINS" default:"*"`
	S3                S3

	// ToolDeadlines overrides the default deadline per tool, e.g. "flipkart:5m,meesho:10m".
	ToolDeadlines map[string]time.Duration `envconfig:"CROPDESK_TOOL_DEADLINES" default:""`
}

type S3 struct {
	Endpoint  string `envconfig:"CROPDESK_S3_ENDPOINT" default:""`
	Bucket    string `envconfig:"CROPDESK_S3_BUCKET" default:"cropdesk-artifacts"`
	AccessKey string `envconfig:"CROPDESK_S3_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"CROPDESK_S3_SECRET_KEY" default:""`
	UseSSL    bool   `envconfig:"CROPDESK_S3_USE_SSL" default:"false"`
}

// New loads the configuration once. Values from a ".env" file in the working
// directory are applied first; real environment variables take precedence.
func New() (*Config, error) {
	if singleConfig == nil {
		_ = godotenv.Load()
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// NewDefault returns a fresh configuration built from the environment and
// defaults, bypassing the process wide singleton.
func NewDefault() (*Config, error) {
	return load()
}

func load() (*Config, error) {
	cfg := &Config{Database: &dbConfig{}, Service: &svcConfig{}}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	s := c.Service
	if s.MaxFiles <= 0 {
		return fmt.Errorf("CROPDESK_MAX_FILES must be positive: %d", s.MaxFiles)
	}
	if s.MaxFileSize <= 0 {
		return fmt.Errorf("CROPDESK_MAX_FILE_SIZE must be positive: %d", s.MaxFileSize)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("CROPDESK_POLL_INTERVAL must be positive: %s", s.PollInterval)
	}
	if s.DefaultDeadline <= 0 {
		return fmt.Errorf("CROPDESK_DEFAULT_DEADLINE must be positive: %s", s.DefaultDeadline)
	}
	if s.HistoryPageSize <= 0 {
		return fmt.Errorf("CROPDESK_HISTORY_PAGE_SIZE must be positive: %d", s.HistoryPageSize)
	}
	for tool, d := range s.ToolDeadlines {
		if d <= 0 {
			return fmt.Errorf("deadline for tool %q must be positive: %s", tool, d)
		}
	}
	switch strings.ToLower(c.Database.Type) {
	case "sqlite", "pgsql":
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}
	return nil
}

// StagingPath is where uploads are written before they are moved into a job
// input directory. It lives under the data dir unless configured otherwise so
// that the move is a rename on the same filesystem.
func (s *svcConfig) StagingPath() string {
	if s.StagingDir != "" {
		return s.StagingDir
	}
	return filepath.Join(s.DataDir, ".staging")
}
