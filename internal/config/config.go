package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	QBWC       QBWCConfig       `yaml:"qbwc"`
	HCP        HCPConfig        `yaml:"hcp"`
	QBO        QBOConfig        `yaml:"qbo"`
	API        APIConfig        `yaml:"api"`
	Sync       SyncConfig       `yaml:"sync"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// QBWCConfig configures the Web Connector endpoint: the credentials the
// desktop agent authenticates with and the session housekeeping knobs.
type QBWCConfig struct {
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	OrganizationID    string        `yaml:"organization_id"`
	CompanyFile       string        `yaml:"company_file"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	AdjustmentAccount string        `yaml:"adjustment_account"`
}

type HCPConfig struct {
	BaseURL       string `yaml:"base_url"`
	AccessToken   string `yaml:"access_token"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type QBOConfig struct {
	BaseURL       string `yaml:"base_url"`
	RealmID       string `yaml:"realm_id"`
	AccessToken   string `yaml:"access_token"`
	VerifierToken string `yaml:"verifier_token"`
}

type APIConfig struct {
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SyncConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DefaultLocation string        `yaml:"default_location"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment variables referenced from the YAML may
	// come from the real environment as well.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.QBWC.Username == "" || c.QBWC.Password == "" {
		return errors.New("qbwc username and password are required")
	}
	if c.QBWC.OrganizationID == "" {
		return errors.New("qbwc organization_id is required")
	}
	if c.HCP.WebhookSecret == "" {
		return errors.New("hcp webhook_secret is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.QBWC.SessionTTL == 0 {
		c.QBWC.SessionTTL = 10 * time.Minute
	}
	if c.QBWC.SweepInterval == 0 {
		c.QBWC.SweepInterval = time.Minute
	}
	if c.QBWC.AdjustmentAccount == "" {
		c.QBWC.AdjustmentAccount = "Inventory Adjustment"
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 3
	}
	if c.Sync.RetryBaseDelay == 0 {
		c.Sync.RetryBaseDelay = time.Second
	}
	if c.Sync.RequestTimeout == 0 {
		c.Sync.RequestTimeout = 15 * time.Second
	}
	if c.Sync.DefaultLocation == "" {
		c.Sync.DefaultLocation = "main"
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.HCP.BaseURL == "" {
		c.HCP.BaseURL = "https://api.housecallpro.com"
	}
	if c.QBO.BaseURL == "" {
		c.QBO.BaseURL = "https://quickbooks.api.intuit.com"
	}
}
