package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Answer   AnswerConfig   `mapstructure:"answer"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Demo     DemoConfig     `mapstructure:"demo"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type TelegramConfig struct {
	Token             string        `mapstructure:"token"`
	PollTimeout       int           `mapstructure:"poll_timeout"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	ChatIdleTimeout   time.Duration `mapstructure:"chat_idle_timeout"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type AnswerConfig struct {
	Provider   string        `mapstructure:"provider"`
	Endpoint   string        `mapstructure:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	TopK       int           `mapstructure:"top_k"`
	Namespaces []string      `mapstructure:"namespaces"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type DemoConfig struct {
	MaxMessages int `mapstructure:"max_messages"`
}

type NotifyConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		// Remove leading slash from path to get database name
		DBName:  strings.TrimPrefix(u.Path, "/"),
		SSLMode: sslMode,
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.messages_per_second", 25)
	v.SetDefault("telegram.chat_idle_timeout", 24*time.Hour)
	v.SetDefault("database.driver", DriverMemory)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "mitra.db")
	v.SetDefault("answer.provider", ProviderHTTP)
	v.SetDefault("answer.endpoint", "http://localhost:8000/api/query")
	v.SetDefault("answer.timeout", 30*time.Second)
	v.SetDefault("answer.max_retries", 1)
	v.SetDefault("answer.retry_delay", 500*time.Millisecond)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 2048)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("demo.max_messages", 10)
	v.SetDefault("notify.default_duration", 3*time.Second)

	// Enable environment variable support
	v.AutomaticEnv()

	// The config file is optional; defaults and the environment are enough
	// to run against a local Answer Service.
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.SQLitePath = config.Database.SQLitePath
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if endpoint := v.GetString("ANSWER_ENDPOINT"); endpoint != "" {
		config.Answer.Endpoint = endpoint
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Answer.Provider {
	case ProviderHTTP:
		if c.Answer.Endpoint == "" {
			return fmt.Errorf("answer.endpoint is required for the %s provider", ProviderHTTP)
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the %s provider", ProviderOpenAI)
		}
	default:
		return fmt.Errorf("unknown answer provider %q", c.Answer.Provider)
	}

	if c.Answer.MaxRetries < 0 {
		return errors.New("answer.max_retries must not be negative")
	}
	return nil
}
