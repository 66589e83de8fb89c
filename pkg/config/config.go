package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ForecastPull/pkg/util"
)

// EndNow is the run end keyword that tracks the current hour.
const EndNow = "now"

type Config struct {
	Environment string `yaml:"environment" validate:"required"`
	Log         struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SummaryCacheTTL time.Duration `yaml:"summary_cache_ttl" default:"30s"`
	} `yaml:"server"`
	Run struct {
		Assets        []string `yaml:"assets" validate:"required,min=1,dive,required"`
		QuoteCurrency string   `yaml:"quote_currency" default:"USD"`
		Start         string   `yaml:"start" validate:"required"`
		End           string   `yaml:"end" default:"now"`
		Parallelism   int      `yaml:"parallelism" default:"2" validate:"gte=1"`
	} `yaml:"run"`
	Models     []ModelConfig `yaml:"models" validate:"required,min=1,dive"`
	Evaluation struct {
		Epsilon   float64       `yaml:"epsilon" default:"1e-9" validate:"gt=0"`
		SettleLag time.Duration `yaml:"settle_lag" default:"1m"`
		BatchSize int           `yaml:"batch_size" default:"5000" validate:"gt=0"`
	} `yaml:"evaluation"`
	Schedule struct {
		Forecast string `yaml:"forecast" default:"0 5 * * * *"`
		GapAudit string `yaml:"gap_audit" default:"0 30 3 * * *"`
	} `yaml:"schedule"`
	Alerts struct {
		FitFailureThreshold int `yaml:"fit_failure_threshold" default:"3" validate:"gte=1"`
	} `yaml:"alerts"`
	Postgres struct {
		DSN             string        `yaml:"dsn" validate:"required"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host" validate:"required"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"forecastpull"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Badger struct {
		Path       string `yaml:"path" default:"data/clocks"`
		InMemory   bool   `yaml:"in_memory"`
		SyncWrites bool   `yaml:"sync_writes" default:"true"`
	} `yaml:"badger"`
	Artifacts struct {
		Backend string `yaml:"backend" default:"fs" validate:"oneof=fs gcs"`
		Dir     string `yaml:"dir" default:"data/models"`
		GCS     struct {
			Bucket          string `yaml:"bucket"`
			Prefix          string `yaml:"prefix" default:"models"`
			CredentialsFile string `yaml:"credentials_file"`
		} `yaml:"gcs"`
	} `yaml:"artifacts"`
	Lease struct {
		Backend string        `yaml:"backend" default:"memory" validate:"oneof=none memory redis"`
		TTL     time.Duration `yaml:"ttl" default:"30m"`
	} `yaml:"lease"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"forecastpull"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Topics       struct {
			Forecasts string `yaml:"forecasts" default:"forecasts.created"`
			Metrics   string `yaml:"metrics" default:"metrics.tiers"`
			Alerts    string `yaml:"alerts" default:"alerts.pipeline"`
			Logs      string `yaml:"logs" default:"alerts.logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	CryptoCompare struct {
		BaseURL           string        `yaml:"base_url" default:"https://min-api.cryptocompare.com"`
		APIKey            string        `yaml:"api_key"`
		Timeout           time.Duration `yaml:"timeout" default:"20s"`
		PageLimit         int           `yaml:"page_limit" default:"2000" validate:"gt=0,lte=2000"`
		RequestsPerSecond float64       `yaml:"requests_per_second" default:"5"`
		Retries           int           `yaml:"retries" default:"3" validate:"gte=1"`
	} `yaml:"cryptocompare"`
	Adapters struct {
		RemoteURL string        `yaml:"remote_url"`
		Remote    []string      `yaml:"remote"`
		Timeout   time.Duration `yaml:"timeout" default:"60s"`
		Retries   int           `yaml:"retries" default:"3"`
	} `yaml:"adapters"`
}

// ModelConfig is one configured model family with its window, cadence and horizon sizes in hours.
type ModelConfig struct {
	Family               string         `yaml:"family" validate:"required"`
	TrainingWindowHours  int            `yaml:"training_window_hours" validate:"gt=0"`
	RetrainIntervalHours int            `yaml:"retrain_interval_hours" validate:"gt=0"`
	ForecastWindowHours  int            `yaml:"forecast_window_hours" validate:"gt=0"`
	ForecastCadenceHours int            `yaml:"forecast_cadence_hours" validate:"gt=0"`
	ForecastHorizonHours int            `yaml:"forecast_horizon_hours" validate:"gt=0"`
	Hyperparameters      map[string]any `yaml:"hyperparameters"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), then the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyEnv()
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FORECAST_ASSETS"); v != "" {
		c.Run.Assets = util.SplitCSV(v)
	}
	if v := os.Getenv("FORECAST_START"); v != "" {
		c.Run.Start = v
	}
	if v := os.Getenv("FORECAST_END"); v != "" {
		c.Run.End = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("CRYPTOCOMPARE_API_KEY"); v != "" {
		c.CryptoCompare.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	start, end, err := c.RunWindow(time.Now())
	if err != nil {
		return err
	}
	if !start.Before(end) && !c.EndIsNow() {
		return fmt.Errorf("run.start %s must be before run.end %s", start, end)
	}

	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if _, dup := seen[m.Family]; dup {
			return fmt.Errorf("models: duplicate family %q", m.Family)
		}
		seen[m.Family] = struct{}{}
	}
	for _, f := range c.Adapters.Remote {
		if _, ok := seen[f]; !ok {
			return fmt.Errorf("adapters.remote: %q is not a configured model family", f)
		}
	}
	if len(c.Adapters.Remote) > 0 && c.Adapters.RemoteURL == "" {
		return fmt.Errorf("adapters.remote_url is required when remote families are configured")
	}
	if c.Artifacts.Backend == "gcs" && c.Artifacts.GCS.Bucket == "" {
		return fmt.Errorf("artifacts.gcs.bucket is required for the gcs backend")
	}
	return nil
}

// EndIsNow reports whether the run end tracks the current hour.
func (c *Config) EndIsNow() bool {
	return strings.EqualFold(strings.TrimSpace(c.Run.End), EndNow) || c.Run.End == ""
}

// RunWindow resolves the configured start and end, both hour aligned. "now" resolves against now.
func (c *Config) RunWindow(now time.Time) (time.Time, time.Time, error) {
	start, ok := util.ParseTime(c.Run.Start)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("run.start: cannot parse %q", c.Run.Start)
	}
	end := util.TruncateHour(now)
	if !c.EndIsNow() {
		e, ok := util.ParseTime(c.Run.End)
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("run.end: cannot parse %q", c.Run.End)
		}
		end = util.TruncateHour(e)
	}
	return util.TruncateHour(start), end, nil
}

// MaxTrainingWindow returns the largest training window across models, in hours.
func (c *Config) MaxTrainingWindow() int {
	m := 0
	for _, mc := range c.Models {
		if mc.TrainingWindowHours > m {
			m = mc.TrainingWindowHours
		}
	}
	return m
}
