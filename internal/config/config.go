package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds logger configuration loaded from YAML and env.
type Config struct {
	StatusAddr string
	AdminAddr  string

	CollectorURL     string
	CollectorTimeout time.Duration

	SampleInterval time.Duration
	RetryInterval  time.Duration

	SensorBackend   string // "simulated" or "bme280"
	BME280Address   uint16
	SimulatedStartC float64

	FlushRateLimitRPS   int
	FlushRateLimitBurst int

	OutcomeWindow                 time.Duration
	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		StatusAddr string `yaml:"status_addr"`
		AdminAddr  string `yaml:"admin_addr"`
	} `yaml:"server"`

	Collector struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"collector"`

	Sampling struct {
		Interval      string `yaml:"interval"`
		RetryInterval string `yaml:"retry_interval"`
	} `yaml:"sampling"`

	Sensor struct {
		Backend         string  `yaml:"backend"`
		BME280Address   uint16  `yaml:"bme280_address"`
		SimulatedStartC float64 `yaml:"simulated_start_c"`
	} `yaml:"sensor"`

	Reliability struct {
		FlushRateLimitRPS   int `yaml:"flush_rate_limit_rps"`
		FlushRateLimitBurst int `yaml:"flush_rate_limit_burst"`
	} `yaml:"reliability"`

	Lifecycle struct {
		OutcomeWindow                 string `yaml:"outcome_window"`
		ShutdownTimeout               string `yaml:"shutdown_timeout"`
		ShutdownInFlightTimeout       string `yaml:"shutdown_inflight_timeout"`
		ShutdownInFlightCheckInterval string `yaml:"shutdown_inflight_check_interval"`
	} `yaml:"lifecycle"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// COLLECTOR_URL and SENSOR_BACKEND env vars override the file. Call from
// project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.StatusAddr = fc.Server.StatusAddr
	if cfg.StatusAddr == "" {
		cfg.StatusAddr = ":8080"
	}
	cfg.AdminAddr = fc.Server.AdminAddr
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":9090"
	}

	cfg.CollectorURL = strings.TrimSpace(os.Getenv("COLLECTOR_URL"))
	if cfg.CollectorURL == "" {
		cfg.CollectorURL = strings.TrimSpace(fc.Collector.URL)
	}
	cfg.CollectorTimeout = parseDuration(fc.Collector.Timeout, 10*time.Second)

	cfg.SampleInterval = parseDuration(fc.Sampling.Interval, 60*time.Second)
	cfg.RetryInterval = parseDuration(fc.Sampling.RetryInterval, 30*time.Second)

	cfg.SensorBackend = strings.TrimSpace(strings.ToLower(os.Getenv("SENSOR_BACKEND")))
	if cfg.SensorBackend == "" {
		cfg.SensorBackend = strings.TrimSpace(strings.ToLower(fc.Sensor.Backend))
	}
	if cfg.SensorBackend == "" {
		cfg.SensorBackend = "simulated"
	}
	cfg.BME280Address = fc.Sensor.BME280Address
	if cfg.BME280Address == 0 {
		cfg.BME280Address = 0x76
	}
	cfg.SimulatedStartC = fc.Sensor.SimulatedStartC
	if cfg.SimulatedStartC == 0 {
		cfg.SimulatedStartC = 21.0
	}

	cfg.FlushRateLimitRPS = fc.Reliability.FlushRateLimitRPS
	if cfg.FlushRateLimitRPS <= 0 {
		cfg.FlushRateLimitRPS = 1
	}
	cfg.FlushRateLimitBurst = fc.Reliability.FlushRateLimitBurst
	if cfg.FlushRateLimitBurst <= 0 {
		cfg.FlushRateLimitBurst = 3
	}

	cfg.OutcomeWindow = parseDuration(fc.Lifecycle.OutcomeWindow, 30*time.Minute)
	cfg.ShutdownTimeout = parseDuration(fc.Lifecycle.ShutdownTimeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Lifecycle.ShutdownInFlightTimeout, 65*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Lifecycle.ShutdownInFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. The collector URL is required and
// must be absolute; the retry cadence must not be slower than sampling or
// fallback mode would fall behind the buffer growth it is trying to drain.
func validate(cfg *Config) error {
	if cfg.CollectorURL == "" {
		return fmt.Errorf("collector.url required (set COLLECTOR_URL env or config file)")
	}
	u, err := url.Parse(cfg.CollectorURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("collector.url must be an absolute http(s) URL, got %q", cfg.CollectorURL)
	}
	switch cfg.SensorBackend {
	case "simulated", "bme280":
		// valid
	default:
		return fmt.Errorf("sensor.backend must be simulated or bme280, got %q", cfg.SensorBackend)
	}
	if cfg.RetryInterval > cfg.SampleInterval {
		return fmt.Errorf("sampling.retry_interval (%s) must not exceed sampling.interval (%s)",
			cfg.RetryInterval, cfg.SampleInterval)
	}
	return nil
}
