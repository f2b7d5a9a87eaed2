// Package config loads gateway settings: defaults, then an optional YAML
// file, then .env and process environment, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	// Gateway store. DatabaseURL wins over the DB_* parts when set.
	DatabaseURL string `yaml:"database_url"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"db_password"`
	DBHost      string `yaml:"db_host"`
	DBPort      string `yaml:"db_port"`
	DBName      string `yaml:"db_name"`

	// Read-only core banking database for cardholder lookups. Optional.
	CoreDatabaseURL string `yaml:"core_database_url"`

	APIURL      string        `yaml:"api_url"`
	Login       string        `yaml:"login"`
	Password    string        `yaml:"password"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	TokenRenewInterval time.Duration `yaml:"token_renew_interval"`
	TokenRejectTTL     time.Duration `yaml:"token_reject_ttl"`
	SyncInterval       time.Duration `yaml:"sync_interval"`
	CandidatesFile     string        `yaml:"candidates_file"`

	AMQPURL   string `yaml:"amqp_url"`
	SyncQueue string `yaml:"sync_queue"`

	LogEnv   string `yaml:"log_env"`
	LogLevel string `yaml:"log_level"`
}

func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":6969"
	c.DBHost = "localhost"
	c.DBPort = "5432"
	c.DBName = "infinite"
	c.APIURL = "https://api.infocus.company/api"
	c.HTTPTimeout = 15 * time.Second
	c.TokenRenewInterval = 4 * time.Minute
	c.TokenRejectTTL = 5 * time.Minute
	c.SyncInterval = 10 * time.Minute
	c.CandidatesFile = "new_data.json"
	c.SyncQueue = "customer_sync_events"
	c.LogEnv = "dev"
	c.LogLevel = "info"
}

// DSN returns the gateway store connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func (c *Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("API_URL is required"))
	} else if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("API_URL: %w", err))
	}
	if c.Login == "" || c.Password == "" {
		errs = append(errs, errors.New("LOGIN and PASSWORD are required"))
	}
	if c.DatabaseURL == "" && (c.DBUser == "" || c.DBName == "") {
		errs = append(errs, errors.New("DATABASE_URL or DB_USER/DB_NAME is required"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	if c.TokenRenewInterval <= 0 || c.SyncInterval <= 0 {
		errs = append(errs, errors.New("TOKEN_RENEW_INTERVAL and SYNC_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// Load builds a Config. path is an optional YAML file, envFile an optional
// dotenv file; a missing envFile is not an error. flags, when non-nil, are
// applied last and only for flags the user actually set.
func Load(path, envFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.loadEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := cfg.applyFlags(flags); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_ADDR":         &c.HTTPAddr,
		"DATABASE_URL":      &c.DatabaseURL,
		"DB_USER":           &c.DBUser,
		"DB_PASSWORD":       &c.DBPassword,
		"DB_HOST":           &c.DBHost,
		"DB_PORT":           &c.DBPort,
		"DB_NAME":           &c.DBName,
		"CORE_DATABASE_URL": &c.CoreDatabaseURL,
		"API_URL":           &c.APIURL,
		"LOGIN":             &c.Login,
		"PASSWORD":          &c.Password,
		"CANDIDATES_FILE":   &c.CandidatesFile,
		"AMQP_URL":          &c.AMQPURL,
		"SYNC_QUEUE":        &c.SyncQueue,
		"LOG_ENV":           &c.LogEnv,
		"LOG_LEVEL":         &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"HTTP_TIMEOUT":         &c.HTTPTimeout,
		"TOKEN_RENEW_INTERVAL": &c.TokenRenewInterval,
		"TOKEN_REJECT_TTL":     &c.TokenRejectTTL,
		"SYNC_INTERVAL":        &c.SyncInterval,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
