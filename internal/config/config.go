package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir   = "."
	defaultCachePath   = ".cache-db"
	defaultLogLevel    = "info"
	defaultLogEnv      = "prod"
	defaultConcurrency = 4
	defaultRateLimit   = 4
)

type Config struct {
	ConfigDir  string     `yaml:"configDir" validate:"required"`
	CachePath  string     `yaml:"cachePath" validate:"required"`
	Log        Log        `yaml:"log"`
	Cloudflare Cloudflare `yaml:"cloudflare"`
	Reconcile  Reconcile  `yaml:"reconcile"`
	Metrics    Metrics    `yaml:"metrics"`
}

type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Env   string `yaml:"env" validate:"oneof=dev development prod production"`
}

type Cloudflare struct {
	Token     string `yaml:"token"`
	AccountID string `yaml:"accountId"`
	BaseURL   string `yaml:"baseUrl" validate:"omitempty,url"`
	// RateLimit is requests per second towards the API.
	RateLimit float64 `yaml:"rateLimit" validate:"gte=0"`
}

type Reconcile struct {
	DryRun      bool `yaml:"dryRun"`
	AssumeYes   bool `yaml:"assumeYes"`
	Concurrency int  `yaml:"concurrency" validate:"gte=0,lte=32"`
}

type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Load reads the optional application config file and fills defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Default().Debug("no config file, proceeding with defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		default:
			if err := decodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.SetDefaults()
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// SetDefaults fills every zero field that has a default.
func (c *Config) SetDefaults() {
	if c.ConfigDir == "" {
		c.ConfigDir = defaultConfigDir
	}
	if c.CachePath == "" {
		c.CachePath = defaultCachePath
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Log.Env == "" {
		c.Log.Env = defaultLogEnv
	}
	if c.Reconcile.Concurrency == 0 {
		c.Reconcile.Concurrency = defaultConcurrency
	}
	if c.Cloudflare.RateLimit == 0 {
		c.Cloudflare.RateLimit = defaultRateLimit
	}
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate config: %w", err)
	}
	var details strings.Builder
	details.WriteString("invalid config:")
	for _, fe := range validationErrors {
		fmt.Fprintf(&details, " %s failed on '%s' (value: '%v');", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return errors.New(strings.TrimSuffix(details.String(), ";"))
}
