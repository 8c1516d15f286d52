package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone database for hosts without zoneinfo

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/waiwai/settlement-bridge/internal/domain"
)

// Config is the full runtime configuration of the bridge.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	MainDB    MainDBConfig      `yaml:"main_db"`
	Legacy    LegacyConfig      `yaml:"legacy"`
	Dates     DatesConfig       `yaml:"dates"`
	Upload    UploadConfig      `yaml:"upload"`
	Merchants []domain.Merchant `yaml:"merchants" validate:"required,min=1,dive"`
	LogLevel  string            `yaml:"log_level" validate:"oneof=debug info warn error"`
}

type ServerConfig struct {
	Port        string   `yaml:"port" validate:"required,numeric"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type MainDBConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// LegacyConfig describes how to reach the legacy ledger table.
type LegacyConfig struct {
	Driver  string `yaml:"driver" validate:"required"`
	DSN     string `yaml:"dsn"`
	UID     string `yaml:"uid"`
	PWD     string `yaml:"pwd"`
	Library string `yaml:"library"`
	File    string `yaml:"file" validate:"required"`
	// RawConnString bypasses the DSN/UID/PWD descriptor, e.g. a sqlite path.
	RawConnString string        `yaml:"conn_string"`
	LimitClause   string        `yaml:"limit_clause"`
	OrderNoLimit  int           `yaml:"order_no_limit" validate:"min=1"`
	ThrottleEvery int           `yaml:"throttle_every" validate:"min=1"`
	ThrottlePause time.Duration `yaml:"throttle_pause" validate:"min=0"`
}

type DatesConfig struct {
	Timezone   string `yaml:"timezone" validate:"required"`
	PinnedHour int    `yaml:"pinned_hour" validate:"min=0,max=23"`
}

type UploadConfig struct {
	MaxMB int `yaml:"max_mb" validate:"min=1"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		MainDB: MainDBConfig{Driver: "sqlite", DSN: "settlement.db"},
		Legacy: LegacyConfig{
			Driver:        "odbc",
			Library:       "TESTF",
			File:          "PMONHP",
			LimitClause:   "FETCH FIRST 1 ROWS ONLY",
			OrderNoLimit:  15,
			ThrottleEvery: 10,
			ThrottlePause: 100 * time.Millisecond,
		},
		Dates:  DatesConfig{Timezone: "Asia/Bangkok", PinnedHour: 7},
		Upload: UploadConfig{MaxMB: 10},
		Merchants: []domain.Merchant{
			{StoreType: "WAIWAI", Code: "988899", Name: "WaiWai"},
			{StoreType: "SERDA", Code: "989902", Name: "Serda"},
			{StoreType: "MAKRO", Code: "989905", Name: "Makro Pro", Source: domain.SourceMakro},
		},
		LogLevel: "info",
	}
}

// Load reads the optional YAML file at path over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("PORT", &c.Server.Port)
	str("MAIN_DB_DRIVER", &c.MainDB.Driver)
	str("MAIN_DB_DSN", &c.MainDB.DSN)
	str("AS400_DRIVER", &c.Legacy.Driver)
	str("AS400_DSN", &c.Legacy.DSN)
	str("AS400_UID", &c.Legacy.UID)
	str("AS400_PWD", &c.Legacy.PWD)
	str("AS400_LIBRARY", &c.Legacy.Library)
	str("AS400_FILE", &c.Legacy.File)
	str("AS400_CONN_STRING", &c.Legacy.RawConnString)
	str("TIMEZONE", &c.Dates.Timezone)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if err := num("MAX_UPLOAD_MB", &c.Upload.MaxMB); err != nil {
		return err
	}
	if err := num("LEGACY_THROTTLE_EVERY", &c.Legacy.ThrottleEvery); err != nil {
		return err
	}
	if v, ok := lookup("LEGACY_THROTTLE_PAUSE"); ok && v != "" {
		d, err := parsePause(v)
		if err != nil {
			return fmt.Errorf("env LEGACY_THROTTLE_PAUSE: %w", err)
		}
		c.Legacy.ThrottlePause = d
	}
	return nil
}

// parsePause accepts a Go duration or a bare number of milliseconds.
func parsePause(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Validate checks struct constraints and the timezone name.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Dates.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Dates.Timezone, err)
	}
	return loc, nil
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxMB) * 1024 * 1024
}

// Merchant finds a configured merchant by code or store type.
func (c *Config) Merchant(codeOrStore string) (domain.Merchant, bool) {
	for _, m := range c.Merchants {
		if m.Code == codeOrStore || strings.EqualFold(m.StoreType, codeOrStore) {
			return m, true
		}
	}
	return domain.Merchant{}, false
}

// ConnectionString builds the bridge connection string for the legacy store.
func (l LegacyConfig) ConnectionString() string {
	if l.RawConnString != "" {
		return l.RawConnString
	}
	return fmt.Sprintf("DSN=%s;UID=%s;PWD=%s;", l.DSN, l.UID, l.PWD)
}

// Table is the library-qualified ledger table name.
func (l LegacyConfig) Table() string {
	if l.Library == "" {
		return l.File
	}
	return l.Library + "." + l.File
}
