package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// NOTE: Load expands ${VAR} references from the environment before parsing,
// so secrets (bot token, SMTP and database passwords) can stay out of the
// file. Save writes whatever is in memory; it is only used to create the
// first-run default file.

// ICSConfig describes a single ICS feed.
type ICSConfig struct {
	// ID is an internal identifier used for cache keys and logging.
	ID string `yaml:"id" json:"id" validate:"required"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS export endpoint (CalDAV calendar export or public feed).
	URL string `yaml:"url" json:"url" validate:"required,url"`
	// Username/Password enable HTTP Basic Auth against the calendar server.
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
}

// ScheduleConfig sets the daily check time.
type ScheduleConfig struct {
	// Time is the local wall-clock time "HH:MM" in Config.Timezone.
	Time string `yaml:"time" json:"time" validate:"clock"`
	// RunOnStart also runs the check once at start-up; the ledger keeps it
	// from repeating notifications already sent today.
	RunOnStart bool `yaml:"run_on_start" json:"run_on_start"`
}

// MatcherConfig selects the anniversary matching strategy.
type MatcherConfig struct {
	// Strategy is "pattern" (lunar date read from the event) or "slot"
	// (marker-tagged events stored on the virtual solar date).
	Strategy string `yaml:"strategy" json:"strategy" validate:"oneof=pattern slot"`
	// Markers are the title substrings the slot strategy looks for.
	Markers []string `yaml:"markers" json:"markers" validate:"dive,required"`
	// WindowDays is how far ahead the pattern strategy fetches events.
	WindowDays int `yaml:"window_days" json:"window_days" validate:"gte=1,lte=3660"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password,omitempty" json:"-"`
	DB        int    `yaml:"db" json:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// LedgerConfig selects where sent notifications are recorded.
type LedgerConfig struct {
	Driver      string      `yaml:"driver" json:"driver" validate:"oneof=file memory redis postgres"`
	Path        string      `yaml:"path,omitempty" json:"path,omitempty"`
	Redis       RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	PostgresDSN string      `yaml:"postgres_dsn,omitempty" json:"-"`
}

type TelegramConfig struct {
	Token  string `yaml:"token" json:"-" validate:"required"`
	ChatID string `yaml:"chat_id" json:"chat_id" validate:"required"`
	// APIURL overrides the Bot API base URL (self-hosted Bot API server).
	APIURL string `yaml:"api_url,omitempty" json:"api_url,omitempty" validate:"omitempty,url"`
}

type EmailConfig struct {
	Host     string   `yaml:"host" json:"host" validate:"required,hostname|ip"`
	Port     int      `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password,omitempty" json:"-"`
	From     string   `yaml:"from,omitempty" json:"from,omitempty" validate:"omitempty,email"`
	To       []string `yaml:"to,omitempty" json:"to,omitempty" validate:"dive,email"`
}

type AMQPConfig struct {
	URL        string `yaml:"url" json:"-" validate:"required,url"`
	Exchange   string `yaml:"exchange,omitempty" json:"exchange,omitempty"`
	RoutingKey string `yaml:"routing_key,omitempty" json:"routing_key,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the operator API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" validate:"required"`
	Password string `yaml:"password" json:"-" validate:"required"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the operator API. Empty disables it.
	Listen string `yaml:"listen" json:"listen" validate:"omitempty,hostname_port"`

	// Timezone is the IANA timezone the daily check runs in (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone" validate:"required,timezone"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// Offsets are the day-offsets checked on every run.
	Offsets []int `yaml:"offsets" json:"offsets" validate:"min=1,dive,gte=0,lte=400"`

	Matcher MatcherConfig `yaml:"matcher" json:"matcher"`

	// ICS is the list of calendar feeds.
	ICS []ICSConfig `yaml:"ics" json:"ics" validate:"dive"`

	// CacheDir stores ICS bodies and ETags between runs. Empty disables it.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// FetchTimeout bounds a single ICS request.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" validate:"gte=0"`

	Ledger LedgerConfig `yaml:"ledger" json:"ledger"`

	Telegram *TelegramConfig `yaml:"telegram,omitempty" json:"telegram,omitempty"`
	Email    *EmailConfig    `yaml:"email,omitempty" json:"email,omitempty"`
	AMQP     *AMQPConfig     `yaml:"amqp,omitempty" json:"amqp,omitempty"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	// LogFile enables rotated file logging; empty logs to stderr.
	LogFile string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

const (
	defaultListen     = "127.0.0.1:8080"
	defaultTimezone   = "Asia/Seoul"
	defaultTime       = "07:00"
	defaultStrategy   = "pattern"
	defaultWindowDays = 400
	defaultLedgerPath = "/var/lib/lunaralarm/ledger.json"
	defaultLogLevel   = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		Schedule:     ScheduleConfig{Time: defaultTime},
		Offsets:      []int{0, 1, 7, 30},
		Matcher:      MatcherConfig{Strategy: defaultStrategy, Markers: []string{"음력", "Lunar"}, WindowDays: defaultWindowDays},
		ICS:          []ICSConfig{},
		CacheDir:     "/var/cache/lunaralarm",
		FetchTimeout: 15 * time.Second,
		Ledger:       LedgerConfig{Driver: "file", Path: defaultLedgerPath},
		LogLevel:     defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Schedule.Time == "" {
		c.Schedule.Time = defaultTime
	}
	if len(c.Offsets) == 0 {
		c.Offsets = []int{0, 1, 7, 30}
	}

	c.Matcher.Strategy = strings.ToLower(strings.TrimSpace(c.Matcher.Strategy))
	if c.Matcher.Strategy == "" {
		c.Matcher.Strategy = defaultStrategy
	}
	if c.Matcher.Markers == nil {
		c.Matcher.Markers = []string{"음력", "Lunar"}
	}
	if c.Matcher.WindowDays <= 0 {
		c.Matcher.WindowDays = defaultWindowDays
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}

	c.Ledger.Driver = strings.ToLower(strings.TrimSpace(c.Ledger.Driver))
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "file"
	}
	if c.Ledger.Driver == "file" && c.Ledger.Path == "" {
		c.Ledger.Path = defaultLedgerPath
	}

	if c.Email != nil && c.Email.Port == 0 {
		c.Email.Port = 587
	}

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}

	switch c.Ledger.Driver {
	case "redis":
		if c.Ledger.Redis.Addr == "" {
			return errors.New("config: ledger.redis.addr is required for the redis driver")
		}
	case "postgres":
		if c.Ledger.PostgresDSN == "" {
			return errors.New("config: ledger.postgres_dsn is required for the postgres driver")
		}
	}
	return nil
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Clock returns the configured hour and minute.
func (s ScheduleConfig) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.Time))
	if err != nil {
		return 0, 0, fmt.Errorf("config: schedule.time %q: want HH:MM", s.Time)
	}
	return t.Hour(), t.Minute(), nil
}

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func validate() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report yaml keys in messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "" || tag == "-" {
				return fld.Name
			}
			return tag
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, _, err := ScheduleConfig{Time: fl.Field().String()}.Clock()
			return err == nil
		})

		validatorInst = v
	})
	return validatorInst
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise ${VAR} references are expanded, the YAML is decoded,
//     defaults are filled in and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	return Parse(data)
}

// Parse decodes, normalizes and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".lunaralarm-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
