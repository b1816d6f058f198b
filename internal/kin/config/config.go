// Package config loads kin's settings from defaults, an optional YAML file
// and KIN_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/kin/common/environment"
)

// EnvPrefix scopes every environment override.
const EnvPrefix = "KIN_"

// Defaults.
const (
	DefaultWakePhrase   = "hey kin"
	DefaultRestartDelay = 300 * time.Millisecond
	DefaultDatabasePath = "./kin_memory.db"
	DefaultRecentLimit  = 5
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("kin-config.json", schemaJSON)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete runtime configuration.
type Config struct {
	WakePhrase       string        `yaml:"wakePhrase"`
	RestartDelay     time.Duration `yaml:"restartDelay"`
	DatabasePath     string        `yaml:"databasePath"`
	RecentLimit      int           `yaml:"recentLimit"`
	RememberCommands bool          `yaml:"rememberCommands"`
	NetworkEnabled   bool          `yaml:"networkEnabled"`
	Log              Log           `yaml:"log"`
	HTTP             HTTP          `yaml:"http"`
	Matrix           Matrix        `yaml:"matrix"`

	// File is the YAML file the config was read from, if any.
	File string `yaml:"-"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTP configures the health server. An empty Addr disables it.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Matrix configures the optional status mirror.
type Matrix struct {
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"userId"`
	AccessToken string `yaml:"accessToken"`
	StatusRoom  string `yaml:"statusRoom"`
}

// Enabled reports whether every Matrix field is set.
func (m Matrix) Enabled() bool {
	return m.Homeserver != "" && m.UserID != "" && m.AccessToken != "" && m.StatusRoom != ""
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WakePhrase:   DefaultWakePhrase,
		RestartDelay: DefaultRestartDelay,
		DatabasePath: DefaultDatabasePath,
		RecentLimit:  DefaultRecentLimit,
		Log:          Log{Level: "info", Format: "text"},
	}
}

// Load builds the configuration: defaults, then path (when non-empty, or
// named by KIN_CONFIG_FILE), then environment overrides from env.
func Load(path string, env *environment.Reader) (Config, error) {
	if env == nil {
		env = environment.New(EnvPrefix)
	}
	if path == "" {
		path = env.StringOr("CONFIG_FILE", "")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
		cfg.File = path
	}

	cfg.ApplyEnv(env)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse checks data against the schema and decodes it over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validateSchema round-trips the YAML document through JSON so the validator
// sees JSON-native types.
func validateSchema(doc any) error {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(verr.Error()))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyEnv overrides fields from KIN_* variables. Unset or unparseable
// variables leave the field unchanged.
func (c *Config) ApplyEnv(env *environment.Reader) {
	env.SetString(&c.WakePhrase, "WAKE_PHRASE")
	env.SetDuration(&c.RestartDelay, "RESTART_DELAY")
	env.SetString(&c.DatabasePath, "DATABASE_PATH")
	env.SetInt(&c.RecentLimit, "RECENT_LIMIT")
	env.SetBool(&c.RememberCommands, "REMEMBER_COMMANDS")
	env.SetBool(&c.NetworkEnabled, "NETWORK_ENABLED")
	env.SetString(&c.Log.Level, "LOG_LEVEL")
	env.SetString(&c.Log.Format, "LOG_FORMAT")
	env.SetString(&c.HTTP.Addr, "HTTP_ADDR")
	env.SetString(&c.Matrix.Homeserver, "MATRIX_HOMESERVER")
	env.SetString(&c.Matrix.UserID, "MATRIX_USER_ID")
	env.SetString(&c.Matrix.AccessToken, "MATRIX_ACCESS_TOKEN")
	env.SetString(&c.Matrix.StatusRoom, "MATRIX_STATUS_ROOM")
}

// Validate checks the fields the schema cannot see, including values that
// came from the environment.
func (c Config) Validate() error {
	if strings.TrimSpace(c.WakePhrase) == "" {
		return fmt.Errorf("%w: wake phrase must not be empty", ErrInvalid)
	}
	if c.RestartDelay <= 0 {
		return fmt.Errorf("%w: restart delay must be positive, got %s", ErrInvalid, c.RestartDelay)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("%w: database path must not be empty", ErrInvalid)
	}
	if c.RecentLimit < 1 {
		return fmt.Errorf("%w: recent limit must be at least 1, got %d", ErrInvalid, c.RecentLimit)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}
	m := c.Matrix
	if c.NetworkEnabled && (m.Homeserver != "" || m.UserID != "" || m.AccessToken != "" || m.StatusRoom != "") && !m.Enabled() {
		return fmt.Errorf("%w: matrix needs homeserver, user id, access token and status room", ErrInvalid)
	}
	return nil
}

// Secrets lists the values that must never reach a log line.
func (c Config) Secrets() []string {
	if c.Matrix.AccessToken == "" {
		return nil
	}
	return []string{c.Matrix.AccessToken}
}
