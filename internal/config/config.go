package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
)

// FileName is the config file looked up in the working directory.
const FileName = "issuetracker.yml"

// Config models issuetracker.yml.
type Config struct {
	Server struct {
		Addr               string   `yaml:"addr"`
		BasePath           string   `yaml:"base_path"`
		CORSOrigins        []string `yaml:"cors_origins"`
		ExportRequiresAuth bool     `yaml:"export_requires_auth"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string   `yaml:"jwt_secret"`
		TokenTTL  Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Labels struct {
		Dir  string `yaml:"dir"`
		Size int    `yaml:"size"`
	} `yaml:"labels"`
	Realtime struct {
		SendBuffer  int             `yaml:"send_buffer"`
		NATSURL     string          `yaml:"nats_url"`
		NATSSubject string          `yaml:"nats_subject"`
		Webhooks    []WebhookConfig `yaml:"webhooks"`
	} `yaml:"realtime"`
	Admin AdminConfig `yaml:"admin"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Retries        int      `yaml:"retries"`
	Enabled        *bool    `yaml:"enabled"`
}

// AdminConfig is the manager account created when the store has no users.
// An empty Matricule disables seeding.
type AdminConfig struct {
	UserID    string `yaml:"user_id"`
	Matricule string `yaml:"matricule_number"`
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
}

// Duration reads "24h" style values as well as plain seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ParseDuration accepts Go durations and bare integer seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := time.ParseDuration(raw); err == nil {
		return v, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return time.Duration(secs) * time.Second, nil
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("config.auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if !logLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("config.log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Labels.Size < 0 {
		return fmt.Errorf("config.labels.size must not be negative")
	}
	if c.Realtime.SendBuffer < 0 {
		return fmt.Errorf("config.realtime.send_buffer must not be negative")
	}
	for i, hook := range c.Realtime.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.realtime.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.realtime.webhooks[%d].timeout_seconds must not be negative", i)
		}
		if hook.Retries < 0 {
			return fmt.Errorf("config.realtime.webhooks[%d].retries must not be negative", i)
		}
		for _, evt := range hook.Events {
			evt = strings.TrimSpace(evt)
			if evt == "" {
				return fmt.Errorf("config.realtime.webhooks[%d] has empty event type", i)
			}
			if !events.IsLifecycle(evt) {
				return fmt.Errorf("config.realtime.webhooks[%d] has unknown event type %q", i, evt)
			}
		}
	}
	if c.Admin.Matricule != "" && c.Admin.Password == "" {
		return fmt.Errorf("config.admin.password is required when admin.matricule_number is set")
	}
	return nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML overlays raw YAML on the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional reads path, falling back to the defaults when it does not exist.
func LoadOptional(path string) (*Config, error) {
	cfg, err := FromFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

const defaultTemplate = `server:
  addr: ":5000"
  base_path: /api
  cors_origins: ["*"]
  export_requires_auth: false

database:
  path: issue_tracker.db

auth:
  jwt_secret: jwt-secret-key-change-in-production
  token_ttl: 24h

log:
  level: info

labels:
  dir: qr_codes
  size: 256

realtime:
  send_buffer: 64
  nats_subject: issuetracker.events

admin:
  user_id: admin
  matricule_number: ADMIN001
  name: System Administrator
  email: admin@example.com
  password: admin123
`
