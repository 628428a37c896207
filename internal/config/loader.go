package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"jordanella.com/autoclick-go/internal/acquire"
)

var ErrInvalidSettings = errors.New("invalid settings")

// DefaultTemplates are searched when no templates are configured
var DefaultTemplates = []string{"accept_green.png", "accept_green-2.png"}

// Settings is the full runtime configuration
type Settings struct {
	Search  SearchSettings  `json:"search" yaml:"search" toml:"search"`
	Log     LogSettings     `json:"log" yaml:"log" toml:"log"`
	Journal JournalSettings `json:"journal" yaml:"journal" toml:"journal"`
	Server  ServerSettings  `json:"server" yaml:"server" toml:"server"`
}

// SearchSettings configures the acquisition loop
type SearchSettings struct {
	Templates  []string `json:"templates" yaml:"templates" toml:"templates"`
	Manifest   string   `json:"manifest" yaml:"manifest" toml:"manifest"`
	Threshold  float64  `json:"threshold" yaml:"threshold" toml:"threshold"`
	RetryMS    int      `json:"retry_ms" yaml:"retry_ms" toml:"retry_ms"`
	TimeoutMS  int      `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	SettleMS   int      `json:"settle_ms" yaml:"settle_ms" toml:"settle_ms"`
	ConfirmKey string   `json:"confirm_key" yaml:"confirm_key" toml:"confirm_key"`
	Workers    int      `json:"workers" yaml:"workers" toml:"workers"`
}

// LogSettings configures logging output
type LogSettings struct {
	Level    string `json:"level" yaml:"level" toml:"level"`
	Format   string `json:"format" yaml:"format" toml:"format"`
	EventDir string `json:"event_dir" yaml:"event_dir" toml:"event_dir"`
	// SkipIterations keeps per-iteration events out of the event log
	SkipIterations bool `json:"skip_iterations" yaml:"skip_iterations" toml:"skip_iterations"`
}

// JournalSettings configures the run journal; an empty path disables it
type JournalSettings struct {
	Path string `json:"path" yaml:"path" toml:"path"`
}

// ServerSettings configures the HTTP control surface. TemplateDir is the only
// place POST /search may load templates from.
type ServerSettings struct {
	Addr           string   `json:"addr" yaml:"addr" toml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	TemplateDir    string   `json:"template_dir" yaml:"template_dir" toml:"template_dir"`
}

// Default returns settings matching the stock search parameters
func Default() Settings {
	def := acquire.DefaultConfig()
	return Settings{
		Search: SearchSettings{
			Templates:  append([]string(nil), DefaultTemplates...),
			Threshold:  def.Threshold,
			RetryMS:    int(def.RetryInterval / time.Millisecond),
			TimeoutMS:  int(def.Timeout / time.Millisecond),
			SettleMS:   int(def.SettleDelay / time.Millisecond),
			ConfirmKey: def.ConfirmKey,
			Workers:    def.Workers,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
		Server: ServerSettings{
			Addr:           "127.0.0.1:8765",
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
	}
}

// Load reads a settings file based on its extension, starting from Default().
// Supports: .ini, .yaml/.yml, .json, .toml
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, fmt.Errorf("empty config path")
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".ini" {
		if err := loadINI(path, &s); err != nil {
			return s, err
		}
		return s, s.Validate()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read config file: %w", err)
	}
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &s)
	case ".json":
		err = json.Unmarshal(b, &s)
	case ".toml":
		err = toml.Unmarshal(b, &s)
	default:
		return s, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return s, s.Validate()
}

// loadINI reads the Settings.ini layout: [Search], [Logging], [Journal] and [Server]
func loadINI(path string, s *Settings) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}

	search := cfg.Section("Search")
	if search.HasKey("Templates") {
		s.Search.Templates = search.Key("Templates").Strings(",")
	}
	s.Search.Manifest = search.Key("Manifest").MustString(s.Search.Manifest)
	s.Search.Threshold = search.Key("Threshold").MustFloat64(s.Search.Threshold)
	s.Search.RetryMS = search.Key("RetryMs").MustInt(s.Search.RetryMS)
	s.Search.TimeoutMS = search.Key("TimeoutMs").MustInt(s.Search.TimeoutMS)
	s.Search.SettleMS = search.Key("SettleMs").MustInt(s.Search.SettleMS)
	s.Search.ConfirmKey = search.Key("ConfirmKey").MustString(s.Search.ConfirmKey)
	s.Search.Workers = search.Key("Workers").MustInt(s.Search.Workers)

	logging := cfg.Section("Logging")
	s.Log.Level = logging.Key("Level").MustString(s.Log.Level)
	s.Log.Format = logging.Key("Format").MustString(s.Log.Format)
	s.Log.EventDir = logging.Key("EventDir").MustString(s.Log.EventDir)
	s.Log.SkipIterations = logging.Key("SkipIterationEvents").MustBool(s.Log.SkipIterations)

	s.Journal.Path = cfg.Section("Journal").Key("Path").MustString(s.Journal.Path)

	server := cfg.Section("Server")
	s.Server.Addr = server.Key("Addr").MustString(s.Server.Addr)
	s.Server.TemplateDir = server.Key("TemplateDir").MustString(s.Server.TemplateDir)
	if server.HasKey("AllowedOrigins") {
		s.Server.AllowedOrigins = server.Key("AllowedOrigins").Strings(",")
	}

	return nil
}

// Validate checks value ranges
func (s Settings) Validate() error {
	var problems []string

	if math.IsNaN(s.Search.Threshold) || s.Search.Threshold < 0 || s.Search.Threshold > 1 {
		problems = append(problems, fmt.Sprintf("threshold must be in [0,1], got %v", s.Search.Threshold))
	}
	if s.Search.RetryMS < 0 {
		problems = append(problems, "retry_ms cannot be negative")
	}
	if s.Search.TimeoutMS < 0 {
		problems = append(problems, "timeout_ms cannot be negative")
	}
	if s.Search.SettleMS < 0 {
		problems = append(problems, "settle_ms cannot be negative")
	}
	if strings.TrimSpace(s.Search.ConfirmKey) == "" {
		problems = append(problems, "confirm_key cannot be empty")
	}
	if s.Search.Workers < 0 {
		problems = append(problems, "workers cannot be negative")
	}
	switch strings.ToLower(s.Log.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", s.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// AcquireConfig converts the search settings into a loop configuration
func (s Settings) AcquireConfig() acquire.Config {
	return acquire.Config{
		Threshold:     s.Search.Threshold,
		RetryInterval: time.Duration(s.Search.RetryMS) * time.Millisecond,
		Timeout:       time.Duration(s.Search.TimeoutMS) * time.Millisecond,
		SettleDelay:   time.Duration(s.Search.SettleMS) * time.Millisecond,
		ConfirmKey:    s.Search.ConfirmKey,
		Workers:       s.Search.Workers,
	}
}
