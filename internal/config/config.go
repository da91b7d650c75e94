// Package config loads the YAML configuration file, applies the
// `LOG_SEARCH_MCP__<SECTION>__<KEY>` environment overlay, and supports
// hot reload via fsnotify with an atomically-swapped snapshot —
// in-flight queries keep using the snapshot they started with.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerMode selects which interface layer(s) run.
type ServerMode string

const (
	ServerModeHTTP  ServerMode = "http"
	ServerModeStdio ServerMode = "stdio"
	ServerModeBoth  ServerMode = "both"
)

// ServerSection is the `server.*` config block.
type ServerSection struct {
	Mode ServerMode `yaml:"mode"`
	Host string     `yaml:"host"`
	Port int        `yaml:"port"`
}

// LogParserSection is the `log_parser.*` config block.
type LogParserSection struct {
	LineStartRegex        string `yaml:"line_start_regex"`
	DefaultTimestampRegex string `yaml:"default_timestamp_regex"`
}

// SearchSection is the `search.*` config block. MaxBytesPerQuery and
// QuotaBytes (on SessionSection) drive the byte-cap and session-quota
// short-circuits documented on Engine and session.Store.
type SearchSection struct {
	DefaultPageSize         int   `yaml:"default_page_size"`
	MaxPageSize             int   `yaml:"max_page_size"`
	DefaultTimeoutMs        int   `yaml:"default_timeout_ms"`
	MaxConcurrentFiles      int   `yaml:"max_concurrent_files"`
	BufferSize              int   `yaml:"buffer_size"`
	MaxBytesPerQuery        int64 `yaml:"max_bytes_per_query"`
	DefaultDriftToleranceMs int64 `yaml:"default_drift_tolerance_ms"`
}

// LogSourcesSection is the `log_sources.*` config block.
type LogSourcesSection struct {
	LogFilePaths []string `yaml:"log_file_paths"`
}

// SessionSection is the `session.*` config block, driving
// internal/session.Store's quota and idle-reap behaviour.
type SessionSection struct {
	DataDir        string `yaml:"data_dir"`
	QuotaBytes     int64  `yaml:"quota_bytes"`
	IdleTTLSeconds int    `yaml:"idle_ttl_seconds"`
}

// Config is the root configuration document.
type Config struct {
	Server     ServerSection     `yaml:"server"`
	LogParser  LogParserSection  `yaml:"log_parser"`
	Search     SearchSection     `yaml:"search"`
	LogSources LogSourcesSection `yaml:"log_sources"`
	Session    SessionSection    `yaml:"session"`
}

// EnvPrefix is the namespace for the environment overlay.
const EnvPrefix = "LOG_SEARCH_MCP__"

// Default returns the baseline configuration used when no config
// file is present or a key is left unset.
func Default() *Config {
	return &Config{
		Server: ServerSection{Mode: ServerModeBoth, Host: "127.0.0.1", Port: 8080},
		LogParser: LogParserSection{
			LineStartRegex:        "",
			DefaultTimestampRegex: "",
		},
		Search: SearchSection{
			DefaultPageSize:         50,
			MaxPageSize:             500,
			DefaultTimeoutMs:        30_000,
			MaxConcurrentFiles:      4,
			BufferSize:              64 * 1024,
			MaxBytesPerQuery:        512 * 1024 * 1024,
			DefaultDriftToleranceMs: 3_000,
		},
		LogSources: LogSourcesSection{},
		Session: SessionSection{
			DataDir:        ".",
			QuotaBytes:     0,
			IdleTTLSeconds: 24 * 60 * 60,
		},
	}
}

// sectionKeys lists every recognised key per section, used to warn on
// (not fail on) unknown keys rather than rejecting the file outright.
var sectionKeys = map[string]map[string]bool{
	"server":      {"mode": true, "host": true, "port": true},
	"log_parser":  {"line_start_regex": true, "default_timestamp_regex": true},
	"search":      {"default_page_size": true, "max_page_size": true, "default_timeout_ms": true, "max_concurrent_files": true, "buffer_size": true, "max_bytes_per_query": true, "default_drift_tolerance_ms": true},
	"log_sources": {"log_file_paths": true},
	"session":     {"data_dir": true, "quota_bytes": true, "idle_ttl_seconds": true},
}

// Load reads path, overlays environment variables, and returns the
// resolved Config. A missing file is not an error: Default() alone,
// plus any environment overlay, is returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		warnUnknownKeys(raw)
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverlay(cfg); err != nil {
		return nil, fmt.Errorf("apply env overlay: %w", err)
	}

	return cfg, nil
}

func warnUnknownKeys(raw []byte) {
	var doc map[string]map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return // malformed YAML surfaces later from the typed Unmarshal
	}
	for section, fields := range doc {
		known, ok := sectionKeys[section]
		if !ok {
			log.Printf("config: unknown section %q, ignoring", section)
			continue
		}
		for key := range fields {
			if !known[key] {
				log.Printf("config: unknown key %q in section %q, ignoring", key, section)
			}
		}
	}
}

// applyEnvOverlay scans the environment for LOG_SEARCH_MCP__<SECTION>__<KEY>
// and writes matching values onto cfg's yaml-tagged fields via reflection.
func applyEnvOverlay(cfg *Config) error {
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, EnvPrefix)
		parts := strings.SplitN(rest, "__", 2)
		if len(parts) != 2 {
			continue
		}
		section := strings.ToLower(parts[0])
		field := strings.ToLower(parts[1])
		if err := setField(cfg, section, field, value); err != nil {
			return fmt.Errorf("env override %s: %w", key, err)
		}
	}
	return nil
}

func setField(cfg *Config, section, field, value string) error {
	v := reflect.ValueOf(cfg).Elem()
	sectionField, ok := findByYAMLTag(v, section)
	if !ok {
		return nil // unknown section: ignore
	}
	target, ok := findByYAMLTag(sectionField, field)
	if !ok {
		return nil
	}
	return assignString(target, value)
}

func findByYAMLTag(v reflect.Value, tag string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		yamlTag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if yamlTag == tag {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func assignString(target reflect.Value, value string) error {
	switch target.Kind() {
	case reflect.String:
		target.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		target.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		target.SetBool(b)
	case reflect.Slice:
		if target.Type().Elem().Kind() == reflect.String {
			target.Set(reflect.ValueOf(strings.Split(value, ",")))
		}
	default:
		return fmt.Errorf("unsupported field kind %s", target.Kind())
	}
	return nil
}

// DataPath resolves the session store's SQLite file path under the
// configured data directory.
func (c *Config) DataPath() string {
	return filepath.Join(c.Session.DataDir, "sessions.db")
}
