// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	akerrors "github.com/tombee/appkiller/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete appkiller configuration.
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	Endpoints EndpointsConfig  `yaml:"endpoints"`
	Broadcast SignalConfig     `yaml:"broadcast"`
	SaveState SaveStateConfig  `yaml:"save_state"`
	Scripts   ScriptsConfig    `yaml:"scripts"`
	Errors    ErrorNamesConfig `yaml:"errors"`
	Log       LogConfig        `yaml:"log"`
	Lifecycle LifecycleConfig  `yaml:"lifecycle"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Tracing   TracingConfig    `yaml:"tracing"`
}

// ServiceConfig configures the coordinator's own bus identity.
type ServiceConfig struct {
	// Name is the well-known bus name requested at startup. Bus activation
	// uses it to restart the coordinator on demand.
	// Environment: APPKILLER_SERVICE_NAME
	Name string `yaml:"name"`

	// QueueSize bounds the number of requests waiting for the reactor.
	QueueSize int `yaml:"queue_size,omitempty"`
}

// EndpointConfig identifies one method endpoint on the session bus.
type EndpointConfig struct {
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
	Method    string `yaml:"method"`
}

// EndpointsConfig holds the three lifecycle endpoints.
type EndpointsConfig struct {
	Locale      EndpointConfig `yaml:"locale"`
	Restore     EndpointConfig `yaml:"restore"`
	RFSShutdown EndpointConfig `yaml:"rfs_shutdown"`
}

// SignalConfig identifies the exit broadcast signal.
type SignalConfig struct {
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
	Member    string `yaml:"member"`
}

// SaveStateConfig identifies the blocking save-state call made before a
// locale change.
type SaveStateConfig struct {
	Service   string `yaml:"service"`
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
	Method    string `yaml:"method"`

	// Timeout bounds the wait for the reply.
	// Environment: APPKILLER_SAVE_STATE_TIMEOUT
	Timeout time.Duration `yaml:"timeout"`
}

// ScriptsConfig holds the external programs run by each flow. Each one is
// invoked with itself as its only argument.
type ScriptsConfig struct {
	Locale  string `yaml:"locale"`
	Restore string `yaml:"restore"`
	RFS     string `yaml:"rfs"`
}

// ErrorNamesConfig holds the D-Bus error names sent in error replies.
type ErrorNamesConfig struct {
	Locale      string `yaml:"locale"`
	Restore     string `yaml:"restore"`
	RFSShutdown string `yaml:"rfs_shutdown"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// LifecycleConfig configures process bookkeeping files. Empty paths disable
// the feature.
type LifecycleConfig struct {
	// PIDFile guards against a second coordinator on the same session.
	// Environment: APPKILLER_PID_FILE
	PIDFile string `yaml:"pid_file,omitempty"`

	// EventLog is a JSON-lines file of start/request/termination events.
	// Environment: APPKILLER_EVENT_LOG
	EventLog string `yaml:"event_log,omitempty"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	// Listen is the address for /metrics (e.g. "127.0.0.1:9464"). Empty disables it.
	// Environment: APPKILLER_METRICS_LISTEN
	Listen string `yaml:"listen,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is one of "console", "otlp" (gRPC) or "otlphttp".
	// Environment: APPKILLER_TRACING_EXPORTER (setting it enables tracing)
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the collector address for the OTLP exporters.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS for the OTLP exporters.
	Insecure bool `yaml:"insecure,omitempty"`
}

// Default returns the configuration matching the stock platform layout.
func Default() *Config {
	const iface = "com.nokia.osso_app_killer"
	const root = "/com/nokia/osso_app_killer"

	return &Config{
		Service: ServiceConfig{
			Name:      "com.nokia.osso_app_killer",
			QueueSize: 16,
		},
		Endpoints: EndpointsConfig{
			Locale:      EndpointConfig{Path: root + "/locale", Interface: iface, Method: "locale"},
			Restore:     EndpointConfig{Path: root + "/restore", Interface: iface, Method: "restore"},
			RFSShutdown: EndpointConfig{Path: root + "/rfs_shutdown", Interface: iface, Method: "rfs_shutdown"},
		},
		Broadcast: SignalConfig{
			Path:      root,
			Interface: iface,
			Member:    "exit",
		},
		SaveState: SaveStateConfig{
			Service:   "com.nokia.tasknav",
			Path:      "/com/nokia/tasknav",
			Interface: "com.nokia.tasknav",
			Method:    "save_session_state",
			Timeout:   5 * time.Second,
		},
		Scripts: ScriptsConfig{
			Locale:  "/usr/sbin/osso-app-killer-locale.sh",
			Restore: "/usr/sbin/osso-app-killer-restore.sh",
			RFS:     "/usr/sbin/osso-app-killer-rfs.sh",
		},
		Errors: ErrorNamesConfig{
			Locale:      iface + ".error.locale",
			Restore:     iface + ".error.restore",
			RFSShutdown: iface + ".error.rfs_shutdown",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file-based configuration.
// If configPath is empty the default path is used when a file exists there.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		if p, err := ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				configPath = p
			}
		}
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &akerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &akerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values so partial files stay usable.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Service.Name == "" {
		c.Service.Name = d.Service.Name
	}
	if c.Service.QueueSize <= 0 {
		c.Service.QueueSize = d.Service.QueueSize
	}

	fillEndpoint(&c.Endpoints.Locale, d.Endpoints.Locale)
	fillEndpoint(&c.Endpoints.Restore, d.Endpoints.Restore)
	fillEndpoint(&c.Endpoints.RFSShutdown, d.Endpoints.RFSShutdown)

	if c.Broadcast.Path == "" {
		c.Broadcast.Path = d.Broadcast.Path
	}
	if c.Broadcast.Interface == "" {
		c.Broadcast.Interface = d.Broadcast.Interface
	}
	if c.Broadcast.Member == "" {
		c.Broadcast.Member = d.Broadcast.Member
	}

	if c.SaveState.Service == "" {
		c.SaveState.Service = d.SaveState.Service
	}
	if c.SaveState.Path == "" {
		c.SaveState.Path = d.SaveState.Path
	}
	if c.SaveState.Interface == "" {
		c.SaveState.Interface = d.SaveState.Interface
	}
	if c.SaveState.Method == "" {
		c.SaveState.Method = d.SaveState.Method
	}
	if c.SaveState.Timeout == 0 {
		c.SaveState.Timeout = d.SaveState.Timeout
	}

	if c.Scripts.Locale == "" {
		c.Scripts.Locale = d.Scripts.Locale
	}
	if c.Scripts.Restore == "" {
		c.Scripts.Restore = d.Scripts.Restore
	}
	if c.Scripts.RFS == "" {
		c.Scripts.RFS = d.Scripts.RFS
	}

	if c.Errors.Locale == "" {
		c.Errors.Locale = d.Errors.Locale
	}
	if c.Errors.Restore == "" {
		c.Errors.Restore = d.Errors.Restore
	}
	if c.Errors.RFSShutdown == "" {
		c.Errors.RFSShutdown = d.Errors.RFSShutdown
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}

	if c.Tracing.Enabled && c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "console"
	}
}

func fillEndpoint(ep *EndpointConfig, d EndpointConfig) {
	if ep.Path == "" {
		ep.Path = d.Path
	}
	if ep.Interface == "" {
		ep.Interface = d.Interface
	}
	if ep.Method == "" {
		ep.Method = d.Method
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv applies environment overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("APPKILLER_SERVICE_NAME"); val != "" {
		c.Service.Name = val
	}
	if val := os.Getenv("APPKILLER_SAVE_STATE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SaveState.Timeout = d
		}
	}

	if val := os.Getenv("APPKILLER_LOCALE_SCRIPT"); val != "" {
		c.Scripts.Locale = val
	}
	if val := os.Getenv("APPKILLER_RESTORE_SCRIPT"); val != "" {
		c.Scripts.Restore = val
	}
	if val := os.Getenv("APPKILLER_RFS_SCRIPT"); val != "" {
		c.Scripts.RFS = val
	}

	if val := os.Getenv("APPKILLER_PID_FILE"); val != "" {
		c.Lifecycle.PIDFile = val
	}
	if val := os.Getenv("APPKILLER_EVENT_LOG"); val != "" {
		c.Lifecycle.EventLog = val
	}
	if val := os.Getenv("APPKILLER_METRICS_LISTEN"); val != "" {
		c.Metrics.Listen = val
	}
	if val := os.Getenv("APPKILLER_TRACING_EXPORTER"); val != "" {
		c.Tracing.Enabled = true
		c.Tracing.Exporter = strings.ToLower(val)
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if !validBusName(c.Service.Name, true) {
		errs = append(errs, fmt.Sprintf("service.name %q is not a valid bus name", c.Service.Name))
	}

	endpoints := []struct {
		key string
		ep  EndpointConfig
	}{
		{"endpoints.locale", c.Endpoints.Locale},
		{"endpoints.restore", c.Endpoints.Restore},
		{"endpoints.rfs_shutdown", c.Endpoints.RFSShutdown},
	}
	seen := make(map[string]string)
	for _, e := range endpoints {
		if !dbus.ObjectPath(e.ep.Path).IsValid() {
			errs = append(errs, fmt.Sprintf("%s.path %q is not a valid object path", e.key, e.ep.Path))
		}
		if !validBusName(e.ep.Interface, false) {
			errs = append(errs, fmt.Sprintf("%s.interface %q is not a valid interface name", e.key, e.ep.Interface))
		}
		if e.ep.Method == "" {
			errs = append(errs, fmt.Sprintf("%s.method must not be empty", e.key))
		}
		if other, dup := seen[e.ep.Path]; dup {
			errs = append(errs, fmt.Sprintf("%s.path duplicates %s.path (%s)", e.key, other, e.ep.Path))
		}
		seen[e.ep.Path] = e.key
	}

	if !dbus.ObjectPath(c.Broadcast.Path).IsValid() {
		errs = append(errs, fmt.Sprintf("broadcast.path %q is not a valid object path", c.Broadcast.Path))
	}
	if !validBusName(c.Broadcast.Interface, false) || c.Broadcast.Member == "" {
		errs = append(errs, "broadcast.interface and broadcast.member must be set")
	}

	if !dbus.ObjectPath(c.SaveState.Path).IsValid() {
		errs = append(errs, fmt.Sprintf("save_state.path %q is not a valid object path", c.SaveState.Path))
	}
	if !validBusName(c.SaveState.Service, true) || !validBusName(c.SaveState.Interface, false) || c.SaveState.Method == "" {
		errs = append(errs, "save_state.service, save_state.interface and save_state.method must be valid")
	}
	if c.SaveState.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("save_state.timeout must be positive, got %v", c.SaveState.Timeout))
	}

	if c.Scripts.Locale == "" || c.Scripts.Restore == "" || c.Scripts.RFS == "" {
		errs = append(errs, "scripts.locale, scripts.restore and scripts.rfs must all be set")
	}

	for key, name := range map[string]string{
		"errors.locale":       c.Errors.Locale,
		"errors.restore":      c.Errors.Restore,
		"errors.rfs_shutdown": c.Errors.RFSShutdown,
	} {
		if !validBusName(name, false) {
			errs = append(errs, fmt.Sprintf("%s %q is not a valid error name", key, name))
		}
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "console":
		case "otlp", "otlphttp":
			if c.Tracing.Endpoint == "" {
				errs = append(errs, fmt.Sprintf("tracing.endpoint is required for exporter %q", c.Tracing.Exporter))
			}
		default:
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [console, otlp, otlphttp], got %q", c.Tracing.Exporter))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// validBusName does a cheap structural check of dotted D-Bus names.
// Well-known bus names may contain '-'; interface and error names may not.
func validBusName(name string, allowDash bool) bool {
	if len(name) == 0 || len(name) > 255 {
		return false
	}
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || (p[0] >= '0' && p[0] <= '9') {
			return false
		}
		for _, r := range p {
			if r == '-' && allowDash {
				continue
			}
			if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return false
			}
		}
	}
	return true
}
