package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codefionn/wsserial/internal/consts"
)

// Environment variables that override the config file.
const (
	EnvConfigFile  = "WSSS_CONF_FILE"
	EnvBindAddress = "WSSS_BIND_ADDRESS"
	EnvHTTPPort    = "WSSS_HTTP_PORT"
	EnvWSPort      = "WSSS_WS_PORT"
	EnvLogLevel    = "WSSS_LOG_LEVEL"
	EnvLogPath     = "WSSS_LOG_PATH"
)

// DefaultFileNames are looked up in the working directory when no config
// file is named explicitly.
var DefaultFileNames = []string{"wsss_conf.yaml", "wsss_conf.yml", "wsss_conf.json"}

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the bridge settings
type Config struct {
	BindAddress string `json:"bind_address" yaml:"bind_address"`
	HTTPPort    int    `json:"http_port" yaml:"http_port"`
	WSPort      int    `json:"ws_port" yaml:"ws_port"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	LogPath     string `json:"log_path,omitempty" yaml:"log_path,omitempty"` // empty means stderr

	MaxConnections        int `json:"max_connections" yaml:"max_connections"`
	CommandQueueSize      int `json:"command_queue_size" yaml:"command_queue_size"`
	RegistrationQueueSize int `json:"registration_queue_size" yaml:"registration_queue_size"`

	HeartbeatInterval Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"` // 0 disables pings
	ClientTimeout     Duration `json:"client_timeout" yaml:"client_timeout"`
}

// DefaultConfig returns the built-in settings
func DefaultConfig() *Config {
	return &Config{
		BindAddress:           "127.0.0.1",
		HTTPPort:              10080,
		WSPort:                10081,
		LogLevel:              "info",
		MaxConnections:        consts.DefaultMaxConnections,
		CommandQueueSize:      consts.DefaultCommandQueueSize,
		RegistrationQueueSize: consts.DefaultRegistrationQueueSize,
		HeartbeatInterval:     Duration(consts.DefaultHeartbeatInterval),
		ClientTimeout:         Duration(consts.DefaultClientTimeout),
	}
}

// Load loads configuration from file. A missing file yields the defaults.
// The format follows the extension: .yaml and .yml are YAML, anything else JSON.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return config, nil
}

// Save writes the configuration to path in the format its extension names.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ResolvePath picks the config file to read. WSSS_CONF_FILE wins over
// flagPath; without either the first existing default file is used. The
// bool reports whether the path was named explicitly.
func ResolvePath(flagPath string) (string, bool) {
	if env := strings.TrimSpace(os.Getenv(EnvConfigFile)); env != "" {
		return env, true
	}
	if flagPath != "" {
		return flagPath, true
	}
	for _, name := range DefaultFileNames {
		if _, err := os.Stat(name); err == nil {
			return name, false
		}
	}
	return "", false
}

// Resolve loads the config file chosen by ResolvePath and applies the
// environment on top. An explicitly named file must exist.
func Resolve(flagPath string) (*Config, string, error) {
	path, explicit := ResolvePath(flagPath)

	config := DefaultConfig()
	if path != "" {
		if explicit {
			if _, err := os.Stat(path); err != nil {
				return nil, path, fmt.Errorf("config file %s: %w", path, err)
			}
		}
		loaded, err := Load(path)
		if err != nil {
			return nil, path, err
		}
		config = loaded
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, path, err
	}
	return config, path, nil
}

// ApplyEnv overrides fields from the WSSS_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvBindAddress); ok && v != "" {
		c.BindAddress = v
	}
	if v, ok := os.LookupEnv(EnvHTTPPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvHTTPPort, v)
		}
		c.HTTPPort = port
	}
	if v, ok := os.LookupEnv(EnvWSPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvWSPort, v)
		}
		c.WSPort = port
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvLogPath); ok {
		c.LogPath = v
	}
	return nil
}

// Validate reports the first setting the bridge cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BindAddress) == "" {
		return fmt.Errorf("bind_address must not be empty")
	}
	if err := validPort("http_port", c.HTTPPort); err != nil {
		return err
	}
	if err := validPort("ws_port", c.WSPort); err != nil {
		return err
	}
	if c.HTTPPort == c.WSPort {
		return fmt.Errorf("http_port and ws_port must differ (both %d)", c.HTTPPort)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}
	if c.CommandQueueSize <= 0 {
		return fmt.Errorf("command_queue_size must be positive")
	}
	if c.RegistrationQueueSize <= 0 {
		return fmt.Errorf("registration_queue_size must be positive")
	}
	if c.HeartbeatInterval < 0 || c.ClientTimeout < 0 {
		return fmt.Errorf("heartbeat_interval and client_timeout must not be negative")
	}
	if c.HeartbeatInterval > 0 && c.ClientTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("client_timeout (%s) must be longer than heartbeat_interval (%s)",
			c.ClientTimeout.Std(), c.HeartbeatInterval.Std())
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d out of range", name, port)
	}
	return nil
}

// HTTPAddr is the listen address of the landing page.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.HTTPPort))
}

// WSAddr is the listen address of the WebSocket endpoint.
func (c *Config) WSAddr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.WSPort))
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
