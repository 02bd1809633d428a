// Package config loads server settings from defaults, SCPCHAT_* environment
// variables and an optional JSON file, in that order of increasing priority.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"scpchat/internal/room"
)

type Config struct {
	Server          *ServerConfig   `json:"server"`
	HTTP            *HTTPConfig     `json:"http"`
	Database        *DatabaseConfig `json:"database"`
	ShutdownTimeout time.Duration   `json:"shutdown_timeout"`
}

// ServerConfig is the SCP TCP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// WriteTimeout bounds one socket write. It is not an idle timeout.
	WriteTimeout time.Duration `json:"write_timeout"`
	// DrainTimeout bounds skipping the body of an oversized frame.
	DrainTimeout time.Duration     `json:"drain_timeout"`
	Rooms        []room.Definition `json:"rooms"`
}

// HTTPConfig is the admin API and WebSocket endpoint.
type HTTPConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DatabaseConfig is the connection audit store.
type DatabaseConfig struct {
	Enabled   bool          `json:"enabled"`
	Path      string        `json:"path"`
	Timeout   time.Duration `json:"timeout"`
	QueueSize int           `json:"queue_size"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host:         "127.0.0.1",
			Port:         9999,
			WriteTimeout: 10 * time.Second,
			DrainTimeout: 2 * time.Second,
			Rooms:        room.DefaultRooms(),
		},
		HTTP: &HTTPConfig{
			Enabled:      true,
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: &DatabaseConfig{
			Enabled:   true,
			Path:      "./scpchat.db",
			Timeout:   30 * time.Second,
			QueueSize: 1024,
		},
		ShutdownTimeout: 15 * time.Second,
	}
}

// Addr is the host:port the SCP listener binds.
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (h *HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	// Port 0 asks the OS for a free port.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 0 and 65535")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.DrainTimeout <= 0 {
		return fmt.Errorf("server drain timeout must be positive")
	}
	if len(c.Server.Rooms) == 0 {
		return fmt.Errorf("at least one room must be configured")
	}
	seen := make(map[string]bool, len(c.Server.Rooms))
	for _, def := range c.Server.Rooms {
		if def.ID == "" {
			return fmt.Errorf("room id cannot be empty")
		}
		if seen[def.ID] {
			return fmt.Errorf("duplicate room id %q", def.ID)
		}
		seen[def.ID] = true
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Enabled {
		if c.HTTP.Host == "" {
			return fmt.Errorf("HTTP host cannot be empty")
		}
		if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
			return fmt.Errorf("HTTP port must be between 0 and 65535")
		}
		if c.HTTP.ReadTimeout <= 0 {
			return fmt.Errorf("HTTP read timeout must be positive")
		}
		if c.HTTP.WriteTimeout <= 0 {
			return fmt.Errorf("HTTP write timeout must be positive")
		}
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Enabled {
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
		if c.Database.Timeout <= 0 {
			return fmt.Errorf("database timeout must be positive")
		}
		if c.Database.QueueSize <= 0 {
			return fmt.Errorf("database queue size must be positive")
		}
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// LoadFromEnv applies SCPCHAT_* variables over the defaults. Unparseable
// values are ignored.
func LoadFromEnv() *Config {
	return applyEnv(DefaultConfig())
}

func applyEnv(config *Config) *Config {
	if host := os.Getenv("SCPCHAT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	envInt("SCPCHAT_SERVER_PORT", &config.Server.Port)
	envDuration("SCPCHAT_SERVER_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("SCPCHAT_SERVER_DRAIN_TIMEOUT", &config.Server.DrainTimeout)

	envBool("SCPCHAT_HTTP_ENABLED", &config.HTTP.Enabled)
	if host := os.Getenv("SCPCHAT_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	envInt("SCPCHAT_HTTP_PORT", &config.HTTP.Port)
	envDuration("SCPCHAT_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("SCPCHAT_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envBool("SCPCHAT_DATABASE_ENABLED", &config.Database.Enabled)
	if dbPath := os.Getenv("SCPCHAT_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	envDuration("SCPCHAT_DATABASE_TIMEOUT", &config.Database.Timeout)
	envInt("SCPCHAT_DATABASE_QUEUE_SIZE", &config.Database.QueueSize)

	envDuration("SCPCHAT_SHUTDOWN_TIMEOUT", &config.ShutdownTimeout)
	return config
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile mirrors Config for JSON with durations written as strings
// ("10s") and booleans as pointers so an omitted key keeps the lower layer.
type ConfigFile struct {
	Server          *ServerConfigFile   `json:"server"`
	HTTP            *HTTPConfigFile     `json:"http"`
	Database        *DatabaseConfigFile `json:"database"`
	ShutdownTimeout string              `json:"shutdown_timeout"`
}

type ServerConfigFile struct {
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	WriteTimeout string            `json:"write_timeout"`
	DrainTimeout string            `json:"drain_timeout"`
	Rooms        []room.Definition `json:"rooms"`
}

type HTTPConfigFile struct {
	Enabled      *bool  `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type DatabaseConfigFile struct {
	Enabled   *bool  `json:"enabled"`
	Path      string `json:"path"`
	Timeout   string `json:"timeout"`
	QueueSize int    `json:"queue_size"`
}

// LoadFromFile reads a JSON config file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	return loadFile(filepath, DefaultConfig())
}

func loadFile(filepath string, config *Config) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if f := configFile.Server; f != nil {
		if f.Host != "" {
			config.Server.Host = f.Host
		}
		if f.Port > 0 {
			config.Server.Port = f.Port
		}
		if err := parseDuration(f.WriteTimeout, &config.Server.WriteTimeout); err != nil {
			return nil, fmt.Errorf("server.write_timeout in %s: %w", filepath, err)
		}
		if err := parseDuration(f.DrainTimeout, &config.Server.DrainTimeout); err != nil {
			return nil, fmt.Errorf("server.drain_timeout in %s: %w", filepath, err)
		}
		if len(f.Rooms) > 0 {
			config.Server.Rooms = f.Rooms
		}
	}

	if f := configFile.HTTP; f != nil {
		if f.Enabled != nil {
			config.HTTP.Enabled = *f.Enabled
		}
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if err := parseDuration(f.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return nil, fmt.Errorf("http.read_timeout in %s: %w", filepath, err)
		}
		if err := parseDuration(f.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return nil, fmt.Errorf("http.write_timeout in %s: %w", filepath, err)
		}
	}

	if f := configFile.Database; f != nil {
		if f.Enabled != nil {
			config.Database.Enabled = *f.Enabled
		}
		if f.Path != "" {
			config.Database.Path = f.Path
		}
		if err := parseDuration(f.Timeout, &config.Database.Timeout); err != nil {
			return nil, fmt.Errorf("database.timeout in %s: %w", filepath, err)
		}
		if f.QueueSize > 0 {
			config.Database.QueueSize = f.QueueSize
		}
	}

	if err := parseDuration(configFile.ShutdownTimeout, &config.ShutdownTimeout); err != nil {
		return nil, fmt.Errorf("shutdown_timeout in %s: %w", filepath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func parseDuration(s string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence layers file > environment > defaults. An empty
// filepath skips the file layer; a file that cannot be loaded is an error.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := LoadFromEnv()
	if filepath == "" {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return config, nil
	}
	return loadFile(filepath, config)
}
