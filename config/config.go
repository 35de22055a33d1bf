// Package config loads the service configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PLACESEARCH_DATA_REDIS_ADDR.
const EnvPrefix = "PLACESEARCH"

// Config represents the configuration implementation.
type Config struct {
	AppName    string
	RunMode    string
	Server     *Server
	Logger     *logger.Config
	Data       *Data
	Pipeline   *Pipeline
	Jobs       *Jobs
	Realtime   *Realtime
	Enrichment *Enrichment
	Provider   *Provider
	LLM        *LLM
	Ranking    *Ranking

	v  *viper.Viper
	mu sync.Mutex
}

// Server HTTP server settings
type Server struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns host:port
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig loads the configuration from the file.
// An empty path searches the default locations; a missing file is not an error,
// defaults and environment overrides apply.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/placesearch")
		v.AddConfigPath("$HOME/.placesearch")
		v.AddConfigPath(".")
		if ex, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(ex))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppName:    getStringOrDefault(v, "app_name", "placesearch"),
		RunMode:    getStringOrDefault(v, "run_mode", "release"),
		Server:     getServerConfig(v),
		Logger:     logger.GetConfig(v),
		Data:       getDataConfig(v),
		Pipeline:   getPipelineConfig(v),
		Jobs:       getJobsConfig(v),
		Realtime:   getRealtimeConfig(v),
		Enrichment: getEnrichmentConfig(v),
		Provider:   getProviderConfig(v),
		LLM:        getLLMConfig(v),
		Ranking:    getRankingConfig(v),
		v:          v,
	}
}

func getServerConfig(v *viper.Viper) *Server {
	return &Server{
		Host:         getStringOrDefault(v, "server.host", "0.0.0.0"),
		Port:         getIntOrDefault(v, "server.port", 8080),
		ReadTimeout:  getDurationOrDefault(v, "server.read_timeout", 15*time.Second),
		WriteTimeout: getDurationOrDefault(v, "server.write_timeout", 60*time.Second),
	}
}

// Viper returns the underlying viper instance
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// Watch watches the configuration file and invokes callback with a freshly parsed
// configuration on every change.
func (c *Config) Watch(callback func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		c.mu.Lock()
		next := fromViper(c.v)
		c.mu.Unlock()
		callback(next)
	})
	c.v.WatchConfig()
}
