// Package config centralizes settings for the gg process: defaults, the
// optional ~/.genglossary/config.yaml file, and GG_-prefixed environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved process configuration.
type Config struct {
	// Home is the state directory, default ~/.genglossary.
	Home string

	// ListenAddr is the HTTP bind address for gg serve.
	ListenAddr string

	// LLM defaults applied to projects that do not override them.
	LLMProvider string
	LLMModel    string
	LLMBaseURL  string
	LLMTimeout  time.Duration

	// BatchSize bounds classification and review LLM batches.
	BatchSize int

	// WatchDocRoot enables the fsnotify watcher on project doc roots.
	WatchDocRoot bool
	// AutoExtract schedules an extract run when watched files change.
	AutoExtract bool

	// LogFile, when set, routes process logs through a rotating file.
	LogFile string
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string
}

// DefaultHome returns ~/.genglossary, falling back to the working directory
// when the home directory cannot be determined.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".genglossary"
	}
	return filepath.Join(home, ".genglossary")
}

// RegistryPath is the registry database location under the state directory.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Home, "registry.db")
}

// ProjectsDir is the root directory for per-project databases.
func (c *Config) ProjectsDir() string {
	return filepath.Join(c.Home, "projects")
}

// Load resolves configuration: defaults, then the config file if present,
// then GG_ environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("home", DefaultHome())
	v.SetDefault("listen_addr", "127.0.0.1:8745")
	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "llama3.1")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("batch_size", 10)
	v.SetDefault("watch_doc_root", false)
	v.SetDefault("auto_extract", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("GG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := filepath.Join(v.GetString("home"), "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	timeout, err := time.ParseDuration(v.GetString("llm.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid llm.timeout %q: %w", v.GetString("llm.timeout"), err)
	}

	cfg := &Config{
		Home:         v.GetString("home"),
		ListenAddr:   v.GetString("listen_addr"),
		LLMProvider:  v.GetString("llm.provider"),
		LLMModel:     v.GetString("llm.model"),
		LLMBaseURL:   v.GetString("llm.base_url"),
		LLMTimeout:   timeout,
		BatchSize:    v.GetInt("batch_size"),
		WatchDocRoot: v.GetBool("watch_doc_root"),
		AutoExtract:  v.GetBool("auto_extract"),
		LogFile:      v.GetString("log.file"),
		LogLevel:     v.GetString("log.level"),
	}
	return cfg, nil
}
