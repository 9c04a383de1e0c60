// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/botvisor/botvisor"
)

// Config is the daemon configuration.  It is assembled from defaults,
// an optional YAML file, a .env file, the environment (BOTVISOR_*, and
// the bare PANEL_KEY, MONGO_URI and PORT), and command line flags.
type Config struct {
	Listen         string        `mapstructure:"listen"`
	Port           int           `mapstructure:"port"`
	AppsDir        string        `mapstructure:"apps_dir"`
	PanelKey       string        `mapstructure:"panel_key"`
	StorageURI     string        `mapstructure:"storage_uri"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	MaxRestarts    int           `mapstructure:"max_restarts"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`
	StartDelay     time.Duration `mapstructure:"start_delay"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
	MemoryLimitMB  int           `mapstructure:"memory_limit_mb"`
	MaxConns       int           `mapstructure:"max_conns"`
	Log            LogConfig     `mapstructure:"log"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

var errNoKey = errors.New("panel_key is required (set BOTVISOR_PANEL_KEY or PANEL_KEY)")

// Addr is the address to listen on.
func (c *Config) Addr() string {
	if c.Listen != "" {
		return c.Listen
	}
	return ":" + strconv.Itoa(c.Port)
}

// Options converts the configuration for the supervisor.
func (c *Config) Options() botvisor.Options {
	return botvisor.Options{
		AppsDir:      c.AppsDir,
		StorageURI:   c.StorageURI,
		MaxRestarts:  c.MaxRestarts,
		RestartDelay: c.RestartDelay,
		StartDelay:   c.StartDelay,
		StopTimeout:  c.StopTimeout,
		Runtime: botvisor.Runtime{
			Node:          botvisor.DefaultRuntime.Node,
			Python:        botvisor.DefaultRuntime.Python,
			MemoryLimitMB: c.MemoryLimitMB,
		},
	}
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", "")
	v.SetDefault("port", 3000)
	v.SetDefault("apps_dir", "apps")
	v.SetDefault("panel_key", "")
	v.SetDefault("storage_uri", "")
	v.SetDefault("token_ttl", botvisor.DefaultTokenTTL)
	v.SetDefault("max_restarts", botvisor.DefaultMaxRestarts)
	v.SetDefault("restart_delay", botvisor.DefaultRestartDelay)
	v.SetDefault("start_delay", botvisor.DefaultStartDelay)
	v.SetDefault("stop_timeout", botvisor.DefaultStopTimeout)
	v.SetDefault("status_interval", botvisor.DefaultStatusInterval)
	v.SetDefault("memory_limit_mb", botvisor.DefaultRuntime.MemoryLimitMB)
	v.SetDefault("max_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", false)
}

// LoadDotEnv loads environment variables from file, if it exists.
// Variables already in the environment are left alone.
func LoadDotEnv(file string) error {
	if file == "" {
		file = ".env"
	}
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(file)
}

// LoadConfig reads the configuration.  An explicit cfgFile must exist;
// otherwise botvisord.yaml is looked for in the working directory and
// in /etc/botvisor.
func LoadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("botvisord")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/botvisor")
	}

	v.SetEnvPrefix("BOTVISOR")
	// e.g., BOTVISOR_LOG_LEVEL for log.level
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("panel_key", "BOTVISOR_PANEL_KEY", "PANEL_KEY")
	_ = v.BindEnv("storage_uri", "BOTVISOR_STORAGE_URI", "MONGO_URI")
	_ = v.BindEnv("port", "BOTVISOR_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &nf) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.PanelKey == "" {
		return nil, errNoKey
	}
	return cfg, nil
}

// NewLogger builds the daemon logger.  Output goes to stderr, and also
// to a size-rotated file when one is configured.
func NewLogger(c LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	var out io.Writer = os.Stderr
	if c.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		})
	}
	logger.SetOutput(out)
	return logger, nil
}
