// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration for weft serve,
// assembled from flags, environment variables (WEFT_*), and an optional
// config file, in that precedence order via viper.
type Config struct {
	Transport          string        `mapstructure:"transport"`
	Listen             string        `mapstructure:"listen"`
	MaxConnections     int64         `mapstructure:"max_connections"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	Multiplex          bool          `mapstructure:"multiplex"`
	LogLevel           string        `mapstructure:"log_level"`
	ProtocolVersions   []string      `mapstructure:"protocol_versions"`
}

// LoadConfig reads cfgFile (if set) plus WEFT_-prefixed environment
// variables on top of whatever flags bound to viper already set, and
// returns the merged Config.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.GetViper()
	v.SetEnvPrefix("WEFT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
		v.OnConfigChange(func(fsnotify.Event) {})
		v.WatchConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case "stdio", "http", "socket":
	default:
		return fmt.Errorf("invalid --transport %q: must be one of stdio, http, socket", c.Transport)
	}
	if c.Transport != "stdio" && c.Listen == "" {
		return fmt.Errorf("--listen is required for transport %q", c.Transport)
	}
	if len(c.ProtocolVersions) == 0 {
		return fmt.Errorf("--protocol-version must name at least one supported version")
	}
	return nil
}
