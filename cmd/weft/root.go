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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/weft/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "weft",
	Short:   "weft runs an MCP (Model Context Protocol) server",
	Long:    `weft exposes tools, resources, and prompts to MCP clients over stdio, HTTP, or a full-duplex socket transport.`,
	Version: version.Get(),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsageError)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON, or TOML)")

	rootCmd.PersistentFlags().String("transport", "stdio", "transport to serve on: stdio, http, socket")
	rootCmd.PersistentFlags().String("listen", "", "listen address for http/socket transports")
	rootCmd.PersistentFlags().Int64("max-connections", 64, "maximum concurrent connections (http/socket)")
	rootCmd.PersistentFlags().Duration("idle-timeout", 0, "close connections idle longer than this (0 disables sweeping)")
	rootCmd.PersistentFlags().Bool("multiplex", false, "allow more than one connection on the socket transport")
	rootCmd.PersistentFlags().String("log-level", "info", "operator log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSlice("protocol-version", []string{"2025-06-18"}, "MCP protocol versions this server accepts, oldest first; the last is used when the client's version is not listed")

	_ = viper.BindPFlag("transport", rootCmd.PersistentFlags().Lookup("transport"))
	_ = viper.BindPFlag("listen", rootCmd.PersistentFlags().Lookup("listen"))
	_ = viper.BindPFlag("max_connections", rootCmd.PersistentFlags().Lookup("max-connections"))
	_ = viper.BindPFlag("idle_timeout", rootCmd.PersistentFlags().Lookup("idle-timeout"))
	_ = viper.BindPFlag("multiplex", rootCmd.PersistentFlags().Lookup("multiplex"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("protocol_versions", rootCmd.PersistentFlags().Lookup("protocol-version"))

	rootCmd.AddCommand(serveCmd)
}

// initConfig loads in config file and ENV variable overrides.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(exitUsageError)
	}
}
