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
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/weft/internal/version"
	"github.com/teradata-labs/weft/pkg/mcp/connection"
	"github.com/teradata-labs/weft/pkg/mcp/server"
	"github.com/teradata-labs/weft/pkg/mcp/transport"
)

const serverName = "weft"

const (
	exitOK         = 0
	exitUsageError = 64
	exitSoftware   = 70
	exitInterrupt  = 130
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runServe())
	},
}

func runServe() int {
	logger := setupLogger(config.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting weft",
		zap.String("transport", config.Transport),
		zap.String("version", version.Get()),
		zap.Strings("protocol_versions", config.ProtocolVersions),
	)

	connMgr := connection.NewManager(connection.Config{
		MaxConnections: config.MaxConnections,
		IdleTimeout:    config.IdleTimeout,
		Logger:         logger,
	})

	core := server.New(server.Config{
		Name:               serverName,
		Version:            version.Get(),
		SupportedProtocols: config.ProtocolVersions,
		Logger:             logger,
	}, connMgr)

	listener, closeListener, err := buildListener(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weft: %v\n", err)
		return exitUsageError
	}
	defer closeListener()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	err = core.Start(ctx, listener)
	switch {
	case ctx.Err() != nil:
		return exitInterrupt
	case err != nil:
		logger.Error("server error", zap.Error(err))
		return exitSoftware
	default:
		return exitOK
	}
}

// buildListener constructs the server.Listener matching cfg.Transport and
// returns a cleanup func releasing any OS resources (a TCP listener, an
// HTTP server) it opened.
func buildListener(cfg *Config, logger *zap.Logger) (server.Listener, func(), error) {
	switch cfg.Transport {
	case "stdio":
		t := transport.NewStdioServerTransport(os.Stdin, os.Stdout)
		return transport.NewSingleShotListener(t), func() {}, nil

	case "socket":
		if !cfg.Multiplex {
			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return nil, nil, fmt.Errorf("listen on %s: %w", cfg.Listen, err)
			}
			single := make(chan struct{})
			return &onceTCPListener{ln: ln, done: single}, func() { _ = ln.Close() }, nil
		}
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return nil, nil, fmt.Errorf("listen on %s: %w", cfg.Listen, err)
		}
		return transport.NewSocketListener(ln), func() { _ = ln.Close() }, nil

	case "http":
		transport.WarnIfNotLocalhost(logger, cfg.Listen)
		upgradeListener := transport.NewHTTPUpgradeListener()
		httpServer := &http.Server{Addr: cfg.Listen, Handler: upgradeListener}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http transport server error", zap.Error(err))
			}
		}()
		return upgradeListener, func() { _ = httpServer.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

// onceTCPListener wraps a net.Listener to accept exactly one connection,
// matching --multiplex=off on the socket transport.
type onceTCPListener struct {
	ln   net.Listener
	done chan struct{}
}

func (l *onceTCPListener) Accept(ctx context.Context) (transport.Transport, error) {
	select {
	case <-l.done:
		return nil, fmt.Errorf("socket listener already served its connection")
	default:
	}
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	close(l.done)
	return transport.NewStdioServerTransport(conn, conn), nil
}

// setupLogger builds an operator-facing zap logger. When serving over
// stdio, stdout is the MCP transport itself, so logs must go to stderr
// regardless of what a future --log-file flag might add.
func setupLogger(logLevel string) *zap.Logger {
	level := parseLogLevel(logLevel)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	return zap.New(core)
}

func parseLogLevel(logLevel string) zapcore.Level {
	switch logLevel {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
