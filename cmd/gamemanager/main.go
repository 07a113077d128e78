// Copyright 2025 The GameManager Authors
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

// Command gamemanager is the GameManager process (§6): it speaks the
// upstream Multiplexer protocol over stdio or TCP, drives the Lobby
// Protocol Client, and supervises engine subprocesses over the Bridge IPC
// link.
//
// Usage:
//
//	gamemanager --stdio --write-dir ./instances
//	gamemanager --tcp 4100 --write-dir ./instances --config gamemanager.yaml
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skirmishbridge/gamemanager/internal/config"
	"github.com/skirmishbridge/gamemanager/internal/ipcrouter"
	"github.com/skirmishbridge/gamemanager/internal/mux"
	"github.com/skirmishbridge/gamemanager/internal/obslog"
	"github.com/skirmishbridge/gamemanager/internal/replay"
	"github.com/skirmishbridge/gamemanager/internal/session"
	"github.com/skirmishbridge/gamemanager/internal/supervisor"
	"github.com/skirmishbridge/gamemanager/internal/tools"
	"github.com/skirmishbridge/gamemanager/internal/toolset"
)

// exit codes per §6.
const (
	exitOK        = 0
	exitConfig    = 1
	exitTransport = 2
)

// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" help:"Path to a YAML config file." type:"path"`

	Stdio bool `help:"Use stdin/stdout as the upstream transport."`
	TCP   int  `help:"Listen on this TCP port and use the first accepted connection as the upstream transport." placeholder:"PORT"`

	WriteDir    string `name:"write-dir" help:"Root directory under which per-instance engine write-dirs are created." type:"path"`
	ContentRoot string `name:"content-root" help:"Shared, read-only content tree (pool, packages, maps, games, engine, rapid)." type:"path"`
	EnginePath  string `name:"engine-path" help:"Engine binary the Supervisor spawns."`

	LobbyHost string `name:"lobby-host" help:"Default lobby server host."`
	LobbyPort int    `name:"lobby-port" help:"Default lobby server port."`

	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)."`
	LogFormat string `name:"log-format" help:"Log format (simple or verbose)."`

	MetricsAddr string `name:"metrics-addr" help:"Serve Prometheus metrics on this address (empty disables)." placeholder:"HOST:PORT"`
	Tracing     bool   `help:"Install a stdout-exporting OpenTelemetry tracer provider (no spans are started by this program)."`

	Version bool `help:"Show version information and exit."`
}

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name("gamemanager"),
		kong.Description("GameManager and Skirmish AI Bridge"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Println("gamemanager dev")
		return
	}

	os.Exit(run(&cli))
}

// run wires every collaborator and blocks until the upstream connection
// ends, returning the process exit code documented in §6.
func run(cli *CLI) int {
	// Optional .env for lobby credentials (§6 Environment); a missing file
	// is not an error, matching the teacher's LoadDotEnv.
	_ = godotenv.Load()

	// Load validates write_dir_root, so a root given only as --write-dir has
	// to reach it through the environment overlay.
	if cli.WriteDir != "" {
		_ = os.Setenv("GAMEMANAGER_ENGINE_WRITE_DIR_ROOT", cli.WriteDir)
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gamemanager: config:", err)
		return exitConfig
	}
	applyCLIOverrides(cfg, cli)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "gamemanager: config:", err)
		return exitConfig
	}

	log := obslog.Init(obslog.ParseLevel(cfg.Log.Level), os.Stderr, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := obslog.InitTracer(ctx, obslog.TracerConfig{Enabled: cli.Tracing, ServiceName: "gamemanager"}); err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return exitConfig
	}

	metricsReg := prometheus.NewRegistry()
	metrics := obslog.NewMetrics(metricsReg)
	if cli.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cli.MetricsAddr, Handler: metricsMux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server exited", "error", err)
			}
		}()
		go func() { <-ctx.Done(); _ = srv.Close() }()
	}

	transport, cleanup, err := openTransport(cfg)
	if err != nil {
		log.Error("failed to establish upstream transport", "error", err)
		return exitConfig
	}
	defer cleanup()

	router := ipcrouter.New(log)
	// The router listens on one well-known socket for the life of the
	// process; every spawned engine's Bridge dials it and the handshake
	// token (not the socket path) tells the Router which Instance it is.
	socketPath := cfg.Engine.SocketDir + "/gamemanager.sock"
	if err := router.Listen("unix", socketPath); err != nil {
		log.Error("failed to listen on Bridge IPC socket", "path", socketPath, "error", err)
		return exitConfig
	}

	sup := supervisor.New(supervisor.Config{
		BinaryPath:    cfg.Engine.BinaryPath,
		ContentRoot:   cfg.Engine.ContentRoot,
		WriteDirRoot:  cfg.Engine.WriteDirRoot,
		BridgeName:    cfg.Engine.BridgeName,
		BridgeVersion: cfg.Engine.BridgeVersion,
		SocketPath:    socketPath,
		HCLog:         obslog.NewHCLogBridge("supervisor", log),
		Metrics:       metrics,
	}, log)

	sess := session.New(int64(cfg.Session.MaxConcurrentTools))
	reg := toolset.NewRegistry()
	mp := mux.New(transport, mux.Config{
		Session:      sess,
		Tools:        reg,
		ToolDeadline: cfg.Session.ToolCallDeadline,
		Logger:       log,
		Metrics:      metrics,
	})

	deps := tools.NewDeps(mp, sup, router, cfg.Engine.HandshakeTimeout, cfg.Lobby.ClientID, cfg.Lobby.Locale, log)
	if err := tools.Register(reg, deps); err != nil {
		log.Error("failed to register tools", "error", err)
		return exitConfig
	}
	mp.RegisterFactory("replay", replay.NewFactory(mp))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down on signal")
		cancel()
	}()

	go func() {
		if err := router.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Warn("Bridge IPC router exited", "error", err)
		}
	}()

	err = mp.Run(ctx)
	if ctx.Err() != nil {
		return exitOK
	}
	if err != nil {
		log.Error("upstream transport lost", "error", err)
		return exitTransport
	}
	return exitOK
}

// applyCLIOverrides layers CLI flags on top of the loaded config, the same
// file-then-flags precedence the teacher's CLI uses.
func applyCLIOverrides(cfg *config.Config, cli *CLI) {
	if cli.Stdio {
		cfg.Upstream.Mode = config.UpstreamStdio
	}
	if cli.TCP != 0 {
		cfg.Upstream.Mode = config.UpstreamTCP
		cfg.Upstream.Port = cli.TCP
	}
	if cli.WriteDir != "" {
		cfg.Engine.WriteDirRoot = cli.WriteDir
	}
	if cli.ContentRoot != "" {
		cfg.Engine.ContentRoot = cli.ContentRoot
	}
	if cli.EnginePath != "" {
		cfg.Engine.BinaryPath = cli.EnginePath
	}
	if cli.LobbyHost != "" {
		cfg.Lobby.Host = cli.LobbyHost
	}
	if cli.LobbyPort != 0 {
		cfg.Lobby.Port = cli.LobbyPort
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
}

// openTransport builds the Multiplexer's Transport per --stdio/--tcp, per
// §6's CLI surface. TCP mode accepts exactly one connection and serves it;
// a second peer would need a second process, matching the one-session-per-
// process model the rest of this package assumes.
func openTransport(cfg *config.Config) (mux.Transport, func(), error) {
	switch cfg.Upstream.Mode {
	case config.UpstreamTCP:
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Upstream.Port))
		if err != nil {
			return nil, nil, fmt.Errorf("listen on :%d: %w", cfg.Upstream.Port, err)
		}
		conn, err := ln.Accept()
		if err != nil {
			ln.Close()
			return nil, nil, fmt.Errorf("accept upstream connection: %w", err)
		}
		t := mux.NewTCPTransport(conn)
		return t, func() { t.Close(); ln.Close() }, nil
	default:
		t := mux.NewStdioTransport(os.Stdin, os.Stdout, nil)
		return t, func() { t.Close() }, nil
	}
}
