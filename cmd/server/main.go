package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/injector"
	"github.com/zeusync/spriteserver/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "spriteserver:", err)
		os.Exit(1)
	}
}

func run() error {
	defaults := server.DefaultServerConfig()

	configPath := flag.String("config", "", "YAML config file")
	listen := flag.String("listen", "", "websocket RPC address (default "+defaults.ListenAddr+")")
	httpAddr := flag.String("http", "", "HTTP API address, \"off\" to disable")
	quicAddr := flag.String("quic", "", "QUIC RPC address, \"off\" to disable")
	dbPath := flag.String("db", "", "bbolt database file, \"memory\" for no persistence")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	profileMode := flag.String("profile", "", "write a cpu, mem or trace profile to the working directory")
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		var err error
		if cfg, err = server.LoadConfigFile(*configPath); err != nil {
			return err
		}
	}
	overlay(*listen, &cfg.ListenAddr)
	overlay(*httpAddr, &cfg.HTTPAddr)
	overlay(*quicAddr, &cfg.QUICAddr)
	if *dbPath == "memory" {
		cfg.DatabasePath = ""
	} else if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "trace":
		defer profile.Start(profile.TraceProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("%w: unknown profile mode %q", server.ErrInvalidConfig, *profileMode)
	}

	logger := log.New(log.ParseLevel(cfg.LogLevel))
	defer func() { _ = logger.Sync() }()

	srv, cleanup, err := injector.InitializeServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err = srv.Start(ctx); err != nil {
		return err
	}

	failed := make(chan error, 1)
	go func() { failed <- srv.Wait() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case err = <-failed:
		logger.Error("Listener failed", log.Error(err))
	}

	if stopErr := srv.Stop(context.Background()); stopErr != nil {
		logger.Error("Error stopping server", log.Error(stopErr))
	}
	return err
}

// overlay applies a command-line address over the config. "off" clears it.
func overlay(flagValue string, field *string) {
	switch flagValue {
	case "":
	case "off":
		*field = ""
	default:
		*field = flagValue
	}
}
