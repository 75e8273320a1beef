package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codefionn/wsserial/internal/arbiter"
	"github.com/codefionn/wsserial/internal/config"
	"github.com/codefionn/wsserial/internal/consts"
	"github.com/codefionn/wsserial/internal/logger"
	"github.com/codefionn/wsserial/internal/pidfile"
	"github.com/codefionn/wsserial/internal/ports"
	"github.com/codefionn/wsserial/internal/web"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Global().Close()
	log := logger.Global().WithPrefix("main")
	if path != "" {
		log.Info("Loaded configuration from %s", path)
	}

	if pidPath != "" {
		pf := pidfile.New(pidPath)
		if err := pf.Acquire(); err != nil {
			return err
		}
		log.Debug("Holding PID file %s", pf.Path())
		defer func() {
			if err := pf.Release(); err != nil {
				log.Warn("Failed to remove PID file: %v", err)
			}
		}()
	}

	var driver ports.Driver = ports.SerialDriver{}
	if len(loopback) > 0 {
		log.Info("Serving loopback ports %v instead of hardware", loopback)
		driver = ports.NewLoopbackDriver(loopback...)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := arbiter.New(driver, arbiter.Options{
		CommandQueueSize:      cfg.CommandQueueSize,
		RegistrationQueueSize: cfg.RegistrationQueueSize,
	})

	server, err := web.NewServer(coord, web.Options{
		HTTPAddr:          cfg.HTTPAddr(),
		WSAddr:            cfg.WSAddr(),
		MaxConnections:    cfg.MaxConnections,
		HeartbeatInterval: cfg.HeartbeatInterval.Std(),
		ClientTimeout:     cfg.ClientTimeout.Std(),
	})
	if err != nil {
		return err
	}
	if err := server.Listen(); err != nil {
		return err
	}

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), consts.ShutdownTimeout)
		defer cancel()
		if err := coord.Stop(stopCtx); err != nil {
			log.Warn("Arbiter did not stop cleanly: %v", err)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "%s http://%s/  %s ws://%s/\n",
		color.GreenString("page"), server.HTTPAddr(),
		color.CyanString("websocket"), server.WSAddr())

	err = server.Serve(ctx)
	log.Info("Shutting down")
	return err
}

// loadConfig resolves the config file and environment, then applies the
// flags the user actually set on top.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, path, err := config.Resolve(configFile)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.BindAddress = address
	}
	if flags.Changed("http-port") {
		cfg.HTTPPort = httpPort
	}
	if flags.Changed("ws-port") {
		cfg.WSPort = wsPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-path") {
		cfg.LogPath = logPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}
