package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bluelamp/cligate/internal/infra/buildinfo"
	"github.com/bluelamp/cligate/internal/infra/confloader"
	"github.com/bluelamp/cligate/internal/infra/shutdown"
	"github.com/bluelamp/cligate/internal/server/app"
	"github.com/bluelamp/cligate/internal/server/config"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		envFile     = flag.String("env-file", ".env", "Path to a .env file (skipped when missing)")
		addr        = flag.String("addr", "", "Listen address (overrides server.addr)")
		policyFile  = flag.String("policy", "", "Trap policy file (overrides honeypot.policy_file)")
		checkOnly   = flag.Bool("check", false, "Validate configuration and exit")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("cligate-server %s\n", buildinfo.String())
		return nil
	}

	overrides := map[string]any{}
	if *addr != "" {
		overrides["server.addr"] = *addr
	}
	if *policyFile != "" {
		overrides["honeypot.policy_file"] = *policyFile
	}

	cfg, err := loadConfig(*configFile, *envFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if *checkOnly {
		log.Info("configuration valid", "config", config.Sanitize(cfg))
		return nil
	}

	info := buildinfo.Get()
	log.Info("starting cligate-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"storage", fmt.Sprintf("credentials=%s users=%s sessions=%s audit=%s",
			cfg.Storage.Credentials, cfg.Storage.Users, cfg.Storage.Sessions, cfg.Storage.Audit))

	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := a.Run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig layers defaults, the config file, the environment and flag
// overrides, in that order.
func loadConfig(configFile, envFile string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, confloader.WithDotEnv(envFile))
	}

	l := confloader.NewLoader(opts...)
	if len(overrides) > 0 {
		if err := l.LoadMap(overrides); err != nil {
			return nil, err
		}
	}
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger initializes the structured logger and registers configured
// secrets for redaction.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     os.Stdout,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Attrs:      []any{"service", "cligate-server", "version", buildinfo.Version},
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	logger.RegisterSecrets(cfg.Token.Pepper, cfg.Storage.Redis.Password)
	return log, nil
}
