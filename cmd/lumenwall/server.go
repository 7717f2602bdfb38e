package main

import (
	"context"
	"fmt"

	"github.com/atlanticdynamic/lumenwall/cmd/lumenwall/server"
	"github.com/atlanticdynamic/lumenwall/internal/config"
	"github.com/urfave/cli/v3"
)

var serverCmd = &cli.Command{
	Name:  "server",
	Usage: "Run every node of the wall and the playlist that drives them",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to TOML configuration file",
			Aliases: []string{"c"},
			Sources: cli.EnvVars("LUMENWALL_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Override the configured log level (trace, debug, info, warn, error)",
			Aliases: []string{"l"},
		},
	},
	Action: serverAction,
}

func serverAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		return cli.Exit("the --config flag is required", 1)
	}

	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return cli.Exit(fmt.Errorf("failed to load config: %w", err), 1)
	}

	logger, closer, err := setupLogger(cfg.Logging, cmd.String("log-level"))
	if err != nil {
		return cli.Exit(fmt.Errorf("failed to set up logging: %w", err), 1)
	}
	defer func() { _ = closer.Close() }()

	logger.Info("Starting wall", "config", configPath, "nodes", len(cfg.Nodes), "modules", len(cfg.Modules))
	if err := server.Run(ctx, logger, cfg, configPath); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}
