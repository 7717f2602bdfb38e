package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlanticdynamic/lumenwall/internal/config"
	"github.com/atlanticdynamic/lumenwall/internal/fancy"
	"github.com/atlanticdynamic/lumenwall/internal/wall/monitor"
	"github.com/urfave/cli/v3"
)

var historyCmd = &cli.Command{
	Name:  "history",
	Usage: "Show recent playback changes recorded by a running wall",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to TOML configuration file; its monitor.history_path is used",
			Aliases: []string{"c"},
			Sources: cli.EnvVars("LUMENWALL_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "db",
			Usage: "Path to the history database; overrides --config",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Number of events to show",
			Value:   20,
		},
	},
	Action: historyAction,
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("db")
	if path == "" && cmd.String("config") != "" {
		cfg, err := config.NewConfig(cmd.String("config"))
		if err != nil {
			return cli.Exit(fmt.Errorf("failed to load config: %w", err), 1)
		}
		path = cfg.Monitor.HistoryPath
	}
	if path == "" {
		return cli.Exit("no history database: pass --db or a config with monitor.history_path", 1)
	}

	history, err := monitor.OpenHistory(path, slog.Default())
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer func() { _ = history.Close() }()

	events, err := history.Recent(ctx, int(cmd.Int("limit")))
	if err != nil {
		return cli.Exit(err, 1)
	}

	root := fancy.BranchNode("Playback history", fmt.Sprintf("(%d)", len(events)))
	for _, e := range events {
		line := fmt.Sprintf("%s %s %s %s",
			e.Time.Format(time.DateTime),
			fancy.NodeText(e.Node),
			fancy.ModuleText(e.ModuleName),
			e.State,
		)
		if e.Failures > 0 {
			line += " " + fancy.ErrorText(fmt.Sprintf("failures=%d %s", e.Failures, e.LastError))
		}
		root.Child(line)
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, root)
	return err
}
