// Package server assembles a wall from its configuration and runs it under a
// supervisor.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atlanticdynamic/lumenwall/internal/config"
	"github.com/atlanticdynamic/lumenwall/internal/wall/module"
	"github.com/atlanticdynamic/lumenwall/internal/wall/monitor"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/player"
	"github.com/atlanticdynamic/lumenwall/internal/wall/playlist"
	"github.com/robbyt/go-supervisor/supervisor"
)

// Wall is every runnable of one wall, wired together.
type Wall struct {
	Hub      *network.Hub
	Players  []*player.Runner
	Playlist *playlist.Runner
	Store    *monitor.Store
	History  *monitor.History
	Monitor  *monitor.Server
}

// Build creates the runnables for cfg. When configPath is set the playlist
// re-reads it on reload; otherwise it keeps cfg's modules.
func Build(cfg *config.Config, configPath string, handler slog.Handler) (*Wall, error) {
	logger := slog.New(handler)
	w := &Wall{
		Hub:   network.NewHub(network.WithLogHandler(handler)),
		Store: monitor.NewStore(),
	}

	sinks := []monitor.Sink{w.Store, monitor.NewLogSink(handler)}
	if cfg.Monitor.HistoryPath != "" {
		history, err := monitor.OpenHistory(cfg.Monitor.HistoryPath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open playback history: %w", err)
		}
		w.History = history
		sinks = append(sinks, history)
	}
	sink := monitor.NewMulti(logger, sinks...)

	wall := cfg.Wall.Polygon()
	primary, ok := cfg.PrimaryNode()
	if !ok {
		return nil, w.closeWith(errors.New("no nodes configured"))
	}
	for _, n := range cfg.Nodes {
		p, err := player.NewRunner(
			player.WithLogHandler(handler),
			player.WithNode(n.ID, n.Rect()),
			player.WithGeometry(wall),
			player.WithHub(w.Hub),
			player.WithServer(n.ID == primary.ID),
			player.WithSink(sink),
			player.WithTickInterval(cfg.Player.TickInterval.AsDuration()),
			player.WithSnapshotInterval(cfg.Player.SnapshotInterval.AsDuration()),
			player.WithSkewTolerance(cfg.Player.SkewTolerance.Or(module.DefaultSkewTolerance)),
		)
		if err != nil {
			return nil, w.closeWith(fmt.Errorf("failed to create player for node %s: %w", n.ID, err))
		}
		w.Players = append(w.Players, p)
	}

	pl, err := playlist.NewRunner(
		definitions(cfg, configPath),
		w.Hub,
		playlist.WithLogHandler(handler),
		playlist.WithGeometry(wall),
		playlist.WithLeadTime(cfg.Player.LeadTime.Or(playlist.DefaultLeadTime)),
		playlist.WithDefaultDuration(cfg.Player.DefaultDuration.AsDuration()),
		playlist.WithShuffle(cfg.Player.Shuffle),
	)
	if err != nil {
		return nil, w.closeWith(fmt.Errorf("failed to create playlist: %w", err))
	}
	w.Playlist = pl

	if cfg.Monitor.Listen != "" {
		srv, err := monitor.NewServer(cfg.Monitor.Listen, w.Store, monitor.WithServerLogHandler(handler))
		if err != nil {
			return nil, w.closeWith(fmt.Errorf("failed to create monitor server: %w", err))
		}
		w.Monitor = srv
	}
	return w, nil
}

// definitions reads the playlist from configPath, falling back to cfg when
// no path was given.
func definitions(cfg *config.Config, configPath string) playlist.Provider {
	return func() ([]module.Definition, error) {
		if configPath == "" {
			return cfg.Definitions(), nil
		}
		fresh, err := config.NewConfig(configPath)
		if err != nil {
			return nil, err
		}
		return fresh.Definitions(), nil
	}
}

// Runnables lists the runnables in start order: the status API, the players,
// then the playlist that feeds them.
func (w *Wall) Runnables() []supervisor.Runnable {
	var out []supervisor.Runnable
	if w.Monitor != nil {
		out = append(out, w.Monitor)
	}
	for _, p := range w.Players {
		out = append(out, p)
	}
	return append(out, w.Playlist)
}

// Subscribe connects every player to the assignment topic.
func (w *Wall) Subscribe(ctx context.Context) []*network.Channel {
	chans := make([]*network.Channel, 0, len(w.Players))
	for _, p := range w.Players {
		chans = append(chans, p.Subscribe(ctx, w.Hub))
	}
	return chans
}

// Close releases what outlives the runnables.
func (w *Wall) Close() error {
	if w.History == nil {
		return nil
	}
	return w.History.Close()
}

func (w *Wall) closeWith(err error) error {
	if closeErr := w.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

// Run starts the wall described by the config file and blocks until ctx is
// cancelled or the supervisor stops.
func Run(ctx context.Context, logger *slog.Logger, cfg *config.Config, configPath string) error {
	logHandler := logger.Handler()

	w, err := Build(cfg, configPath, logHandler)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.Warn("Failed to close playback history", "error", err)
		}
	}()

	for _, ch := range w.Subscribe(ctx) {
		defer func() { _ = ch.Close() }()
	}

	super, err := supervisor.New(
		supervisor.WithContext(ctx),
		supervisor.WithLogHandler(logHandler),
		supervisor.WithRunnables(w.Runnables()...),
	)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}
	if err := super.Run(); err != nil {
		return fmt.Errorf("failed to run wall: %w", err)
	}

	logger.Info("Wall shutdown complete")
	return nil
}
