// Package config loads and validates the wall configuration file.
package config

import "github.com/atlanticdynamic/lumenwall/internal/geometry"

const (
	VersionLatest  = "v1"
	VersionUnknown = "unknown"
)

// Config is the whole configuration of one wall.
type Config struct {
	Version string         `toml:"version"`
	Logging LoggingConfig  `toml:"logging" env_interpolation:"yes"`
	Wall    WallConfig     `toml:"wall"`
	Nodes   []NodeConfig   `toml:"nodes"   env_interpolation:"yes"`
	Player  PlayerConfig   `toml:"player"`
	Monitor MonitorConfig  `toml:"monitor" env_interpolation:"yes"`
	Modules []ModuleConfig `toml:"modules" env_interpolation:"yes"`
}

// WallConfig is the outline of the whole wall in pixels.
type WallConfig struct {
	Points []geometry.Point `toml:"points"`
}

// Polygon returns the wall outline.
func (w WallConfig) Polygon() geometry.Polygon {
	return geometry.NewPolygon(w.Points)
}

// NodeConfig is one display node and the part of the wall it shows.
type NodeConfig struct {
	ID      string  `toml:"id"      env_interpolation:"yes"`
	X       float64 `toml:"x"`
	Y       float64 `toml:"y"`
	Width   float64 `toml:"width"`
	Height  float64 `toml:"height"`
	Primary bool    `toml:"primary"`
}

// Rect is the area of the wall the node shows.
func (n NodeConfig) Rect() geometry.Rect {
	return geometry.Rect{X: n.X, Y: n.Y, W: n.Width, H: n.Height}
}

// PlayerConfig tunes playback on every node.
type PlayerConfig struct {
	TickInterval     Duration `toml:"tick_interval"`
	SnapshotInterval Duration `toml:"snapshot_interval"`
	LeadTime         Duration `toml:"lead_time"`
	SkewTolerance    Duration `toml:"skew_tolerance"`
	DefaultDuration  Duration `toml:"default_duration"`
	Shuffle          bool     `toml:"shuffle"`
}

// MonitorConfig sets up the status API and playback history. Empty values
// turn the feature off.
type MonitorConfig struct {
	Listen      string `toml:"listen"       env_interpolation:"yes"`
	HistoryPath string `toml:"history_path" env_interpolation:"yes"`
}

// PrimaryNode returns the node that runs module server behaviors: the one
// marked primary, or the first.
func (c *Config) PrimaryNode() (NodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.Primary {
			return n, true
		}
	}
	if len(c.Nodes) == 0 {
		return NodeConfig{}, false
	}
	return c.Nodes[0], true
}
