package config

import (
	"errors"
	"fmt"
)

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = VersionUnknown
	}
	if c.Version != VersionLatest {
		return fmt.Errorf("%w: %s", ErrUnsupportedConfigVer, c.Version)
	}

	errz := []error{}

	if err := c.Logging.Validate(); err != nil {
		errz = append(errz, err)
	}

	wall := c.Wall.Polygon()
	if err := wall.Validate(); err != nil {
		errz = append(errz, fmt.Errorf("wall: %w", err))
	}

	if len(c.Nodes) == 0 {
		errz = append(errz, ErrNoNodes)
	}
	nodeIDs := make(map[string]bool, len(c.Nodes))
	primaries := 0
	for i, n := range c.Nodes {
		if n.ID == "" {
			errz = append(errz, fmt.Errorf("node %d has an empty ID", i))
			continue
		}
		if nodeIDs[n.ID] {
			errz = append(errz, fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID))
		}
		nodeIDs[n.ID] = true
		if n.Primary {
			primaries++
		}
		if err := n.Rect().Validate(); err != nil {
			errz = append(errz, fmt.Errorf("node '%s': %w", n.ID, err))
			continue
		}
		if wall.Len() > 0 && !wall.Extents().Intersects(n.Rect()) {
			errz = append(errz, fmt.Errorf("node '%s' is %w", n.ID, ErrNodeOutsideWall))
		}
	}
	if primaries > 1 {
		errz = append(errz, fmt.Errorf("%d %w", primaries, ErrTooManyPrimaries))
	}

	for name, d := range map[string]Duration{
		"tick_interval":     c.Player.TickInterval,
		"snapshot_interval": c.Player.SnapshotInterval,
		"lead_time":         c.Player.LeadTime,
		"skew_tolerance":    c.Player.SkewTolerance,
		"default_duration":  c.Player.DefaultDuration,
	} {
		if d < 0 {
			errz = append(errz, fmt.Errorf("player %s is negative: %s", name, d))
		}
	}

	if len(c.Modules) == 0 {
		errz = append(errz, ErrNoModules)
	}
	moduleNames := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		if err := m.validate(); err != nil {
			errz = append(errz, err)
		}
		if m.Name != "" && moduleNames[m.Name] {
			errz = append(errz, fmt.Errorf("%w: %s", ErrDuplicateModule, m.Name))
		}
		moduleNames[m.Name] = true
	}

	return errors.Join(errz...)
}
