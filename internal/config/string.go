package config

import (
	"fmt"

	"github.com/atlanticdynamic/lumenwall/internal/fancy"
)

// String renders the config as a tree for the validate command.
func (c *Config) String() string {
	return c.ConfigTree().String()
}

// ConfigTree builds the styled tree shown by "lumenwall validate --tree".
func (c *Config) ConfigTree() *fancy.ComponentTree {
	root := fancy.NewComponentTree(fancy.RootStyle.Render(fmt.Sprintf("Lumenwall Config (%s)", c.Version)))

	logging := fancy.BranchNode("Logging", "")
	logging.Child(fmt.Sprintf("format: %s", orDefault(c.Logging.Format.String(), "text")))
	logging.Child(fmt.Sprintf("level: %s", orDefault(c.Logging.Level.String(), "info")))
	root.AddChild(logging)

	wall := c.Wall.Polygon()
	wallBranch := fancy.BranchNode("Wall", fmt.Sprintf("(%d points)", wall.Len()))
	wallBranch.Child(fmt.Sprintf("extents: %s", wall.Extents()))
	root.AddChild(wallBranch)

	primary, _ := c.PrimaryNode()
	nodes := fancy.BranchNode("Nodes", fmt.Sprintf("(%d)", len(c.Nodes)))
	for _, n := range c.Nodes {
		nodes.Child(fancy.NodeTree(n.ID, n.ID == primary.ID).
			AddChild(fmt.Sprintf("rect: %s", n.Rect())).
			Tree())
	}
	root.AddChild(nodes)

	player := fancy.BranchNode("Player", "")
	player.Child(fmt.Sprintf("lead time: %s", c.Player.LeadTime))
	player.Child(fmt.Sprintf("default duration: %s", c.Player.DefaultDuration))
	player.Child(fmt.Sprintf("shuffle: %t", c.Player.Shuffle))
	root.AddChild(player)

	if c.Monitor.Listen != "" || c.Monitor.HistoryPath != "" {
		monitor := fancy.BranchNode("Monitor", "")
		if c.Monitor.Listen != "" {
			monitor.Child(fmt.Sprintf("listen: %s", c.Monitor.Listen))
		}
		if c.Monitor.HistoryPath != "" {
			monitor.Child(fmt.Sprintf("history: %s", fancy.PathText(c.Monitor.HistoryPath)))
		}
		root.AddChild(monitor)
	}

	modules := fancy.BranchNode("Modules", fmt.Sprintf("(%d)", len(c.Modules)))
	for _, m := range c.Modules {
		d := m.ToDefinition()
		mt := fancy.ModuleTree(m.Name, d.Source.RuntimeName())
		if m.URI != "" {
			mt.AddChild(fmt.Sprintf("uri: %s", fancy.PathText(m.URI)))
		} else {
			mt.AddChild(fmt.Sprintf("code: %s", fancy.TruncateString(firstLine(m.Code), 40)))
		}
		if m.Duration != 0 {
			mt.AddChild(fmt.Sprintf("duration: %s", m.Duration))
		}
		if !d.Title.Empty() {
			mt.AddChild(fmt.Sprintf("title: %s by %s", m.Title, orDefault(m.Author, "unknown")))
		}
		modules.Child(mt.Tree())
	}
	root.AddChild(modules)

	return root
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
