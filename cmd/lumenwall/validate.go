package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atlanticdynamic/lumenwall/internal/config"
	"github.com/atlanticdynamic/lumenwall/internal/fancy"
	"github.com/urfave/cli/v3"
)

var validateCmd = &cli.Command{
	Name:      "validate",
	Aliases:   []string{"lint"},
	Usage:     "Validate one or more configuration files",
	ArgsUsage: "CONFIG...",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "tree",
			Aliases: []string{"t"},
			Usage:   "Show detailed tree view of the validated configuration",
		},
	},
	Action: validateAction,
}

type validationResult struct {
	Path   string
	Config *config.Config
	Error  error
}

func (r validationResult) Valid() bool {
	return r.Error == nil
}

func validateAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("config file path required", 1)
	}

	results := validateLocal(paths)
	out := cmd.Root().Writer
	var failed int
	for _, r := range results {
		if !r.Valid() {
			failed++
		}
		if err := printResult(out, r, cmd.Bool("tree")); err != nil {
			return err
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d config files are invalid", failed, len(results)), 1)
	}
	return nil
}

func validateLocal(paths []string) []validationResult {
	results := make([]validationResult, 0, len(paths))
	for _, path := range paths {
		cfg, err := config.NewConfig(path)
		results = append(results, validationResult{Path: path, Config: cfg, Error: err})
	}
	return results
}

func printResult(out io.Writer, r validationResult, tree bool) error {
	if !r.Valid() {
		_, err := fmt.Fprintf(out, "%s %s\n%s\n", fancy.ErrorText("✗"), fancy.PathText(r.Path), renderErrors(r.Error))
		return err
	}
	if tree {
		_, err := fmt.Fprintf(out, "%s %s\n\n%s\n", fancy.ValidText("✓"), fancy.PathText(r.Path), r.Config)
		return err
	}
	_, err := fmt.Fprintf(out, "%s %s\n%s\n", fancy.ValidText("✓"), fancy.PathText(r.Path), renderSummary(r.Config))
	return err
}

func renderSummary(cfg *config.Config) string {
	primary, _ := cfg.PrimaryNode()
	var b strings.Builder
	fmt.Fprintf(&b, "  version: %s\n", cfg.Version)
	fmt.Fprintf(&b, "  nodes: %s (primary %s)\n", fancy.CountText(fmt.Sprint(len(cfg.Nodes))), fancy.NodeText(primary.ID))
	fmt.Fprintf(&b, "  modules: %s\n", fancy.CountText(fmt.Sprint(len(cfg.Modules))))
	b.WriteString(fancy.SummaryText("  use --tree for a more detailed view of the config"))
	return b.String()
}

// renderErrors lists the leaves of a joined error one per line.
func renderErrors(err error) string {
	var lines []string
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		lines = append(lines, "  - "+fancy.ErrorText(e.Error()))
	}
	walk(err)
	return strings.Join(lines, "\n")
}
