package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/pipeline"
	"github.com/matzehuels/overclock/pkg/render"
)

type planFlags struct {
	catalog string
	formats string
	output  string
	json    bool
	graph   bool
	refresh bool
	noCache bool
	pick    bool
	clock   float64
}

// planCommand creates the plan command.
func (c *CLI) planCommand() *cobra.Command {
	var f planFlags

	cmd := &cobra.Command{
		Use:   "plan [plan.toml]",
		Short: "Solve a production plan",
		Long: `Solve a production plan: pin recipe clocks, optionally prune the catalog,
then allocate buildings, clock speeds and power shards.

Table and JSON output go to stdout; dot, svg and png are written to files
named after the plan in --output.

With --pick, choose a recipe interactively and pin it at --clock percent,
either on top of the plan file or as the whole plan.`,
		Example: `  overclock plan examples/plans/hungry_plating.toml
  overclock plan plan.toml --json
  overclock plan plan.toml -f table,svg -o out/
  overclock plan --pick -c examples/catalog.toml --clock 250`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlan(cmd.Context(), cmd.OutOrStdout(), args, f)
		},
	}

	cmd.Flags().StringVarP(&f.catalog, "catalog", "c", "", "catalog file (overrides the plan's catalog)")
	cmd.Flags().StringVarP(&f.formats, "format", "f", "", "output formats: table, json, dot, svg, png (comma-separated)")
	cmd.Flags().StringVarP(&f.output, "output", "o", ".", "directory for dot, svg and png files")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&f.graph, "graph", false, "also write the flow graph as SVG")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "ignore cached results")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable caching")
	cmd.Flags().BoolVar(&f.pick, "pick", false, "pick a recipe to pin interactively")
	cmd.Flags().Float64Var(&f.clock, "clock", 100, "clock percentage for the picked recipe")

	return cmd
}

func (c *CLI) runPlan(ctx context.Context, out io.Writer, args []string, f planFlags) error {
	formats := parseFormats(f.formats)
	if f.json {
		formats = []string{pipeline.FormatJSON}
	}
	if f.graph {
		formats = append(formats, pipeline.FormatSVG)
	}
	if err := pipeline.ValidateFormats(formats); err != nil {
		return err
	}

	opts, base, err := loadPlan(args)
	if err != nil {
		return err
	}
	if f.catalog != "" {
		opts.Catalog = f.catalog
	}

	runner, ch, err := c.newRunner(ctx, f.noCache)
	if err != nil {
		return err
	}
	defer ch.Close()

	repo, closeRepo, err := c.openCatalog(ctx, opts.Catalog, ch)
	if err != nil {
		return err
	}
	defer closeRepo()

	if f.pick {
		if err := errors.ValidateClock("--clock", f.clock); err != nil {
			return err
		}
		cat, err := repo.Load(ctx)
		if err != nil {
			return err
		}
		picked, err := pickRecipe("Pin a recipe", cat.Sorted())
		if err != nil {
			return err
		}
		if opts.FixedClocks == nil {
			opts.FixedClocks = make(map[string]float64)
		}
		opts.FixedClocks[picked.Name] = f.clock
		if opts.Name == "" {
			opts.Name = picked.Name
		}
	}
	if opts.Name == "" {
		opts.Name = base
	}
	opts.Refresh = f.refresh
	opts.Logger = c.Logger

	prog := newProgress(c.Logger)
	spinner := newSpinner(ctx, "Solving "+opts.Name+"...")
	spinner.Start()
	res, err := runner.Execute(ctx, repo, *opts)
	spinner.Stop()
	if err != nil {
		return err
	}
	prog.done("solved " + opts.Name)

	artifacts, err := pipeline.Render(ctx, res, formats)
	if err != nil {
		return err
	}
	return writeArtifacts(out, res, artifacts, formats, f.output, fileStem(opts.Name))
}

// loadPlan reads the plan file, if any. Without one an empty plan is
// returned for --pick to fill.
func loadPlan(args []string) (*pipeline.Options, string, error) {
	if len(args) == 0 {
		return &pipeline.Options{}, "plan", nil
	}
	opts, err := pipeline.LoadOptions(args[0])
	if err != nil {
		return nil, "", err
	}
	return opts, strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])), nil
}

func writeArtifacts(out io.Writer, res *pipeline.Result, artifacts map[string][]byte, formats []string, dir, stem string) error {
	for _, format := range formats {
		data := artifacts[format]
		switch format {
		case pipeline.FormatJSON:
			if _, err := out.Write(append(data, '\n')); err != nil {
				return err
			}
		case pipeline.FormatTable:
			printSuccess("%s", res.Name)
			printSolveStats(res.Power.Actual.Buildings, res.Power.Actual.Power/1e6, res.Power.Actual.Shards, res.CacheInfo.PlanHit)
			fmt.Fprintln(out)
			fmt.Fprintln(out, render.Table(res.Power, res.Pinned.Rates, render.TableOptions{ShardMode: res.Mode}))
			for _, w := range res.Warnings {
				printWarning("%s", w)
			}
		default:
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			path := filepath.Join(dir, stem+"."+format)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "write %s", path)
			}
			printFile(path)
		}
	}
	return nil
}

// fileStem turns a plan name into a file name.
func fileStem(name string) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ', r == '.':
			return '_'
		}
		return -1
	}, name)
	if stem == "" {
		return "plan"
	}
	return strings.ToLower(stem)
}
