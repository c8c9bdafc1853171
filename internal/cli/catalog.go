package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/overclock/pkg/cache"
	"github.com/matzehuels/overclock/pkg/catalog"
	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/pipeline"
	"github.com/matzehuels/overclock/pkg/recipe"
	"github.com/matzehuels/overclock/pkg/render"
)

// catalogCommand creates the catalog command group.
func (c *CLI) catalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and manage recipe catalogs",
		Long: `Inspect and manage recipe catalogs.

Without --catalog, commands read the MongoDB catalog at $` + EnvMongoURI + `.`,
	}
	cmd.AddCommand(c.catalogListCommand())
	cmd.AddCommand(c.catalogGraphCommand())
	cmd.AddCommand(c.catalogImportCommand())
	cmd.AddCommand(c.catalogBrowseCommand())
	return cmd
}

// loadCatalog opens and loads the catalog at path with the local cache.
func (c *CLI) loadCatalog(ctx context.Context, path string) (recipe.Catalog, string, error) {
	ch, err := c.newCache(ctx, false)
	if err != nil {
		return nil, "", err
	}
	defer ch.Close()
	repo, closeRepo, err := c.openCatalog(ctx, path, ch)
	if err != nil {
		return nil, "", err
	}
	defer closeRepo()
	cat, err := repo.Load(ctx)
	return cat, repo.Source(), err
}

func (c *CLI) catalogListCommand() *cobra.Command {
	var path, building, produces string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the recipes of a catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, source, err := c.loadCatalog(cmd.Context(), path)
			if err != nil {
				return err
			}
			recipes := filterRecipes(cat, building, produces)
			printInfo("%d of %d recipes from %s", len(recipes), len(cat), source)
			fmt.Fprintln(cmd.OutOrStdout(), recipeTable(recipes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "catalog", "c", "", "catalog file")
	cmd.Flags().StringVar(&building, "building", "", "only recipes run in this building")
	cmd.Flags().StringVar(&produces, "produces", "", "only recipes producing this resource")
	return cmd
}

func filterRecipes(cat recipe.Catalog, building, produces string) []*recipe.Recipe {
	var out []*recipe.Recipe
	for _, r := range cat.Sorted() {
		if building != "" && r.Building != building {
			continue
		}
		if produces != "" && !r.Produces(produces) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func recipeTable(recipes []*recipe.Recipe) string {
	rows := make([][]string, 0, len(recipes))
	for _, r := range recipes {
		var outs []string
		for _, o := range r.Outputs() {
			outs = append(outs, fmt.Sprintf("%.2f/s %s", o.PerSecond(), o.Resource))
		}
		rows = append(rows, []string{r.Name, r.BuildingName(), r.Kind.String(), r.Tier, fmt.Sprintf("%.1f", r.BasePower/1e6), strings.Join(outs, ", ")})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Recipe", "Building", "Kind", "Tier", "MW", "Outputs").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == -1 {
				return s.Foreground(colorGray).Bold(true)
			}
			return s
		}).
		Render()
}

func (c *CLI) catalogGraphCommand() *cobra.Command {
	var path, format, output string
	var detailed bool

	cmd := &cobra.Command{
		Use:     "graph",
		Short:   "Render the resource graph of a catalog",
		Example: `  overclock catalog graph -c examples/catalog.toml > catalog.dot
  overclock catalog graph -c examples/catalog.toml -f svg -o catalog.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != pipeline.FormatDOT && format != pipeline.FormatSVG && format != pipeline.FormatPNG {
				return errors.New(errors.ErrCodeInvalidInput, "invalid graph format %q (must be dot, svg or png)", format)
			}
			cat, source, err := c.loadCatalog(cmd.Context(), path)
			if err != nil {
				return err
			}
			dot := render.ToDOT(render.CatalogGraph(cat), render.GraphOptions{Title: source, Detailed: detailed, Ranked: true})
			data := []byte(dot)
			switch format {
			case pipeline.FormatSVG:
				data, err = render.RenderSVG(cmd.Context(), dot)
			case pipeline.FormatPNG:
				data, err = render.RenderPNG(cmd.Context(), dot)
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}
	cmd.Flags().StringVarP(&path, "catalog", "c", "", "catalog file")
	cmd.Flags().StringVarP(&format, "format", "f", pipeline.FormatDOT, "graph format: dot, svg or png")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "add node metadata to labels")
	return cmd
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	printFile(path)
	return nil
}

func (c *CLI) catalogImportCommand() *cobra.Command {
	var database, collection string

	cmd := &cobra.Command{
		Use:   "import <catalog.toml>",
		Short: "Import a catalog file into MongoDB",
		Long: `Import a catalog file into the MongoDB catalog at $` + EnvMongoURI + `.
The collection is replaced: recipes missing from the file are removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			uri := os.Getenv(EnvMongoURI)
			if uri == "" {
				return errors.New(errors.ErrCodeInvalidInput, "%s is not set", EnvMongoURI)
			}
			file := catalog.NewFile(args[0], c.Logger)
			cat, err := file.Load(ctx)
			if err != nil {
				return err
			}

			m, err := catalog.NewMongo(ctx, catalog.MongoOptions{URI: uri, Database: database, Collection: collection}, c.Logger)
			if err != nil {
				return err
			}
			defer m.Close(context.Background())

			ch, err := c.newCache(ctx, false)
			if err != nil {
				return err
			}
			defer ch.Close()
			// Saving through the cached repository drops the stale entry.
			if err := catalog.NewCached(m, ch, cache.NewDefaultKeyer(), c.Logger).Save(ctx, cat); err != nil {
				return err
			}
			printSuccess("Imported %d recipes", len(cat))
			printDetail("%s %s %s", file.Source(), iconArrow, m.Source())
			if file.Report != nil && len(file.Report.Skipped) > 0 {
				printDetail("%d entries skipped (run with -v for details)", len(file.Report.Skipped))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&database, "database", catalog.DefaultMongoDatabase, "MongoDB database")
	cmd.Flags().StringVar(&collection, "collection", catalog.DefaultMongoCollection, "MongoDB collection")
	return cmd
}

func (c *CLI) catalogBrowseCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse a catalog interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, source, err := c.loadCatalog(cmd.Context(), path)
			if err != nil {
				return err
			}
			picked, err := pickRecipe(source, cat.Sorted())
			if err != nil {
				return err
			}
			printRecipe(picked)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "catalog", "c", "", "catalog file")
	return cmd
}

func printRecipe(r *recipe.Recipe) {
	fmt.Println(StyleTitle.Render(r.Name))
	printKeyValue("Building", r.BuildingName())
	printKeyValue("Kind", r.Kind.String())
	if r.Tier != "" {
		printKeyValue("Tier", r.Tier)
	}
	printKeyValue("Cycle", fmt.Sprintf("%gs", r.Time))
	printKeyValue("Power", fmt.Sprintf("%.1f MW", r.BasePower/1e6))
	for _, rt := range r.Rates {
		printDetail("%-8s %s  (%.3f/s)", rateDirection(rt), rt, rt.PerSecond())
	}
}

func rateDirection(rt recipe.Rate) string {
	if rt.IsOutput() {
		return "output"
	}
	return "input"
}
