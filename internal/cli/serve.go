package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/overclock/internal/server"
)

// serveCommand creates the serve command that runs the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var addr, path string
	var noCache bool
	var maxPlans int
	var planTTL time.Duration

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the planning API over HTTP",
		Example: `  overclock serve -c examples/catalog.toml
  curl -XPOST localhost:8080/v1/plans -H 'Content-Type: application/toml' --data-binary @plan.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runner, ch, err := c.newRunner(ctx, noCache)
			if err != nil {
				return err
			}
			defer ch.Close()

			repo, closeRepo, err := c.openCatalog(ctx, path, ch)
			if err != nil {
				return err
			}
			defer closeRepo()
			// Fail fast on a broken catalog instead of on the first request.
			if _, err := repo.Load(ctx); err != nil {
				return err
			}

			srv := server.New(server.Config{
				Repository: repo,
				Runner:     runner,
				Logger:     c.Logger,
				MaxPlans:   maxPlans,
				PlanTTL:    planTTL,
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVarP(&path, "catalog", "c", "", "catalog file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.Flags().IntVar(&maxPlans, "max-plans", server.DefaultMaxPlans, "solved plans kept for retrieval")
	cmd.Flags().DurationVar(&planTTL, "plan-ttl", 0, "expire solved plans after this long (0 keeps them until evicted)")
	return cmd
}
