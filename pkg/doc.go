// Package pkg provides the core libraries of Overclock, a production
// planner that turns a recipe catalog and a set of targets into building
// counts, clock speeds and power shards.
//
// # Overview
//
// The pkg directory is organized into four areas:
//
//  1. Domain: [recipe] (rates, recipes, catalogs) and [catalog] (TOML
//     ingestion and repositories backed by files, memory or MongoDB)
//  2. Solvers: [solver/symbolic] expressions, the [solver/lp] integer LP
//     and the [solver/nlp] mixed-integer nonlinear engine
//  3. Planning: [rates] pins recipe clocks, [prune] cuts the catalog down
//     to what a plan needs, [power] allocates buildings and shards
//  4. Plumbing: [pipeline] runs the stages with caching through [cache],
//     [render] turns results into tables and graphs via [dag], and
//     [errors] and [observability] are shared by everything
//
// # Architecture
//
//	catalog.toml / MongoDB
//	         ↓
//	    [catalog] repository (decode, expand ores and generators)
//	         ↓
//	    [prune] (optional: keep recipes upstream of the plan)
//	         ↓
//	    [rates] (integer LP: clock percentage per recipe)
//	         ↓
//	    [power] (MINLP: buildings, clocks, shards; then distribute)
//	         ↓
//	    [render] table / DOT / SVG / PNG, or JSON
//
// # Quick Start
//
//	repo := catalog.NewFile("catalog.toml", logger)
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, logger)
//	res, err := runner.Execute(ctx, repo, pipeline.Options{
//	    FixedClocks: map[string]float64{"Rotor": 100},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(render.Table(res.Power, res.Pinned.Rates, render.TableOptions{}))
//
// [recipe]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/recipe
// [catalog]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/catalog
// [solver/symbolic]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/solver/symbolic
// [solver/lp]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/solver/lp
// [solver/nlp]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/solver/nlp
// [rates]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/rates
// [prune]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/prune
// [power]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/power
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/cache
// [render]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/render
// [dag]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/dag
// [errors]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/overclock/pkg/observability
package pkg
