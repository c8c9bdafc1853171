// Package render presents solved plans and catalogs.
//
// # Tables
//
// [Table] prints one row per building group of a [power.Result]: clock,
// building count, power, shards and seconds per output, followed by the
// solver's estimated totals and the totals recomputed from the groups.
// [Rows] returns the same cells unstyled for other consumers.
//
//	fmt.Println(render.Table(result, pinned.Rates, render.TableOptions{}))
//
// # Graphs
//
// [SolutionGraph] and [CatalogGraph] build [dag.DAG] values, [ToDOT]
// converts them to Graphviz DOT with buildings drawn in orange and
// resources in blue, and [RenderSVG] and [RenderPNG] lay them out with the
// embedded Graphviz engine. Edge labels are seconds per unit.
//
//	dot := render.ToDOT(render.SolutionGraph(result.Solved), render.GraphOptions{})
//	svg, err := render.RenderSVG(ctx, dot)
package render
