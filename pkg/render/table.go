package render

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/overclock/pkg/power"
	"github.com/matzehuels/overclock/pkg/recipe"
)

// Headers are the column titles of a result table.
var Headers = []string{"Recipe", "Clock", "n", "P (MW)", "tot", "shards", "tot", "s/out", "tot", "s/extra"}

// Row labels of the two total rows.
const (
	TotalApprox = "Total approx"
	TotalActual = "Total actual"
)

// surplusFloor is the net rate below which a resource has no surplus.
const surplusFloor = 1e-6

var (
	colorDim    = lipgloss.Color("240")
	colorGray   = lipgloss.Color("245")
	colorOrange = lipgloss.Color("#FF7F00")

	headerStyle = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	totalStyle  = lipgloss.NewStyle().Foreground(colorOrange).Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// TableOptions configure [Table].
type TableOptions struct {
	// ShardMode hides the estimated shard total when shards were not
	// modelled.
	ShardMode power.ShardMode
	// Plain disables borders and colors.
	Plain bool
}

// SecsPerExtra is the time between two surplus units of the recipe's
// first output, or "∞" when the output has no surplus.
func SecsPerExtra(r *recipe.Recipe, rates map[string]float64) string {
	out, ok := r.FirstOutput()
	if !ok {
		return "∞"
	}
	rate := rates[out.Resource]
	if rate < surplusFloor {
		return "∞"
	}
	return fmt.Sprintf("%.1f", 1/rate)
}

// Rows returns the unstyled table cells: one row per non-empty group,
// then the approximate and actual totals.
func Rows(res *power.Result, rates map[string]float64, mode power.ShardMode) [][]string {
	var rows [][]string
	for _, s := range res.Solved {
		if s.IsEmpty() {
			continue
		}
		rows = append(rows, []string{
			s.Recipe.Name,
			fmt.Sprintf("%d", s.ClockEach()),
			fmt.Sprintf("%d", s.N),
			mw(s.PowerEach()),
			mw(s.PowerTotal()),
			fmt.Sprintf("%d", s.ShardsEach()),
			fmt.Sprintf("%d", s.ShardsTotal()),
			secs(s.SecsPerOutputEach()),
			secs(s.SecsPerOutputTotal()),
			SecsPerExtra(s.Recipe, rates),
		})
	}

	estShards := ""
	if mode != power.ShardNone {
		estShards = fmt.Sprintf("%.0f", res.Estimate.Shards)
	}
	rows = append(rows,
		[]string{TotalApprox, "", fmt.Sprintf("%.0f", res.Estimate.Buildings), "", mw(res.Estimate.Power), "", estShards, "", "", ""},
		[]string{TotalActual, "", fmt.Sprintf("%.0f", res.Actual.Buildings), "", mw(res.Actual.Power), "", fmt.Sprintf("%.0f", res.Actual.Shards), "", "", ""},
	)
	return rows
}

// Table renders a result as a terminal table.
func Table(res *power.Result, rates map[string]float64, opts TableOptions) string {
	rows := Rows(res, rates, opts.ShardMode)
	totals := len(rows) - 2

	t := table.New().
		Headers(Headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := cellStyle
			if col > 0 {
				s = s.Align(lipgloss.Right)
			}
			if opts.Plain {
				return s
			}
			switch {
			case row == -1:
				return s.Inherit(headerStyle)
			case row >= totals:
				return s.Inherit(totalStyle)
			}
			return s
		})
	if opts.Plain {
		t = t.Border(lipgloss.HiddenBorder())
	} else {
		t = t.Border(lipgloss.RoundedBorder()).BorderStyle(lipgloss.NewStyle().Foreground(colorDim))
	}
	return t.Render()
}

func mw(watts float64) string { return fmt.Sprintf("%.2f", watts/1e6) }

func secs(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "∞"
	}
	return fmt.Sprintf("%.1f", v)
}
