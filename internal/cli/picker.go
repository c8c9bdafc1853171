package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/overclock/pkg/errors"
	"github.com/matzehuels/overclock/pkg/recipe"
)

var (
	pickerHeaderStyle   = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	pickerSelectedStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	pickerDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// RecipePicker is the bubbletea model for choosing a recipe. Typing
// filters the list by name, building or produced resource.
type RecipePicker struct {
	Title    string
	Recipes  []*recipe.Recipe
	Filter   string
	Cursor   int
	Offset   int
	Height   int
	Selected *recipe.Recipe

	visible []*recipe.Recipe
}

// NewRecipePicker creates a picker over recipes, in the given order.
func NewRecipePicker(title string, recipes []*recipe.Recipe) RecipePicker {
	m := RecipePicker{Title: title, Recipes: recipes, Height: 15}
	m.refilter()
	return m
}

// Visible returns the recipes matching the current filter.
func (m RecipePicker) Visible() []*recipe.Recipe { return m.visible }

func (m *RecipePicker) refilter() {
	q := strings.ToLower(m.Filter)
	visible := make([]*recipe.Recipe, 0, len(m.Recipes))
	for _, r := range m.Recipes {
		if q == "" || matches(r, q) {
			visible = append(visible, r)
		}
	}
	m.visible = visible
	m.Cursor, m.Offset = 0, 0
}

func matches(r *recipe.Recipe, q string) bool {
	if strings.Contains(strings.ToLower(r.Name), q) || strings.Contains(strings.ToLower(r.Building), q) {
		return true
	}
	for _, out := range r.Outputs() {
		if strings.Contains(strings.ToLower(out.Resource), q) {
			return true
		}
	}
	return false
}

func (m RecipePicker) Init() tea.Cmd {
	return nil
}

func (m RecipePicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyUp, tea.KeyCtrlP:
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case tea.KeyDown, tea.KeyCtrlN:
			if m.Cursor < len(m.visible)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case tea.KeyEnter:
			if len(m.visible) == 0 {
				return m, nil
			}
			m.Selected = m.visible[m.Cursor]
			return m, tea.Quit
		case tea.KeyBackspace:
			if m.Filter != "" {
				m.Filter = m.Filter[:len(m.Filter)-1]
				m.refilter()
			}
		case tea.KeySpace:
			m.Filter += " "
			m.refilter()
		case tea.KeyRunes:
			m.Filter += string(msg.Runes)
			m.refilter()
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-8, 5)
	}
	return m, nil
}

func (m RecipePicker) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n")
	b.WriteString(pickerDimStyle.Render("type to filter  ↑/↓ navigate  ⏎ select  esc quit"))
	b.WriteString("\n\n")
	b.WriteString("filter: " + StyleValue.Render(m.Filter) + "\n\n")

	end := min(m.Offset+m.Height, len(m.visible))
	rows := make([][]string, 0, end-m.Offset)
	for i := m.Offset; i < end; i++ {
		r := m.visible[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor + r.Name, r.BuildingName(), r.Tier, fmt.Sprintf("%.1f", r.BasePower/1e6)})
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("Recipe", "Building", "Tier", "MW").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return pickerHeaderStyle
			}
			if m.Offset+row == m.Cursor {
				return pickerSelectedStyle
			}
			if col > 0 {
				return pickerDimStyle
			}
			return lipgloss.NewStyle()
		})
	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(pickerDimStyle.Render(fmt.Sprintf("  [%d/%d]", min(m.Cursor+1, len(m.visible)), len(m.visible))))
	return b.String()
}

// pickRecipe runs the picker and returns the chosen recipe.
func pickRecipe(title string, recipes []*recipe.Recipe) (*recipe.Recipe, error) {
	final, err := tea.NewProgram(NewRecipePicker(title, recipes)).Run()
	if err != nil {
		return nil, fmt.Errorf("recipe picker: %w", err)
	}
	picked := final.(RecipePicker).Selected
	if picked == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no recipe selected")
	}
	return picked, nil
}
