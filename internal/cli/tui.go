package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/dependents/pkg/discovery"
	"github.com/matzehuels/dependents/pkg/integrations"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	tableHeaderStyle  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
)

// =============================================================================
// PackageSelectModel - Interactive package selection
// =============================================================================

// PackageSelectModel is the bubbletea model for choosing which packages to
// search dependents for. All packages start selected.
type PackageSelectModel struct {
	Packages  []discovery.PackageDescriptor
	Cursor    int
	Checked   []bool
	Confirmed bool
	Height    int
	Offset    int
}

// NewPackageSelectModel creates a selection model over pkgs.
func NewPackageSelectModel(pkgs []discovery.PackageDescriptor) PackageSelectModel {
	checked := make([]bool, len(pkgs))
	for i := range checked {
		checked[i] = true
	}
	return PackageSelectModel{Packages: pkgs, Checked: checked, Height: 15}
}

// Selected returns the names of the checked packages, or nil if the
// selection was not confirmed.
func (m PackageSelectModel) Selected() []string {
	if !m.Confirmed {
		return nil
	}
	var names []string
	for i, p := range m.Packages {
		if m.Checked[i] {
			names = append(names, p.Name)
		}
	}
	return names
}

func (m PackageSelectModel) Init() tea.Cmd {
	return nil
}

func (m PackageSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Packages)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case " ", "x":
			if len(m.Checked) > 0 {
				m.Checked[m.Cursor] = !m.Checked[m.Cursor]
			}
		case "a":
			all := !m.allChecked()
			for i := range m.Checked {
				m.Checked[i] = all
			}
		case "enter":
			m.Confirmed = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m PackageSelectModel) allChecked() bool {
	for _, c := range m.Checked {
		if !c {
			return false
		}
	}
	return true
}

func (m PackageSelectModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Packages"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  space toggle  a all  ⏎ search  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Packages))
	for i := m.Offset; i < end; i++ {
		p := m.Packages[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		box := "[ ]"
		if m.Checked[i] {
			box = StyleSuccess.Render("[x]")
		}
		line := fmt.Sprintf("%s%s %-40s %s", cursor, box, p.Name, listDimStyle.Render(p.Path))
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
		} else {
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	count := 0
	for _, c := range m.Checked {
		if c {
			count++
		}
	}
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %d of %d selected", count, len(m.Packages))))
	return b.String()
}

// =============================================================================
// Tables
// =============================================================================

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...)
}

// renderPackages renders discovered packages as a table.
func renderPackages(pkgs []discovery.PackageDescriptor) string {
	rows := make([][]string, len(pkgs))
	for i, p := range pkgs {
		rows[i] = []string{p.Name, p.Path}
	}
	return newTable("Package", "Manifest").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return tableHeaderStyle
			}
			if col == 1 {
				return listDimStyle
			}
			return lipgloss.NewStyle()
		}).
		Render()
}

// renderDependents renders dependents as a table. Inactive repositories
// are dimmed.
func renderDependents(deps []discovery.DependentRepository, now time.Time) string {
	rows := make([][]string, len(deps))
	for i, d := range deps {
		active := ""
		if d.IsActive {
			active = "✓"
		}
		rows[i] = []string{
			d.FullName,
			strconv.Itoa(d.Stars),
			strconv.Itoa(d.Forks),
			d.Package,
			string(d.DependencyType),
			d.DependencyVersion,
			formatRelativeTime(d.LastUpdated, now),
			active,
		}
	}
	return newTable("Repository", "Stars", "Forks", "Package", "Type", "Version", "Updated", "Active").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return tableHeaderStyle
			}
			base := lipgloss.NewStyle()
			if col == 1 || col == 2 {
				base = base.Align(lipgloss.Right)
			}
			if row >= 0 && row < len(deps) && !deps[row].IsActive {
				return base.Foreground(colorDim)
			}
			if col == 0 {
				return base.Foreground(colorGreen)
			}
			return base
		}).
		Render()
}

// renderLimits renders a budget snapshot as a table.
func renderLimits(s integrations.BudgetSnapshot, now time.Time) string {
	row := func(name string, l integrations.Limit) []string {
		if !l.Known {
			return []string{name, "—", "—", "—"}
		}
		return []string{name, strconv.Itoa(l.Remaining), strconv.Itoa(l.Limit), formatUntil(l.ResetAt, now)}
	}
	return newTable("Resource", "Remaining", "Limit", "Resets").
		Rows(
			row(integrations.ResourceCore, s.Core),
			row(integrations.ResourceSearch, s.Search),
			[]string{"points", strconv.Itoa(max(s.PointsLimit-s.PointsUsed, 0)), strconv.Itoa(s.PointsLimit), formatUntil(s.WindowResetAt, now)},
		).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return tableHeaderStyle
			}
			return lipgloss.NewStyle()
		}).
		Render()
}

// =============================================================================
// Helpers
// =============================================================================

func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	diff := now.Sub(t)

	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}

func formatUntil(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	d := t.Sub(now)
	if d <= 0 {
		return "now"
	}
	return "in " + d.Round(time.Second).String()
}
