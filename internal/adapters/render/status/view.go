// Package status renders the tracked recency state for the status command.
package status

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/tabflow/internal/domain"
)

type RenderOptions struct {
	Now        time.Time
	StaleAfter time.Duration
}

func renderView(snapshot domain.Snapshot, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Tabflow Recency State"),
		s.header.Render(fmt.Sprintf("windows: %d", len(snapshot.Windows))),
	}

	if !snapshot.Timestamp.IsZero() {
		captured := s.header.Render("captured " + formatAge(snapshot.Timestamp, opts.Now))
		if stale(snapshot, opts) {
			captured += " " + s.warning.Render("[stale]")
		}
		lines = append(lines, captured)
	}

	if len(snapshot.Windows) == 0 {
		lines = append(lines, s.empty.Render("No tracked windows."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, window := range snapshot.Windows {
		lines = append(lines, s.section.Render(renderWindow(window, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func stale(snapshot domain.Snapshot, opts RenderOptions) bool {
	if opts.Now.IsZero() || opts.StaleAfter <= 0 {
		return false
	}
	return opts.Now.Sub(snapshot.Timestamp) > opts.StaleAfter
}

func renderWindow(window domain.WindowSnapshot, opts RenderOptions, s styles) string {
	parts := []string{s.window.Render(windowTitle(window))}

	tabs := rankedTabs(window)
	if len(tabs) == 0 {
		parts = append(parts, s.empty.Render("  (no tabs)"))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	for i, tab := range tabs {
		parts = append(parts, tabLine(i, tab, opts, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func windowTitle(window domain.WindowSnapshot) string {
	kind := "pinned"
	if window.Movable {
		kind = "normal"
	}
	return fmt.Sprintf("Window %d (%s, %d tabs)", window.WindowID, kind, len(window.Tabs))
}

// rankedTabs orders a window's tabs most recent first.
func rankedTabs(window domain.WindowSnapshot) []domain.TabSnapshot {
	tabs := append([]domain.TabSnapshot(nil), window.Tabs...)
	sort.SliceStable(tabs, func(i, j int) bool {
		return tabs[i].Order.After(tabs[j].Order)
	})
	return tabs
}

func tabLine(rank int, tab domain.TabSnapshot, opts RenderOptions, s styles) string {
	label := s.rank.Render(fmt.Sprintf("  %2d.", rank+1))
	name := s.tab.Render(fmt.Sprintf("tab %d", tab.TabID))
	if rank == 0 {
		name = s.current.Render(fmt.Sprintf("tab %d", tab.TabID)) + " " + s.rank.Render("(current)")
	}
	age := s.age.Render(formatAge(tab.Order, opts.Now))

	return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", name, " ", age)
}

func formatAge(at, now time.Time) string {
	if at.IsZero() {
		return "unknown"
	}
	if now.IsZero() || at.After(now) {
		return at.Format("15:04:05")
	}

	elapsed := now.Sub(at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		hours := int(math.Floor(elapsed.Hours()))
		return fmt.Sprintf("%dh ago", hours)
	default:
		days := int(math.Floor(elapsed.Hours() / 24))
		return fmt.Sprintf("%dd ago", days)
	}
}
