// Command repmgrd-status is a live operator dashboard over the `nodes` and
// `events` tables a repmgrd cluster shares: a read-only view, not a
// reimplementation of the excluded admin CLI (SPEC_FULL.md §1 Non-goals).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/repliguard/pkg/model"
	"github.com/dd0wney/repliguard/pkg/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			MarginLeft(1).
			MarginTop(1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#888888")).
			MarginLeft(1)

	errStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF5555")).
			MarginLeft(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginLeft(1).
			MarginTop(1)

	severityStyles = map[model.EventSeverity]lipgloss.Style{
		model.SeverityInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		model.SeverityWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00")),
		model.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
	}
)

type tickMsg time.Time

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type refreshMsg struct {
	nodes  []model.NodeRecord
	events []model.Event
	err    error
}

type dashboard struct {
	meta     store.NodeMetaStore
	interval time.Duration

	nodeTable  table.Model
	eventTable table.Model

	width, height int
	lastErr       error
	lastRefresh   time.Time
}

func newDashboard(meta store.NodeMetaStore, interval time.Duration) dashboard {
	nodeCols := []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Name", Width: 16},
		{Title: "Type", Width: 10},
		{Title: "Upstream", Width: 8},
		{Title: "Active", Width: 7},
		{Title: "Priority", Width: 8},
	}
	nt := table.New(table.WithColumns(nodeCols), table.WithFocused(false), table.WithHeight(10))
	nts := table.DefaultStyles()
	nts.Header = nts.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	nts.Selected = lipgloss.NewStyle()
	nt.SetStyles(nts)

	eventCols := []table.Column{
		{Title: "Time", Width: 19},
		{Title: "Node", Width: 4},
		{Title: "Kind", Width: 24},
		{Title: "Severity", Width: 8},
		{Title: "Detail", Width: 40},
	}
	et := table.New(table.WithColumns(eventCols), table.WithFocused(false), table.WithHeight(12))
	et.SetStyles(nts)

	return dashboard{meta: meta, interval: interval, nodeTable: nt, eventTable: et}
}

func (d dashboard) Init() tea.Cmd {
	return tea.Batch(d.refreshCmd(), tickCmd(d.interval))
}

func (d dashboard) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		nodes, err := d.meta.GetAllNodes(ctx)
		if err != nil {
			return refreshMsg{err: err}
		}
		events, err := d.meta.GetRecentEvents(ctx, 20)
		if err != nil {
			return refreshMsg{err: err}
		}
		return refreshMsg{nodes: nodes, events: events}
	}
}

func (d dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width, d.height = msg.Width, msg.Height
		return d, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return d, tea.Quit
		}

	case tickMsg:
		return d, d.refreshCmd()

	case refreshMsg:
		d.lastRefresh = time.Now()
		if msg.err != nil {
			d.lastErr = msg.err
			return d, tickCmd(d.interval)
		}
		d.lastErr = nil
		d.nodeTable.SetRows(nodeRows(msg.nodes))
		d.eventTable.SetRows(eventRows(msg.events))
		return d, tickCmd(d.interval)
	}
	return d, nil
}

func nodeRows(nodes []model.NodeRecord) []table.Row {
	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		upstream := "-"
		if n.HasUpstream() {
			upstream = fmt.Sprintf("%d", n.UpstreamNodeID)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", n.NodeID),
			n.Name,
			n.Type.String(),
			upstream,
			fmt.Sprintf("%t", n.Active),
			fmt.Sprintf("%d", n.Priority),
		})
	}
	return rows
}

func eventRows(events []model.Event) []table.Row {
	rows := make([]table.Row, 0, len(events))
	for _, e := range events {
		severity := e.Severity.String()
		if style, ok := severityStyles[e.Severity]; ok {
			severity = style.Render(severity)
		}
		rows = append(rows, table.Row{
			time.Unix(e.TimestampUnix, 0).Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", e.NodeID),
			e.Kind,
			severity,
			truncate(e.Detail, 40),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func (d dashboard) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("repmgrd cluster status"))
	b.WriteString("\n")
	if d.lastErr != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("refresh failed: %v", d.lastErr)))
		b.WriteString("\n")
	}
	b.WriteString(sectionStyle.Render(fmt.Sprintf("nodes (refreshed %s)", formatAge(d.lastRefresh))))
	b.WriteString("\n")
	b.WriteString(d.nodeTable.View())
	b.WriteString("\n\n")
	b.WriteString(sectionStyle.Render("recent events"))
	b.WriteString("\n")
	b.WriteString(d.eventTable.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}

func main() {
	dsn := flag.String("dsn", "", "Postgres connection string for the nodes/events tables")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing -dsn")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	meta, err := store.NewPGNodeMetaStore(ctx, *dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer meta.Close()

	p := tea.NewProgram(newDashboard(meta, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("dashboard exited with error: %v", err)
	}
}
