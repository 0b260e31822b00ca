package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	fullStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const defaultTopWidth = 80

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type topModel struct {
	reg      *registry.Registry
	load     *workload
	table    table.Model
	interval time.Duration
	started  time.Time
	width    int
	full     []objid.Type
}

func topColumns(width int) []table.Column {
	// type column takes what the numeric ones leave
	num := 10
	first := width - 5*num - 12
	if first < 10 {
		first = 10
	}
	return []table.Column{
		{Title: "type", Width: first},
		{Title: "capacity", Width: num},
		{Title: "active", Width: num},
		{Title: "reserved", Width: num},
		{Title: "refs", Width: num},
		{Title: "used", Width: num},
	}
}

func newTopModel(reg *registry.Registry, load *workload, interval time.Duration, width int) *topModel {
	if width <= 0 {
		width = defaultTopWidth
	}
	t := table.New(
		table.WithColumns(topColumns(width)),
		table.WithHeight(len(objid.Types())+1),
		table.WithFocused(false),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Inherit(headerStyle)
	styles.Selected = lipgloss.NewStyle()
	t.SetStyles(styles)

	m := &topModel{
		reg:      reg,
		load:     load,
		table:    t,
		interval: interval,
		started:  time.Now(),
		width:    width,
	}
	m.refresh()
	return m
}

func (m *topModel) refresh() {
	var rows []table.Row
	m.full = m.full[:0]
	for _, t := range objid.Types() {
		s := m.reg.Stats(t)
		if s.Capacity == 0 {
			continue
		}
		used := 100 * (s.Active + s.Reserved) / s.Capacity
		if s.Active+s.Reserved == s.Capacity {
			m.full = append(m.full, t)
		}
		rows = append(rows, table.Row{
			t.String(),
			strconv.Itoa(s.Capacity),
			strconv.Itoa(s.Active),
			strconv.Itoa(s.Reserved),
			strconv.FormatUint(uint64(s.Refs), 10),
			strconv.Itoa(used) + "%",
		})
	}
	m.table.SetRows(rows)
}

func (m *topModel) Init() tea.Cmd {
	return tick(m.interval)
}

func (m *topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetColumns(topColumns(msg.Width))

	case tickMsg:
		m.refresh()
		return m, tick(m.interval)
	}
	return m, nil
}

func (m *topModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("osal registry"))
	b.WriteString(" ")
	b.WriteString(m.reg.State().String())
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	if len(m.full) > 0 {
		names := make([]string, len(m.full))
		for i, t := range m.full {
			names[i] = t.String()
		}
		b.WriteString(fullStyle.Render("full: " + strings.Join(names, ", ")))
		b.WriteString("\n")
	}
	if m.load != nil {
		b.WriteString(fmt.Sprintf("%d ops in %s\n",
			m.load.ops.Load(), time.Since(m.started).Round(time.Second)))
	}
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

func newTopCommand(a *app) *cobra.Command {
	var (
		workers  int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "watch table occupancy while tasks churn mutexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fd := int(os.Stdout.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("top needs a terminal")
			}
			width, _, err := term.GetSize(fd)
			if err != nil {
				width = defaultTopWidth
			}
			return runTop(cmd.Context(), a, workers, interval, width)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "number of worker tasks, 0 to only watch")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 500*time.Millisecond, "refresh interval")
	return cmd
}

func runTop(ctx context.Context, a *app, workers int, interval time.Duration, width int) error {
	reg, err := a.newRegistry(ctx, a.cfg.Registry)
	if err != nil {
		return err
	}
	defer reg.Teardown()

	var load *workload
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	running := make(chan struct{})

	if workers > 0 {
		// the terminal belongs to the UI
		load, err = newWorkload(reg, zap.NewNop())
		if err != nil {
			return err
		}
		go func() {
			defer close(running)
			if err := load.run(runCtx, workers, 0); err != nil {
				a.logger.Warn("workload", zap.Error(err))
			}
		}()
	}

	p := tea.NewProgram(newTopModel(reg, load, interval, width), tea.WithContext(ctx), tea.WithAltScreen())
	_, err = p.Run()
	cancel()

	if load != nil {
		<-running
		closeCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if cerr := load.close(closeCtx); cerr != nil {
			a.logger.Debug("close workload", zap.Error(cerr))
		}
	}
	return err
}
