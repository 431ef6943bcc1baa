package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlstream/internal/stream"
	"github.com/leapstack-labs/sqlstream/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).MarginTop(1)
	baseStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

var watchColumns = []table.Column{
	{Title: "Ref", Width: 6},
	{Title: "Rows", Width: 6},
	{Title: "Updated", Width: 10},
	{Title: "Latest", Width: 48},
	{Title: "Errors", Width: 6},
}

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Targets string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard for a targets file",
		Long: `Stream every target of a targets file into a terminal dashboard showing
each target's row count, latest row and error count.

Keys: up/down select a target, q quits.`,
		Example: `  sqlstream watch --targets targets.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Targets, "targets", "t", "", "Targets file (YAML)")
	_ = cmd.MarkFlagRequired("targets")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)

	tf, err := LoadTargetsFile(opts.Targets)
	if err != nil {
		return err
	}
	req := tf.Request(time.Now())
	for i := range req.Targets {
		req.Targets[i].Streaming = true
	}
	ApplyStreamingDefaults(&req, cmdCtx.Cfg.Streaming)

	client, err := cmdCtx.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	res, err := cmdCtx.Dispatcher(cmdCtx.Executor(client, nil), nil).Dispatch(ctx, req)
	if err != nil {
		return err
	}
	defer res.Feed.Cancel()

	p := tea.NewProgram(newWatchModel(res.Feed, opts.Targets),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

type targetStatus struct {
	rows    int
	latest  string
	updated time.Time
	errors  int
	lastErr string
}

type updateMsg core.Update

type feedClosedMsg struct{}

type watchModel struct {
	feed   *stream.Feed
	source string
	order  []string
	status map[string]*targetStatus
	table  table.Model
	closed bool
}

func newWatchModel(feed *stream.Feed, source string) watchModel {
	m := watchModel{
		feed:   feed,
		source: source,
		status: make(map[string]*targetStatus),
	}
	for _, s := range feed.Sessions() {
		m.order = append(m.order, s.RefID())
		m.status[s.RefID()] = &targetStatus{}
	}

	t := table.New(
		table.WithColumns(watchColumns),
		table.WithFocused(true),
		table.WithHeight(max(len(m.order), 1)+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)
	m.table = t
	m.table.SetRows(m.rows())
	return m
}

func waitForUpdate(feed *stream.Feed) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-feed.Events()
		if !ok {
			return feedClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m watchModel) Init() tea.Cmd {
	return waitForUpdate(m.feed)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case updateMsg:
		m.apply(core.Update(msg))
		m.table.SetRows(m.rows())
		return m, waitForUpdate(m.feed)
	case feedClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// apply records one update. Updates for unknown keys add a row.
func (m *watchModel) apply(u core.Update) {
	st, ok := m.status[u.Key]
	if !ok {
		st = &targetStatus{}
		m.status[u.Key] = st
		m.order = append(m.order, u.Key)
	}
	if u.IsError() {
		st.errors++
		st.lastErr = u.Err.Error()
		return
	}
	resp := &core.Response{Fields: u.Frame.Fields}
	st.rows = resp.Rows()
	st.updated = time.Now()
	st.latest = ""
	if st.rows > 0 {
		values := resp.Row(st.rows - 1)
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = formatValue(v)
		}
		st.latest = strings.Join(parts, "  ")
	}
}

func (m watchModel) rows() []table.Row {
	rows := make([]table.Row, len(m.order))
	for i, key := range m.order {
		st := m.status[key]
		updated := "-"
		if !st.updated.IsZero() {
			updated = st.updated.Format(time.TimeOnly)
		}
		rows[i] = table.Row{key, fmt.Sprint(st.rows), updated, st.latest, fmt.Sprint(st.errors)}
	}
	return rows
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("sqlstream watch  " + m.source))
	b.WriteString("\n")
	b.WriteString(baseStyle.Render(m.table.View()))
	b.WriteString("\n")

	if row := m.table.SelectedRow(); row != nil {
		if st := m.status[row[0]]; st != nil && st.lastErr != "" {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%s: %s", row[0], st.lastErr)))
			b.WriteString("\n")
		}
	}
	if m.closed {
		b.WriteString(helpStyle.Render("feed closed"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓ select • q quit"))
	}
	b.WriteString("\n")
	return b.String()
}
