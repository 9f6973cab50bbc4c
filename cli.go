package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abennett/destiny/pkg/client"
	"github.com/abennett/destiny/pkg/messages"
)

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	Align(lipgloss.Center)

var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d14b01"))

var columns = []table.Column{
	{Title: "User", Width: 10},
	{Title: "Result", Width: 6},
	{Title: "Expression", Width: 24},
	{Title: "Done", Width: 6},
}

func newTable(cols []table.Column) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithHeight(0),
		table.WithFocused(false),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(lipgloss.Color("#01c5d1"))
	s.Selected = s.Selected.Foreground(lipgloss.NoColor{}).Bold(false)
	t.SetStyles(s)
	return t
}

type room struct {
	client *client.Client
	table  table.Model
	err    error
}

func newRoom(c *client.Client) *room {
	return &room{
		client: c,
		table:  newTable(columns),
	}
}

func (r *room) readUpdate() tea.Msg {
	return r.client.ReadUpdate()
}

func (r *room) Init() tea.Cmd {
	if err := r.client.Init(); err != nil {
		return func() tea.Msg { return err }
	}
	return r.readUpdate
}

func resultsToRows(rrs []messages.RollResult) []table.Row {
	rows := make([]table.Row, len(rrs))
	for idx, rr := range rrs {
		done := ""
		if rr.IsDone {
			done = "✅"
		}
		rows[idx] = table.Row{rr.User, strconv.FormatInt(rr.Result, 10), rr.Expression, done}
	}
	return rows
}

func allDone(rrs []messages.RollResult) bool {
	for _, rr := range rrs {
		if !rr.IsDone {
			return false
		}
	}
	return len(rrs) > 0
}

func (r *room) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case []messages.RollResult:
		slog.Debug("roll results", "count", len(msg))
		r.table.SetHeight(len(msg) + 1)
		r.table.SetRows(resultsToRows(msg))
		if allDone(msg) {
			return r, tea.Quit
		}
		return r, r.readUpdate
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if err := r.client.Close(); err != nil {
				slog.Error("failed to close client", "error", err)
			}
			return r, tea.Quit
		case " ":
			if err := r.client.ToggleDone(); err != nil {
				r.err = err
				return r, tea.Quit
			}
		}
	case error:
		if errors.Is(msg, client.ErrClosed) {
			return r, tea.Quit
		}
		// server errors are shown but keep the session open
		slog.Debug("error received", "error", msg)
		r.err = msg
		return r, r.readUpdate
	default:
		slog.Debug("unsupported message", "msg", msg)
	}
	return r, nil
}

func (r *room) View() string {
	state := r.client.State()
	header := fmt.Sprintf("%s rolling %s\n", state.Name, state.Dice)
	view := header + baseStyle.Render(r.table.View()) + "\n"
	if r.err != nil {
		view += errStyle.Render(r.err.Error()) + "\n"
	}
	return view
}

func rollRemote(_ context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("host, room and username are required")
	}
	var notation string
	if len(args) > 3 {
		notation = args[3]
	}

	// the TUI owns the terminal, so client logs go to a file
	logFile, err := os.Create(filepath.Join(os.TempDir(), "destiny-client.log"))
	if err != nil {
		return err
	}
	defer logFile.Close()

	c, err := client.New(args[0], args[1], args[2], notation, logFile)
	if err != nil {
		return err
	}
	r := newRoom(c)
	if _, err = tea.NewProgram(r).Run(); err != nil {
		return err
	}
	return r.err
}
