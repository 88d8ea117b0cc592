// Package tui is the interactive review screen: it lists the current batch, adds rows to the
// table at most once, and highlights cards on the page through the relay.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/browser2excel/internal/pipeline"
	"github.com/Veraticus/browser2excel/internal/relay"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type noticeLevel int

const (
	noticeInfo noticeLevel = iota
	noticeWarn
	noticeError
)

// Model holds the review screen state.
type Model struct {
	ctx         context.Context
	backend     Backend
	theme       Theme
	source      string
	notice      string
	rows        []pipeline.Row
	keymap      KeyMap
	status      relay.Status
	help        help.Model
	table       table.Model
	spinner     spinner.Model
	width       int
	height      int
	noticeSeq   int
	noticeLevel noticeLevel
	loading     bool
	quitting    bool
}

// New returns a review model for backend.
func New(ctx context.Context, backend Backend) Model {
	t := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#fafafa")).Background(DefaultTheme.Primary)
	t.SetStyles(styles)

	return Model{
		ctx:     ctx,
		backend: backend,
		theme:   DefaultTheme,
		keymap:  DefaultKeyMap(),
		help:    help.New(),
		table:   t,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		status:  backend.Status(),
		loading: true,
	}
}

func columns(width int) []table.Column {
	fixed := 4 + 10 + 12 + 10 + 11 + 3
	desc := max(width-fixed-12, 16)
	return []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Date", Width: 10},
		{Title: "Description", Width: desc},
		{Title: "Kind", Width: 12},
		{Title: "Frequency", Width: 10},
		{Title: "Amount", Width: 11},
		{Title: "", Width: 3},
	}
}

// Init loads the first batch and starts polling the relay status.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(), m.pollStatus())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(columns(msg.Width))
		m.table.SetWidth(msg.Width - 2)
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case batchLoadedMsg:
		m.loading = false
		if msg.err != nil {
			return m, m.setNotice(noticeError, fmt.Sprintf("Refresh failed: %v", msg.err))
		}
		m.source = msg.source
		m.rows = msg.rows
		m.table.SetRows(m.tableRows())
		m.table.SetCursor(0)
		return m, m.setNotice(noticeInfo, fmt.Sprintf("Loaded %d transactions", len(msg.rows)))

	case rowAddedMsg:
		if !m.showsBatch(msg.batch) {
			return m, nil
		}
		if msg.err != nil {
			level := noticeError
			if errors.Is(msg.err, pipeline.ErrAlreadyAdded) {
				level = noticeWarn
				m.markAdded(msg.id)
			}
			return m, m.setNotice(level, msg.err.Error())
		}
		m.markAdded(msg.id)
		return m, m.setNotice(noticeInfo, fmt.Sprintf("Added row %d at sheet row %d", msg.id, msg.position+2))

	case highlightSentMsg:
		if msg.err != nil {
			return m, m.setNotice(noticeError, fmt.Sprintf("Highlight failed: %v", msg.err))
		}
		return m, m.setNotice(noticeInfo, fmt.Sprintf("Highlighted card %d", msg.id))

	case statusMsg:
		m.status = msg.status
		return m, m.pollStatus()

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keymap.Refresh):
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.refresh())

	case key.Matches(msg, m.keymap.Add):
		if m.loading {
			return m, m.setNotice(noticeWarn, "Still loading the batch")
		}
		row, ok := m.selected()
		if !ok {
			return m, nil
		}
		if row.Added {
			return m, m.setNotice(noticeWarn, fmt.Sprintf("Row %d was already added", row.ID))
		}
		return m, m.add(row)

	case key.Matches(msg, m.keymap.Highlight):
		row, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.highlight(row.ID)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) selected() (pipeline.Row, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return pipeline.Row{}, false
	}
	return m.rows[i], true
}

// showsBatch reports whether the displayed rows belong to batch.
func (m Model) showsBatch(batch int) bool {
	return len(m.rows) > 0 && m.rows[0].Batch == batch
}

func (m *Model) markAdded(id int) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Added = true
		}
	}
	cursor := m.table.Cursor()
	m.table.SetRows(m.tableRows())
	m.table.SetCursor(cursor)
}

func (m *Model) setNotice(level noticeLevel, text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeLevel = level
	return clearNotice(m.noticeSeq)
}

func (m Model) tableRows() []table.Row {
	out := make([]table.Row, len(m.rows))
	for i, row := range m.rows {
		mark := ""
		if row.Added {
			mark = "✓"
		}
		out[i] = table.Row{
			fmt.Sprint(row.ID),
			row.Date,
			row.Description,
			row.Kind,
			row.Frequency,
			row.Amount.StringFixed(2),
			mark,
		}
	}
	return out
}
