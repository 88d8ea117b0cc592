package tui

import (
	"time"

	"github.com/Veraticus/browser2excel/internal/pipeline"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	statusPollInterval = time.Second
	noticeDuration     = 4 * time.Second
)

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		source, rows, err := m.backend.Refresh(m.ctx)
		return batchLoadedMsg{source: source, rows: rows, err: err}
	}
}

func (m Model) add(row pipeline.Row) tea.Cmd {
	return func() tea.Msg {
		position, err := m.backend.Add(m.ctx, row.Batch, row.ID)
		return rowAddedMsg{batch: row.Batch, id: row.ID, position: position, err: err}
	}
}

func (m Model) highlight(id int) tea.Cmd {
	return func() tea.Msg {
		return highlightSentMsg{id: id, err: m.backend.Highlight(id)}
	}
}

func (m Model) pollStatus() tea.Cmd {
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg {
		return statusMsg{status: m.backend.Status()}
	})
}

func clearNotice(seq int) tea.Cmd {
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}
