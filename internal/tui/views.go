package tui

import (
	"fmt"
	"strings"

	"github.com/Veraticus/browser2excel/internal/relay"
)

// View renders the review screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.theme.Box.Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(m.renderNotice())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keymap))
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.theme.Title.Render("browser2excel review")
	source := m.source
	if source == "" {
		source = "no page loaded"
	}
	added := 0
	for _, row := range m.rows {
		if row.Added {
			added++
		}
	}

	parts := []string{
		title,
		m.theme.Subtle.Render(source),
		m.theme.Subtle.Render(fmt.Sprintf("%d/%d added", added, len(m.rows))),
		m.renderStatus(),
	}
	if m.loading {
		parts = append(parts, m.spinner.View()+" loading")
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderStatus() string {
	switch m.status.ConnectionState {
	case relay.StateConnected:
		return m.theme.StatusOK.Render("● connected")
	case relay.StateConnecting, relay.StateReconnecting:
		return m.theme.StatusWarn.Render(fmt.Sprintf("◌ %s (%d)", m.status.ConnectionState, m.status.ReconnectAttempts))
	default:
		return m.theme.StatusError.Render("○ disconnected")
	}
}

func (m Model) renderNotice() string {
	switch m.noticeLevel {
	case noticeError:
		return m.theme.StatusError.Render(m.notice)
	case noticeWarn:
		return m.theme.StatusWarn.Render(m.notice)
	default:
		return m.theme.Subtle.Render(m.notice)
	}
}
