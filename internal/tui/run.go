package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the review screen until the user quits or ctx is canceled.
func Run(ctx context.Context, backend Backend) error {
	program := tea.NewProgram(New(ctx, backend), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
