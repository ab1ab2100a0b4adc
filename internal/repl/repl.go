package repl

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"podplay/internal/app"
	"podplay/internal/theme"
)

// Run starts the interactive REPL session.
func Run(ctx context.Context, application *app.App) error {
	styles := theme.ForName(application.Config().ColorTheme)
	program := tea.NewProgram(newModel(ctx, application, styles), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
