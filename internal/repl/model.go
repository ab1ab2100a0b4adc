package repl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"podplay/internal/app"
	"podplay/internal/domain"
	"podplay/internal/player"
	"podplay/internal/theme"
)

// statusTickMsg drives the now-playing line refresh.
type statusTickMsg time.Time

type model struct {
	ctx      context.Context
	app      *app.App
	styles   theme.Theme
	input    textinput.Model
	history  []string
	messages []string
	quitting bool
}

func newModel(ctx context.Context, application *app.App, styles theme.Theme) model {
	ti := textinput.New()
	ti.Placeholder = "help"
	ti.Focus()
	ti.Prompt = "podplay> "
	ti.CharLimit = 512
	ti.Width = 80

	return model{
		ctx:     ctx,
		app:     application,
		styles:  styles,
		input:   ti,
		history: make([]string, 0, 32),
		messages: []string{
			styles.Message.Render("Podplay ready. Type 'help' for assistance."),
		},
	}
}

func statusTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, statusTick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusTickMsg:
		return m, statusTick()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	for _, message := range m.messages {
		b.WriteString(message)
		b.WriteString("\n")
	}
	if status := m.statusLine(); status != "" {
		b.WriteString(status)
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	if !m.quitting {
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) handleSubmit() (tea.Model, tea.Cmd) {
	command := strings.TrimSpace(m.input.Value())
	if command != "" {
		m.history = append(m.history, command)
	}
	m.input.SetValue("")

	if command == "" {
		return m, nil
	}

	result, err := m.app.Execute(m.ctx, command)
	if err != nil {
		m.messages = append(m.messages, m.styles.Error.Render(err.Error()))
		return m, nil
	}

	m.messages = append(m.messages, m.renderResult(result)...)

	if result.Quit {
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m model) renderResult(result app.CommandResult) []string {
	var lines []string

	if len(result.Feeds) > 0 {
		if result.FeedsTitle != "" {
			lines = append(lines, m.styles.Header.Render(result.FeedsTitle))
		}
		for _, entry := range result.Feeds {
			lines = append(lines, m.renderFeed(entry))
		}
	}

	if len(result.Episodes) > 0 {
		for _, episode := range result.Episodes {
			lines = append(lines, m.renderEpisode(episode))
		}
	}

	if len(result.Progress) > 0 {
		lines = append(lines, m.styles.Header.Render("Continue Listening"))
		for _, row := range result.Progress {
			lines = append(lines, m.renderProgress(row))
		}
	}

	if result.Message != "" {
		lines = append(lines, result.Message)
	}
	return lines
}

func (m model) renderFeed(entry app.FeedResult) string {
	style := m.styles.Unsubscribed
	marker := " "
	if entry.IsSubscribed {
		style = m.styles.Subscribed
		marker = "*"
	}

	id := fmt.Sprintf("%d", entry.Feed.IndexID)
	if entry.Feed.ID != 0 {
		id = fmt.Sprintf("%d", entry.Feed.ID)
	}

	line := fmt.Sprintf("%s %-8s %s", marker, id, style.Render(entry.Feed.Title))
	if entry.Feed.Author != "" {
		line += m.styles.Dim.Render(" by " + entry.Feed.Author)
	}
	return line
}

func (m model) renderEpisode(episode domain.Episode) string {
	line := fmt.Sprintf("  %-8d %s", episode.ID, m.styles.Normal.Render(episode.Title))
	if episode.Duration > 0 {
		line += " " + m.styles.Dim.Render(formatDuration(episode.Duration))
	}
	if !episode.Published.IsZero() {
		line += " " + m.styles.Date.Render(episode.Published.Format("2006-01-02"))
	}
	return line
}

func (m model) renderProgress(row domain.ProgressWithEpisode) string {
	position := formatPosition(row.Progress.PositionMS)
	return fmt.Sprintf("  %-8d %s %s",
		row.Episode.ID,
		m.styles.Normal.Render(row.Episode.Title),
		m.styles.Position.Render("at "+position),
	)
}

// statusLine renders the unified player state beneath the message log.
func (m model) statusLine() string {
	state := m.app.PlayerState()
	if !state.Active {
		if state.IsLoading {
			return m.styles.Dim.Render("loading...")
		}
		return ""
	}
	return renderNowPlaying(m.styles, state)
}

func renderNowPlaying(styles theme.Theme, state player.State) string {
	verb := "paused"
	style := styles.Dim
	if state.IsPlaying {
		verb = "playing"
		style = styles.Playing
	}

	line := fmt.Sprintf("%s %s", style.Render(verb), styles.Normal.Render(state.Episode.Title))
	if state.Feed.Title != "" {
		line += styles.Dim.Render(" (" + state.Feed.Title + ")")
	}
	line += " " + styles.Position.Render(formatPosition(state.PositionMS))
	return line
}

func formatPosition(positionMS int64) string {
	return formatDuration(time.Duration(positionMS) * time.Millisecond)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
