package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	figure "github.com/common-nighthawk/go-figure"

	"github.com/fenggwsx/DriftChat/chat"
)

type styles struct {
	banner lipgloss.Style
	sender lipgloss.Style
	stamp  lipgloss.Style
	status lipgloss.Style
	typing lipgloss.Style
	err    lipgloss.Style
}

func newStyles() styles {
	return styles{
		banner: lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		sender: lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		stamp:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		typing: lipgloss.NewStyle().Foreground(lipgloss.Color("179")).Italic(true),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

var banner = figure.NewFigure("DriftChat", "", true).String()

// View is part of the tea.Model interface.
func (a *App) View() string {
	if !a.ready {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(a.viewport.View())
	b.WriteString("\n")
	if a.typing != "" {
		b.WriteString(a.styles.typing.Render(a.typing))
	}
	b.WriteString("\n")
	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(a.styles.status.Render(a.statusLine()))
	return b.String()
}

func (a *App) statusLine() string {
	state := a.sdk.ConnectionState().String()
	if a.logLine != "" {
		return fmt.Sprintf("[%s] %s", state, a.logLine)
	}
	return fmt.Sprintf("[%s]", state)
}

func (a *App) refreshViewport() {
	if len(a.lines) == 0 {
		a.viewport.SetContent(a.styles.banner.Render(banner))
		return
	}
	a.viewport.SetContent(strings.Join(a.lines, "\n"))
	a.viewport.GotoBottom()
}

func (a *App) renderMessage(m *chat.Message) string {
	sender := "system"
	if m.Sender != nil {
		sender = m.Sender.Nickname
		if sender == "" {
			sender = m.Sender.UserID
		}
	}
	stamp := time.UnixMilli(m.DisplayTimestamp()).Format("15:04:05")
	body := m.Message
	if m.Type == chat.MessageTypeFile && m.File != nil {
		body = fmt.Sprintf("[file] %s", m.File.URL)
	}
	return fmt.Sprintf("%s %s %s",
		a.styles.stamp.Render(stamp),
		a.styles.sender.Render(sender+":"),
		body)
}
