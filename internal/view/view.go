// Package view renders a chat room for the terminal.
package view

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"collab-chat/internal/chat"
	"collab-chat/internal/models"
	"collab-chat/internal/presence"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	replyStyle  = lipgloss.NewStyle().
			PaddingLeft(2).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color(models.AIUserColor))
	typingStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6B7280"))
)

// Renderer prints the room state.
type Renderer struct {
	Room string
}

// Render writes the active users, the messages with their AI replies nested
// under them and the typing indicator.
func (r Renderer) Render(w io.Writer, msgs []models.Message, v presence.View, self models.Identity) error {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Room %s | Active Users (%d)", r.Room, len(v.Active))))
	b.WriteString("\n")
	for _, line := range activeLines(v, self) {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("\n")

	threads := chat.Threads(msgs)
	if len(threads) == 0 {
		b.WriteString(dimStyle.Render("No messages yet. Start the conversation!"))
		b.WriteString("\n")
	}
	for _, th := range threads {
		b.WriteString(messageLine(th.Message))
		b.WriteString("\n")
		if th.Reply != nil {
			b.WriteString(replyStyle.Render(messageLine(*th.Reply) + " " + dimStyle.Render("AI Reply")))
			b.WriteString("\n")
		}
	}

	if typing := v.Typing(self.ID); len(typing) > 0 {
		b.WriteString("\n")
		for _, u := range typing {
			b.WriteString(typingStyle.Render(fmt.Sprintf("%s is typing: %q", u.Name, u.Typing)))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func activeLines(v presence.View, self models.Identity) []string {
	ids := make([]string, 0, len(v.Active))
	for id := range v.Active {
		ids = append(ids, id)
	}
	// AI first, then by name.
	sort.Slice(ids, func(i, j int) bool {
		if (ids[i] == models.AIUserID) != (ids[j] == models.AIUserID) {
			return ids[i] == models.AIUserID
		}
		return v.Active[ids[i]].Name < v.Active[ids[j]].Name
	})

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		u := v.Active[id]
		line := colored(u.Name, u.Color)
		if id == self.ID {
			line += " (You)"
		}
		if u.Typing != "" && id != self.ID {
			line += dimStyle.Render(fmt.Sprintf(" %q", u.Typing))
		}
		lines = append(lines, line)
	}
	return lines
}

func messageLine(m models.Message) string {
	ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
	return fmt.Sprintf("%s %s %s", colored(m.Sender, m.Color), dimStyle.Render(ts), m.Text)
}

func colored(text, color string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color)).Render(text)
}
