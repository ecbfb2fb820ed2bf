package ai

import (
	"fmt"
	"strings"

	"collab-chat/internal/models"
)

// MaxHistory is how many trailing messages travel with a prompt.
const MaxHistory = 5

const instruction = "You are a helpful AI assistant in a collaborative chat room. Keep responses concise and friendly.\n\n"

// BuildPrompt renders the single prompt string sent to the vendor.
func BuildPrompt(message string, history []models.HistoryEntry) string {
	var b strings.Builder
	b.WriteString(instruction)
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "%s: %s\n", h.Sender, h.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User message: %s\n\nYour response:", message)
	return b.String()
}

// TrimHistory keeps the last MaxHistory entries.
func TrimHistory(history []models.HistoryEntry) []models.HistoryEntry {
	if len(history) > MaxHistory {
		return history[len(history)-MaxHistory:]
	}
	return history
}

// HistoryFrom converts sequence entries into prompt context.
func HistoryFrom(msgs []models.Message) []models.HistoryEntry {
	out := make([]models.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.HistoryEntry{Sender: m.Sender, Text: m.Text})
	}
	return out
}
