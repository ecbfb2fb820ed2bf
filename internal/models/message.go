package models

import "fmt"

// Message is an entry of the shared messages sequence. Entries are append-only.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
	Color     string `json:"color"`
	ReplyTo   string `json:"replyTo,omitempty"`
}

// HistoryEntry is one line of conversational context sent to the AI proxy.
type HistoryEntry struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// MessageID builds the client-generated identifier for a message sent at unix millisecond ts.
func MessageID(userID string, ts int64) string {
	return fmt.Sprintf("%s-%d", userID, ts)
}

// AIRequest is the body accepted by POST /api/ai.
type AIRequest struct {
	Message             string         `json:"message"`
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
}

// AIResponse is the envelope returned by POST /api/ai.
type AIResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}
