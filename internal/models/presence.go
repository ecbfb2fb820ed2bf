package models

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// User is the presence record a client publishes under its identity id.
type User struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Typing   string `json:"typing"`
	LastSeen int64  `json:"lastSeen"`
	CursorX  *int   `json:"cursorX,omitempty"`
	CursorY  *int   `json:"cursorY,omitempty"`
}

// HasCursor reports whether both cursor coordinates are set.
func (u User) HasCursor() bool {
	return u.CursorX != nil && u.CursorY != nil
}

// Identity is the per-session participant, created once and passed explicitly.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

const (
	AIUserID    = "ai-assistant"
	AIUserName  = "🤖 AI Assistant"
	AIUserColor = "#9b59b6"
)

// AIIdentity is the synthetic participant that answers messages.
var AIIdentity = Identity{ID: AIUserID, Name: AIUserName, Color: AIUserColor}

var (
	palette    = []string{"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2"}
	adjectives = []string{"Happy", "Clever", "Swift", "Brave", "Bright", "Cool", "Calm", "Bold"}
	nouns      = []string{"Panda", "Tiger", "Eagle", "Fox", "Wolf", "Bear", "Lion", "Hawk"}
)

// NewIdentity returns a random identity. An empty name picks a random "Adjective Noun".
func NewIdentity(name string) Identity {
	if strings.TrimSpace(name) == "" {
		name = pick(adjectives) + " " + pick(nouns)
	}
	return Identity{
		ID:    strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Name:  name,
		Color: pick(palette),
	}
}

func pick(options []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(options))))
	if err != nil {
		return options[0]
	}
	return options[n.Int64()]
}
