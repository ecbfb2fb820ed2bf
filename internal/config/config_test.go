package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnection(t *testing.T) {
	tests := []struct {
		name     string
		conn     string
		endpoint string
		token    string
	}{
		{name: "secure alias", conn: "yss://secret@relay.example.com", endpoint: "wss://relay.example.com", token: "secret"},
		{name: "plain alias", conn: "ys://tok@localhost:8083/", endpoint: "ws://localhost:8083", token: "tok"},
		{name: "websocket scheme", conn: "ws://abc@127.0.0.1:9000", endpoint: "ws://127.0.0.1:9000", token: "abc"},
		{name: "no token", conn: "wss://relay.example.com", endpoint: "wss://relay.example.com", token: ""},
		{name: "empty token", conn: "ws://@localhost:8083", endpoint: "ws://localhost:8083", token: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			relay, err := ParseConnection(tc.conn)
			require.NoError(t, err)
			assert.Equal(t, tc.endpoint, relay.Endpoint)
			assert.Equal(t, tc.token, relay.Token)
		})
	}
}

func TestParseConnectionErrors(t *testing.T) {
	for _, conn := range []string{"", "relay.example.com", "http://tok@host", "ws://tok@"} {
		_, err := ParseConnection(conn)
		assert.Error(t, err, conn)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, DefaultAIModel, cfg.AIModel)
	assert.Equal(t, "main", cfg.Room)
}
