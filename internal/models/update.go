package models

// Update kinds.
const (
	UpdateMessage    = "message"
	UpdateUserSet    = "user_set"
	UpdateUserDelete = "user_delete"
)

// Frame types exchanged with the relay.
const (
	FrameSync   = "sync"
	FrameUpdate = "update"
)

// Update is a single document operation. Clock and ClientID form its Lamport version.
type Update struct {
	Kind     string   `json:"kind"`
	Clock    uint64   `json:"clock"`
	ClientID string   `json:"client_id"`
	Key      string   `json:"key,omitempty"`
	User     *User    `json:"user,omitempty"`
	Message  *Message `json:"message,omitempty"`
}

// Newer reports whether u is ordered after (clock, clientID).
func (u Update) Newer(clock uint64, clientID string) bool {
	if u.Clock != clock {
		return u.Clock > clock
	}
	return u.ClientID > clientID
}

// Frame is the websocket payload between a transport provider and the relay.
type Frame struct {
	Type    string   `json:"type"`
	Updates []Update `json:"updates,omitempty"`
}
