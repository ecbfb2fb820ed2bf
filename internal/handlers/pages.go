package handlers

import (
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"collab-chat/internal/chat"
	"collab-chat/internal/models"
	"collab-chat/internal/presence"
	"collab-chat/internal/ws"
)

// PagesHandler renders the landing page and a read-only view of a room.
type PagesHandler struct {
	hub         *ws.Hub
	defaultRoom string
	now         func() time.Time
}

// NewPagesHandler builds a PagesHandler.
func NewPagesHandler(hub *ws.Hub, defaultRoom string) *PagesHandler {
	return &PagesHandler{hub: hub, defaultRoom: defaultRoom, now: time.Now}
}

type activeUser struct {
	ID string
	models.User
	IsAI bool
}

type chatPage struct {
	Room    string
	Threads []chat.Thread
	Active  []activeUser
	Typing  []models.User
}

// Home renders the landing page.
func (h *PagesHandler) Home(c *gin.Context) {
	c.HTML(http.StatusOK, "home", gin.H{"Room": h.defaultRoom})
}

// Chat renders the messages and presence of ?room=.
func (h *PagesHandler) Chat(c *gin.Context) {
	room := c.DefaultQuery("room", h.defaultRoom)
	if !ws.ValidRoom(room) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room"})
		return
	}
	replica, err := h.hub.Replica(c.Request.Context(), room)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}

	view := presence.Derive(replica.Users(), "", h.now(), presence.LivenessWindow)
	active := make([]activeUser, 0, len(view.Active))
	for id, u := range view.Active {
		active = append(active, activeUser{ID: id, User: u, IsAI: id == models.AIUserID})
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].IsAI != active[j].IsAI {
			return active[i].IsAI
		}
		return active[i].Name < active[j].Name
	})

	c.HTML(http.StatusOK, "chat", chatPage{
		Room:    room,
		Threads: chat.Threads(replica.Messages()),
		Active:  active,
		Typing:  view.Typing(""),
	})
}

// Templates parses the page templates for gin.Engine.SetHTMLTemplate.
func Templates() *template.Template {
	return template.Must(template.New("pages").Funcs(template.FuncMap{
		"clock": func(ms int64) string { return time.UnixMilli(ms).Format("15:04:05") },
	}).Parse(pageTemplates))
}

const pageTemplates = `
{{define "home"}}<!DOCTYPE html>
<html><head><title>Collaborative Chat</title></head>
<body style="font-family: system-ui, sans-serif; text-align: center; padding: 20px">
<h1>Collaborative Chat</h1>
<a href="/chat?room={{.Room}}">Open Collaborative Chat</a>
</body></html>{{end}}

{{define "chat"}}<!DOCTYPE html>
<html><head><title>Collaborative Chat - {{.Room}}</title><meta http-equiv="refresh" content="5"></head>
<body style="font-family: system-ui, sans-serif; display: flex">
<aside style="width: 250px">
<h2>Active Users ({{len .Active}})</h2>
<ul>{{range .Active}}<li style="color: {{.Color}}">{{.Name}}{{if .Typing}} <em>"{{.Typing}}"</em>{{end}}</li>{{end}}</ul>
</aside>
<main style="flex: 1">
<h1>AI-Powered Collaborative Chat</h1>
{{if not .Threads}}<p>No messages yet. Start the conversation!</p>{{end}}
{{range .Threads}}<div class="thread">
<p><strong style="color: {{.Message.Color}}">{{.Message.Sender}}</strong> <small>{{clock .Message.Timestamp}}</small><br>{{.Message.Text}}</p>
{{with .Reply}}<blockquote><strong style="color: {{.Color}}">{{.Sender}}</strong> <small>AI Reply</small><br>{{.Text}}</blockquote>{{end}}
</div>{{end}}
{{range .Typing}}<p><em>{{.Name}}: "{{.Typing}}"</em></p>{{end}}
</main>
</body></html>{{end}}
`
