// Package presence heartbeats the local presence record into the shared users
// map and derives who is active, typing and pointing from it.
//
// Presence is soft state: records are never trusted to be removed, they are
// treated as gone once lastSeen falls outside the liveness window.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"collab-chat/internal/doc"
	"collab-chat/internal/models"
)

const (
	LivenessWindow  = 10 * time.Second
	PublishInterval = 5 * time.Second
	CursorThrottle  = 50 * time.Millisecond
)

// View is the derived presence state.
type View struct {
	Active  map[string]models.User
	Cursors map[string]models.User
}

// Derive computes the active set and remote cursors at now. The AI
// participant is always active; other records only while
// now-lastSeen < window. Cursors exclude selfID and the AI.
func Derive(users map[string]models.User, selfID string, now time.Time, window time.Duration) View {
	nowMs := now.UnixMilli()
	v := View{
		Active:  make(map[string]models.User, len(users)+1),
		Cursors: make(map[string]models.User),
	}
	v.Active[models.AIUserID] = models.User{Name: models.AIUserName, Color: models.AIUserColor, LastSeen: nowMs}

	for id, u := range users {
		if id == models.AIUserID {
			continue
		}
		if nowMs-u.LastSeen >= window.Milliseconds() {
			continue
		}
		v.Active[id] = u
		if id != selfID && u.HasCursor() {
			v.Cursors[id] = u
		}
	}
	return v
}

// Typing lists active users other than selfID with a non-empty draft, by name.
func (v View) Typing(selfID string) []models.User {
	var out []models.User
	for id, u := range v.Active {
		if id != selfID && u.Typing != "" {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithInterval overrides the heartbeat interval.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithWindow overrides the liveness window.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) { t.window = d }
}

// Tracker owns the local presence record of one session.
type Tracker struct {
	doc      *doc.Document
	self     models.Identity
	now      func() time.Time
	interval time.Duration
	window   time.Duration
	cursor   *rate.Limiter

	// serializes read-modify-write of the local record
	writeMu sync.Mutex

	mu          sync.RWMutex
	view        View
	listeners   []func(View)
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
}

// NewTracker builds a tracker for self over d.
func NewTracker(d *doc.Document, self models.Identity, opts ...Option) *Tracker {
	t := &Tracker{
		doc:      d,
		self:     self,
		now:      time.Now,
		interval: PublishInterval,
		window:   LivenessWindow,
		cursor:   rate.NewLimiter(rate.Every(CursorThrottle), 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.view = Derive(nil, self.ID, t.now(), t.window)
	return t
}

// Start publishes the record, begins observing the users map and runs the
// heartbeat until ctx is done or Close is called.
func (t *Tracker) Start(ctx context.Context) {
	if err := t.Publish(); err != nil {
		log.WithError(err).Warn("initial presence publish failed")
	}
	unsubscribe := t.doc.ObserveUsers(func(doc.Event) { t.refresh() })
	t.refresh()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.mu.Lock()
	t.unsubscribe = unsubscribe
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := t.Publish(); err != nil {
					log.WithError(err).Debug("presence publish skipped")
				}
			}
		}
	}()
}

// Publish refreshes lastSeen. Typing and cursor fields are left as they are.
func (t *Tracker) Publish() error {
	return t.write(func(*models.User) {})
}

// SetTyping stores the current draft text.
func (t *Tracker) SetTyping(text string) error {
	return t.write(func(u *models.User) { u.Typing = text })
}

// MoveCursor stores the pointer position, at most once per throttle period.
// It reports whether the position was written.
func (t *Tracker) MoveCursor(x, y int) (bool, error) {
	if !t.cursor.AllowN(t.now(), 1) {
		return false, nil
	}
	err := t.write(func(u *models.User) {
		u.CursorX = &x
		u.CursorY = &y
	})
	return err == nil, err
}

// View returns the last derived view.
func (t *Tracker) View() View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}

// ActiveUsers returns the active set, AI included.
func (t *Tracker) ActiveUsers() map[string]models.User {
	return t.View().Active
}

// Cursors returns the remote cursors.
func (t *Tracker) Cursors() map[string]models.User {
	return t.View().Cursors
}

// Typing returns the other users currently typing.
func (t *Tracker) Typing() []models.User {
	return t.View().Typing(t.self.ID)
}

// Subscribe registers fn to receive every recomputed view.
func (t *Tracker) Subscribe(fn func(View)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := len(t.listeners)
	t.listeners = append(t.listeners, fn)
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.listeners) {
			t.listeners[idx] = nil
		}
	}
}

// Close stops the heartbeat, stops observing and deletes the local record.
// Other keys are never touched.
func (t *Tracker) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		cancel, done, unsubscribe := t.cancel, t.done, t.unsubscribe
		t.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		if unsubscribe != nil {
			unsubscribe()
		}
		err = t.doc.DeleteUser(t.self.ID)
	})
	return err
}

func (t *Tracker) write(mutate func(*models.User)) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	rec, _ := t.doc.User(t.self.ID)
	rec.Name = t.self.Name
	rec.Color = t.self.Color
	mutate(&rec)
	rec.LastSeen = t.now().UnixMilli()
	return t.doc.SetUser(t.self.ID, rec)
}

func (t *Tracker) refresh() {
	v := Derive(t.doc.Users(), t.self.ID, t.now(), t.window)
	t.mu.Lock()
	t.view = v
	listeners := make([]func(View), len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(v)
		}
	}
}
