// Package doc holds the shared chat document: an append-only messages sequence
// and a users map, both convergent across replicas.
//
// Messages are ordered by their Lamport version (clock, client id). The users
// map is last-writer-wins on the same version and keeps tombstones for deleted
// keys so a late, older write cannot bring a key back.
package doc

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"collab-chat/internal/models"
)

// Origin tells observers where a change came from.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Event is delivered to observers after a change was applied.
type Event struct {
	Origin Origin
}

var ErrDestroyed = errors.New("document destroyed")

type userEntry struct {
	clock  uint64
	client string
	user   *models.User
}

type observer struct {
	id int
	fn func(Event)
}

type hook struct {
	id int
	fn func(models.Update)
}

// Document is safe for concurrent use. Observers run synchronously on the
// goroutine that made the change, after the document lock is released.
type Document struct {
	mu        sync.RWMutex
	clientID  string
	clock     uint64
	messages  []models.Update
	seen      map[string]struct{}
	users     map[string]userEntry
	msgObs    []observer
	userObs   []observer
	hooks     []hook
	nextID    int
	destroyed bool
}

// New creates an empty document replica owned by clientID.
func New(clientID string) *Document {
	return &Document{
		clientID: clientID,
		seen:     make(map[string]struct{}),
		users:    make(map[string]userEntry),
	}
}

// ClientID returns the replica id stamped on local updates.
func (d *Document) ClientID() string {
	return d.clientID
}

// Push appends msg to the messages sequence.
func (d *Document) Push(msg models.Message) error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDestroyed
	}
	d.clock++
	m := msg
	u := models.Update{Kind: models.UpdateMessage, Clock: d.clock, ClientID: d.clientID, Message: &m}
	d.insertMessage(u)
	msgObs, hooks := d.msgObs, d.hooks
	d.mu.Unlock()

	notify(msgObs, Event{Origin: OriginLocal})
	runHooks(hooks, u)
	return nil
}

// Messages returns the sequence in convergent order.
func (d *Document) Messages() []models.Message {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Message, 0, len(d.messages))
	for _, u := range d.messages {
		out = append(out, *u.Message)
	}
	return out
}

// Last returns at most n trailing messages.
func (d *Document) Last(n int) []models.Message {
	msgs := d.Messages()
	if n >= 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// Len returns the number of messages.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.messages)
}

// User returns the live record stored under key.
func (d *Document) User(key string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.users[key]
	if !ok || e.user == nil {
		return models.User{}, false
	}
	return cloneUser(*e.user), true
}

// Users returns a copy of every live record.
func (d *Document) Users() map[string]models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]models.User, len(d.users))
	for k, e := range d.users {
		if e.user != nil {
			out[k] = cloneUser(*e.user)
		}
	}
	return out
}

// SetUser replaces the whole record stored under key.
func (d *Document) SetUser(key string, user models.User) error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDestroyed
	}
	d.clock++
	rec := cloneUser(user)
	u := models.Update{Kind: models.UpdateUserSet, Clock: d.clock, ClientID: d.clientID, Key: key, User: &rec}
	d.writeUser(u)
	userObs, hooks := d.userObs, d.hooks
	d.mu.Unlock()

	notify(userObs, Event{Origin: OriginLocal})
	runHooks(hooks, u)
	return nil
}

// DeleteUser removes key. Deleting a missing key is a no-op.
func (d *Document) DeleteUser(key string) error {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return ErrDestroyed
	}
	if e, ok := d.users[key]; !ok || e.user == nil {
		d.mu.Unlock()
		return nil
	}
	d.clock++
	u := models.Update{Kind: models.UpdateUserDelete, Clock: d.clock, ClientID: d.clientID, Key: key}
	d.writeUser(u)
	userObs, hooks := d.userObs, d.hooks
	d.mu.Unlock()

	notify(userObs, Event{Origin: OriginLocal})
	runHooks(hooks, u)
	return nil
}

// Apply merges updates produced by other replicas and returns the ones that
// changed this replica. Re-delivered or superseded updates are dropped.
func (d *Document) Apply(updates []models.Update, origin Origin) []models.Update {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return nil
	}
	var applied []models.Update
	var msgChanged, usersChanged bool
	for _, u := range updates {
		if u.Clock > d.clock {
			d.clock = u.Clock
		}
		switch u.Kind {
		case models.UpdateMessage:
			if u.Message == nil {
				continue
			}
			m := *u.Message
			u.Message = &m
			if d.insertMessage(u) {
				applied = append(applied, u)
				msgChanged = true
			}
		case models.UpdateUserSet, models.UpdateUserDelete:
			if u.Key == "" || (u.Kind == models.UpdateUserSet && u.User == nil) {
				continue
			}
			if u.User != nil {
				rec := cloneUser(*u.User)
				u.User = &rec
			}
			if d.writeUser(u) {
				applied = append(applied, u)
				usersChanged = true
			}
		}
	}
	msgObs, userObs := d.msgObs, d.userObs
	d.mu.Unlock()

	if msgChanged {
		notify(msgObs, Event{Origin: origin})
	}
	if usersChanged {
		notify(userObs, Event{Origin: origin})
	}
	return applied
}

// Snapshot returns updates that rebuild the full state, tombstones included.
func (d *Document) Snapshot() []models.Update {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Update, 0, len(d.messages)+len(d.users))
	out = append(out, d.messages...)
	keys := make([]string, 0, len(d.users))
	for k := range d.users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := d.users[k]
		u := models.Update{Clock: e.clock, ClientID: e.client, Key: k}
		if e.user == nil {
			u.Kind = models.UpdateUserDelete
		} else {
			rec := cloneUser(*e.user)
			u.Kind = models.UpdateUserSet
			u.User = &rec
		}
		out = append(out, u)
	}
	return out
}

// ObserveMessages registers fn for sequence changes.
func (d *Document) ObserveMessages(fn func(Event)) func() {
	return d.observe(&d.msgObs, fn)
}

// ObserveUsers registers fn for users map changes.
func (d *Document) ObserveUsers(fn func(Event)) func() {
	return d.observe(&d.userObs, fn)
}

// OnLocalUpdate registers fn for every update produced by this replica.
func (d *Document) OnLocalUpdate(fn func(models.Update)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.hooks = append(append([]hook(nil), d.hooks...), hook{id: id, fn: fn})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		kept := make([]hook, 0, len(d.hooks))
		for _, h := range d.hooks {
			if h.id != id {
				kept = append(kept, h)
			}
		}
		d.hooks = kept
	}
}

// Destroy drops every observer and rejects further writes.
func (d *Document) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
	d.msgObs = nil
	d.userObs = nil
	d.hooks = nil
}

// Destroyed reports whether Destroy was called.
func (d *Document) Destroyed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.destroyed
}

func (d *Document) observe(list *[]observer, fn func(Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	// copy-on-write so notify can iterate a snapshot without the lock
	*list = append(append([]observer(nil), (*list)...), observer{id: id, fn: fn})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		kept := make([]observer, 0, len(*list))
		for _, o := range *list {
			if o.id != id {
				kept = append(kept, o)
			}
		}
		*list = kept
	}
}

func (d *Document) insertMessage(u models.Update) bool {
	key := fmt.Sprintf("%s:%d", u.ClientID, u.Clock)
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	i := sort.Search(len(d.messages), func(i int) bool {
		return d.messages[i].Newer(u.Clock, u.ClientID)
	})
	d.messages = append(d.messages, models.Update{})
	copy(d.messages[i+1:], d.messages[i:])
	d.messages[i] = u
	return true
}

func (d *Document) writeUser(u models.Update) bool {
	if cur, ok := d.users[u.Key]; ok && !u.Newer(cur.clock, cur.client) {
		return false
	}
	d.users[u.Key] = userEntry{clock: u.Clock, client: u.ClientID, user: u.User}
	return true
}

func notify(list []observer, ev Event) {
	for _, o := range list {
		o.fn(ev)
	}
}

func runHooks(list []hook, u models.Update) {
	for _, h := range list {
		h.fn(u)
	}
}

func cloneUser(u models.User) models.User {
	if u.CursorX != nil {
		x := *u.CursorX
		u.CursorX = &x
	}
	if u.CursorY != nil {
		y := *u.CursorY
		u.CursorY = &y
	}
	return u
}
