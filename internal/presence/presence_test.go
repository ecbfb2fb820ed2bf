package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-chat/internal/doc"
	"collab-chat/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.UnixMilli(1_700_000_000_000)} }

func intPtr(v int) *int { return &v }

func TestDeriveLivenessWindow(t *testing.T) {
	now := time.UnixMilli(100_000)
	users := map[string]models.User{
		"fresh":    {Name: "fresh", LastSeen: 95_000},
		"edge":     {Name: "edge", LastSeen: 90_001},
		"expired":  {Name: "expired", LastSeen: 90_000},
		"ancient":  {Name: "ancient", LastSeen: 0},
		"fromPast": {Name: "fromPast", LastSeen: 100_000},
	}

	v := Derive(users, "self", now, LivenessWindow)

	assert.Contains(t, v.Active, "fresh")
	assert.Contains(t, v.Active, "edge")
	assert.Contains(t, v.Active, "fromPast")
	assert.NotContains(t, v.Active, "expired")
	assert.NotContains(t, v.Active, "ancient")
	assert.Contains(t, v.Active, models.AIUserID)
}

func TestDeriveAlwaysIncludesAI(t *testing.T) {
	v := Derive(nil, "self", time.Now(), LivenessWindow)
	require.Len(t, v.Active, 1)
	ai := v.Active[models.AIUserID]
	assert.Equal(t, models.AIUserName, ai.Name)
	assert.Equal(t, models.AIUserColor, ai.Color)
}

func TestDeriveCursors(t *testing.T) {
	now := time.UnixMilli(100_000)
	users := map[string]models.User{
		"self":      {LastSeen: 99_000, CursorX: intPtr(1), CursorY: intPtr(1)},
		"pointing":  {LastSeen: 99_000, CursorX: intPtr(10), CursorY: intPtr(20)},
		"half":      {LastSeen: 99_000, CursorX: intPtr(10)},
		"stale":     {LastSeen: 1_000, CursorX: intPtr(10), CursorY: intPtr(20)},
		"no-cursor": {LastSeen: 99_000},
	}

	v := Derive(users, "self", now, LivenessWindow)

	require.Len(t, v.Cursors, 1)
	assert.Contains(t, v.Cursors, "pointing")
	assert.Contains(t, v.Active, "self")
}

func TestViewTyping(t *testing.T) {
	v := View{Active: map[string]models.User{
		"self": {Name: "Me", Typing: "draft"},
		"b":    {Name: "Zed", Typing: "yo"},
		"a":    {Name: "Amy", Typing: "hi"},
		"c":    {Name: "Quiet"},
	}}

	typing := v.Typing("self")
	require.Len(t, typing, 2)
	assert.Equal(t, "Amy", typing[0].Name)
	assert.Equal(t, "Zed", typing[1].Name)
}

func TestPublishPreservesTypingAndCursor(t *testing.T) {
	clock := newClock()
	d := doc.New("c1")
	self := models.Identity{ID: "me", Name: "Me", Color: "#fff"}
	tr := NewTracker(d, self, WithClock(clock.Now))

	require.NoError(t, tr.SetTyping("hello"))
	written, err := tr.MoveCursor(3, 4)
	require.NoError(t, err)
	require.True(t, written)
	before, _ := d.User("me")

	clock.Advance(time.Second)
	require.NoError(t, tr.Publish())
	require.NoError(t, tr.Publish())
	after, _ := d.User("me")

	assert.Equal(t, before.Typing, after.Typing)
	assert.Equal(t, *before.CursorX, *after.CursorX)
	assert.Equal(t, *before.CursorY, *after.CursorY)
	assert.Equal(t, before.LastSeen+1000, after.LastSeen)
}

func TestMoveCursorThrottled(t *testing.T) {
	clock := newClock()
	d := doc.New("c1")
	tr := NewTracker(d, models.Identity{ID: "me"}, WithClock(clock.Now))

	ok, err := tr.MoveCursor(1, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(10 * time.Millisecond)
	ok, _ = tr.MoveCursor(2, 2)
	assert.False(t, ok)

	clock.Advance(CursorThrottle)
	ok, _ = tr.MoveCursor(3, 3)
	assert.True(t, ok)

	u, _ := d.User("me")
	assert.Equal(t, 3, *u.CursorX)
}

func TestStartDerivesRemoteUsers(t *testing.T) {
	clock := newClock()
	d := doc.New("c1")
	tr := NewTracker(d, models.Identity{ID: "me", Name: "Me"}, WithClock(clock.Now), WithInterval(time.Hour))
	var views []View
	tr.Subscribe(func(v View) { views = append(views, v) })

	tr.Start(context.Background())
	defer tr.Close()

	remote := doc.New("c2")
	require.NoError(t, remote.SetUser("other", models.User{
		Name: "Other", Typing: "typing...", LastSeen: clock.Now().UnixMilli(),
		CursorX: intPtr(5), CursorY: intPtr(6),
	}))
	d.Apply(remote.Snapshot(), doc.OriginRemote)

	active := tr.ActiveUsers()
	assert.Contains(t, active, "me")
	assert.Contains(t, active, "other")
	assert.Contains(t, active, models.AIUserID)
	assert.Contains(t, tr.Cursors(), "other")
	require.Len(t, tr.Typing(), 1)
	assert.Equal(t, "Other", tr.Typing()[0].Name)
	assert.NotEmpty(t, views)
}

func TestCloseRemovesOnlyOwnKey(t *testing.T) {
	clock := newClock()
	d := doc.New("c1")
	require.NoError(t, d.SetUser("other", models.User{Name: "Other", LastSeen: 1}))
	tr := NewTracker(d, models.Identity{ID: "me", Name: "Me"}, WithClock(clock.Now), WithInterval(time.Hour))
	tr.Start(context.Background())

	_, ok := d.User("me")
	require.True(t, ok)
	before, _ := d.User("other")

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, ok = d.User("me")
	assert.False(t, ok)
	after, ok := d.User("other")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestHeartbeatRepublishes(t *testing.T) {
	d := doc.New("c1")
	tr := NewTracker(d, models.Identity{ID: "me"}, WithInterval(5*time.Millisecond))
	tr.Start(context.Background())
	defer tr.Close()

	first, _ := d.User("me")
	require.Eventually(t, func() bool {
		u, _ := d.User("me")
		return u.LastSeen > first.LastSeen
	}, time.Second, 5*time.Millisecond)
}

func TestClearedDraftSurvivesConcurrentHeartbeat(t *testing.T) {
	d := doc.New("c1")
	base := time.UnixMilli(1_700_000_000_000)

	var (
		mu      sync.Mutex
		hook    func()
		cleared = make(chan error, 1)
	)
	now := func() time.Time {
		mu.Lock()
		fn := hook
		hook = nil
		mu.Unlock()
		if fn != nil {
			fn()
		}
		return base
	}

	tr := NewTracker(d, models.Identity{ID: "me", Name: "Me"}, WithClock(now))
	require.NoError(t, tr.SetTyping("draft"))

	// Clear the draft from another goroutine while Publish holds its copy of the record.
	mu.Lock()
	hook = func() {
		go func() { cleared <- tr.SetTyping("") }()
		time.Sleep(20 * time.Millisecond)
	}
	mu.Unlock()

	require.NoError(t, tr.Publish())
	require.NoError(t, <-cleared)

	rec, ok := d.User("me")
	require.True(t, ok)
	assert.Empty(t, rec.Typing)
}
