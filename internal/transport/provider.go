// Package transport keeps a local document in sync with a relay room over a
// websocket, reconnecting with exponential backoff.
package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"collab-chat/internal/doc"
	"collab-chat/internal/models"
)

const (
	outboxSize   = 256
	writeWait    = 10 * time.Second
	flushTimeout = 2 * time.Second
)

var errClosed = errors.New("provider closed")

// Provider syncs one document with one relay room.
type Provider struct {
	endpoint string
	room     string
	token    string
	doc      *doc.Document
	dialer   *websocket.Dialer

	out       chan models.Update
	unhook    func()
	connected atomic.Bool

	mu        sync.Mutex
	cancel    context.CancelFunc
	started   bool
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewProvider creates a provider for room at endpoint (ws:// or wss://).
// Local updates are queued from this point on.
func NewProvider(endpoint, room, token string, d *doc.Document) *Provider {
	p := &Provider{
		endpoint: endpoint,
		room:     room,
		token:    token,
		doc:      d,
		dialer:   websocket.DefaultDialer,
		out:      make(chan models.Update, outboxSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.unhook = d.OnLocalUpdate(p.enqueue)
	return p
}

// URL is the relay room address.
func (p *Provider) URL() string {
	return p.endpoint + "/ws/rooms/" + url.PathEscape(p.room)
}

// Connected reports whether a relay session is currently open.
func (p *Provider) Connected() bool {
	return p.connected.Load()
}

// Connect starts the sync loop in the background.
func (p *Provider) Connect(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	go p.run(ctx)
}

// Close flushes queued local updates to the relay, closes the connection and
// stops reconnecting.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		started, cancel := p.started, p.cancel
		p.mu.Unlock()

		close(p.closing)
		if started {
			if !p.Connected() {
				cancel()
			}
			select {
			case <-p.done:
			case <-time.After(flushTimeout):
				log.Warn("relay flush timed out")
			}
			cancel()
			<-p.done
		}
		p.unhook()
	})
	return nil
}

func (p *Provider) enqueue(u models.Update) {
	select {
	case p.out <- u:
	default:
		// the next sync frame carries the full snapshot
		log.Debug("relay outbox full, dropping update")
	}
}

func (p *Provider) run(ctx context.Context) {
	defer close(p.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	operation := func() error {
		err := p.session(ctx, b)
		select {
		case <-p.closing:
			return backoff.Permanent(errClosed)
		default:
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("relay connection lost")
	}
	_ = backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}

func (p *Provider) session(ctx context.Context, b backoff.BackOff) error {
	header := http.Header{}
	if p.token != "" {
		header.Set("Authorization", "Bearer "+p.token)
	}
	header.Set("X-Client-Id", p.doc.ClientID())

	conn, _, err := p.dialer.DialContext(ctx, p.URL(), header)
	if err != nil {
		return errors.Wrap(err, "dial relay")
	}
	defer conn.Close()
	b.Reset()

	p.connected.Store(true)
	defer p.connected.Store(false)
	log.WithField("room", p.room).Info("relay connected")

	if err := p.write(conn, models.Frame{Type: models.FrameSync, Updates: p.doc.Snapshot()}); err != nil {
		return errors.Wrap(err, "send sync")
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			var frame models.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				readErr <- err
				return
			}
			p.doc.Apply(frame.Updates, doc.OriginRemote)
		}
	}()

	for {
		select {
		case u := <-p.out:
			if err := p.write(conn, models.Frame{Type: models.FrameUpdate, Updates: p.drain(u)}); err != nil {
				return errors.Wrap(err, "send update")
			}
		case err := <-readErr:
			return errors.Wrap(err, "read relay")
		case <-ctx.Done():
			p.goodbye(conn)
			return ctx.Err()
		case <-p.closing:
			p.flush(conn)
			p.goodbye(conn)
			return errClosed
		}
	}
}

// drain batches first with whatever else is already queued.
func (p *Provider) drain(first models.Update) []models.Update {
	batch := []models.Update{first}
	for {
		select {
		case u := <-p.out:
			batch = append(batch, u)
		default:
			return batch
		}
	}
}

func (p *Provider) flush(conn *websocket.Conn) {
	select {
	case u := <-p.out:
		if err := p.write(conn, models.Frame{Type: models.FrameUpdate, Updates: p.drain(u)}); err != nil {
			log.WithError(err).Warn("could not flush updates to relay")
		}
	default:
	}
}

func (p *Provider) goodbye(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (p *Provider) write(conn *websocket.Conn, frame models.Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
