package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"collab-chat/internal/ai"
	"collab-chat/internal/chat"
	"collab-chat/internal/config"
	"collab-chat/internal/doc"
	"collab-chat/internal/models"
	"collab-chat/internal/presence"
	"collab-chat/internal/transport"
	"collab-chat/internal/view"
)

type ClientFlags struct {
	Room       string
	Name       string
	Connection string
	APIBaseURL string
}

func (f *ClientFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Room, "room", f.Room, "Room to join")
	flagSet.StringVar(&f.Name, "name", f.Name, "Display name, random when empty")
	flagSet.StringVar(&f.Connection, "connection", f.Connection, "Relay connection string scheme://TOKEN@host")
	flagSet.StringVar(&f.APIBaseURL, "api", f.APIBaseURL, "Base URL of the server hosting /api/ai")
}

func NewClientCommand(cfg *config.Config) *cobra.Command {
	f := &ClientFlags{Room: cfg.Room, Name: cfg.UserName, Connection: cfg.Connection, APIBaseURL: cfg.APIBaseURL}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a room from the terminal",
		Long: `Join a room from the terminal. Lines are sent as messages.
Commands: /typing <draft>, /cursor <x> <y>, /quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), f, os.Stdin, os.Stdout)
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func runClient(ctx context.Context, f *ClientFlags, in io.Reader, out io.Writer) error {
	relay, err := config.ParseConnection(f.Connection)
	if err != nil {
		return errors.WithMessage(err, "invalid connection")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	self := models.NewIdentity(f.Name)
	document := doc.New(self.ID)
	provider := transport.NewProvider(relay.Endpoint, f.Room, relay.Token, document)
	tracker := presence.NewTracker(document, self)
	session := chat.NewSession(document, tracker, ai.NewProxyClient(f.APIBaseURL, nil), self)
	renderer := view.Renderer{Room: f.Room}

	var renderMu sync.Mutex
	render := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		fmt.Fprint(out, "\n")
		if err := renderer.Render(out, document.Messages(), tracker.View(), self); err != nil {
			log.WithError(err).Debug("render failed")
		}
	}

	log.WithFields(log.Fields{"room": f.Room, "relay": provider.URL(), "name": self.Name}).Info("joining room")
	provider.Connect(ctx)
	tracker.Start(ctx)
	unobserve := document.ObserveMessages(func(doc.Event) { render() })
	unsubscribe := tracker.Subscribe(func(presence.View) { render() })

	defer func() {
		unobserve()
		unsubscribe()
		session.Close()
		if err := tracker.Close(); err != nil {
			log.WithError(err).Debug("presence teardown failed")
		}
		if err := provider.Close(); err != nil {
			log.WithError(err).Debug("relay teardown failed")
		}
		document.Destroy()
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				session.Wait()
				return nil
			}
			if quit := handleLine(ctx, line, session, tracker); quit {
				return nil
			}
		}
	}
}

// handleLine runs one input line and reports whether the client should exit.
func handleLine(ctx context.Context, line string, session *chat.Session, tracker *presence.Tracker) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "/quit":
		return true
	case "/typing":
		if err := session.Draft(arg); err != nil {
			log.WithError(err).Warn("could not publish draft")
		}
	case "/cursor":
		x, y, err := parseCursor(arg)
		if err != nil {
			log.WithError(err).Warn("usage: /cursor <x> <y>")
			return false
		}
		if _, err := tracker.MoveCursor(x, y); err != nil {
			log.WithError(err).Warn("could not publish cursor")
		}
	default:
		session.Send(ctx, line)
	}
	return false
}

func parseCursor(arg string) (int, int, error) {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return 0, 0, errors.Errorf("expected two coordinates, got %q", arg)
	}
	x, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, errors.Wrap(err, "x")
	}
	y, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, errors.Wrap(err, "y")
	}
	return x, y, nil
}
