// Command walkie is a terminal client for the staff chat and walkie-talkie.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gymhub/internal/adapters/audio"
	"gymhub/internal/adapters/wsclient"
	"gymhub/internal/application/channel"
	"gymhub/internal/application/walkie"
	"gymhub/internal/domain/broadcast"
	rt "gymhub/internal/domain/realtime"
	"gymhub/internal/logging"
)

const historyLimit = 100

type app struct {
	client   *wsclient.Client
	term     *terminal
	chat     *channel.State
	voice    *channel.State
	sender   *walkie.Sender
	receiver *walkie.Receiver
	output   *walkie.Service
	// subs holds the live subscriptions while run is active.
	subs []*wsclient.Subscription
}

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("GYMHUB_SERVER", "http://localhost:8080"), "server base URL")
	email := flag.String("email", os.Getenv("GYMHUB_EMAIL"), "staff account email")
	password := flag.String("password", os.Getenv("GYMHUB_PASSWORD"), "staff account password")
	name := flag.String("name", "", "display name override shown to other staff")
	gain := flag.Float64("gain", audio.DefaultGain, "amplification applied to incoming broadcasts")
	gesture := flag.Bool("manual-play", false, "never auto-play; incoming broadcasts wait for /listen")
	logLevel := flag.String("log-level", "warn", "debug, info, warn or error")
	logFile := flag.String("log-file", "", "optional JSON log file")
	flag.Parse()

	closer := logging.Setup(logging.Options{Level: *logLevel, File: *logFile, Stdout: os.Stderr})
	defer closer.Close()

	if *email == "" || *password == "" {
		log.Fatal("email and password are required (-email/-password or GYMHUB_EMAIL/GYMHUB_PASSWORD)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := wsclient.New(*server)
	if err != nil {
		log.Fatalf("invalid server: %v", err)
	}
	sess, err := client.Login(ctx, *email, *password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	term := newTerminal(os.Stdout, sess.AccountID)
	a := &app{
		client: client,
		term:   term,
		chat:   channel.New(rt.TopicStaffChat),
		voice:  channel.New(rt.TopicVoiceBroadcasts),
	}
	a.output = walkie.NewService(walkie.ServiceOptions{
		Fetcher: client,
		OpenPlayer: func() (walkie.Player, error) {
			var p walkie.Player = audio.NewCommandPlayer()
			if *gesture {
				p = gesturePlayer{p}
			}
			return p, nil
		},
		Gain: *gain,
	})
	a.receiver = walkie.NewReceiver(walkie.ReceiverOptions{
		SelfID:   sess.AccountID,
		Output:   a.output,
		Notifier: term,
	})
	a.sender = walkie.NewSender(walkie.SenderOptions{
		Recorder:   audio.NewCommandRecorder(),
		Uploader:   client,
		Notifier:   term,
		OnUploaded: a.uploaded,
	})

	if err := a.run(ctx, sess, *name, os.Stdin); err != nil {
		term.Notify(walkie.Notification{Level: walkie.LevelError, Text: "Session ended", Err: err})
	}

	a.sender.Wait()
	if err := a.output.Close(); err != nil {
		slog.Warn("walkie_event", "event", "output_close_failed", "error", err.Error())
	}
	logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Logout(logoutCtx); err != nil {
		slog.Warn("walkie_event", "event", "logout_failed", "error", err.Error())
	}
}

// run loads history, subscribes to both topics and processes input until
// /quit, end of input, ctx cancellation or a closed subscription.
func (a *app) run(ctx context.Context, sess wsclient.Session, name string, in io.Reader) error {
	history, err := a.client.Messages(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	a.chat.Seed(history)
	active, err := a.client.ActiveBroadcasts(ctx)
	if err != nil {
		return fmt.Errorf("load broadcasts: %w", err)
	}
	a.voice.SeedBroadcasts(active)

	a.term.header(fmt.Sprintf("staff chat as %s (%s)", sess.DisplayName, sess.Role))
	for _, m := range a.chat.Messages() {
		a.term.message(m)
	}
	a.term.println(helpText)

	chatSub, err := a.client.Subscribe(ctx, rt.TopicStaffChat, name)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", rt.TopicStaffChat, err)
	}
	defer chatSub.Close()
	voiceSub, err := a.client.Subscribe(ctx, rt.TopicVoiceBroadcasts, name)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", rt.TopicVoiceBroadcasts, err)
	}
	defer voiceSub.Close()
	a.subs = []*wsclient.Subscription{chatSub, voiceSub}

	closed := make(chan string, 2)
	go a.pump(chatSub, a.chat, closed)
	go a.pump(voiceSub, a.voice, closed)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case topic := <-closed:
			return fmt.Errorf("%s connection closed", topic)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := a.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// pump dispatches subscription events into state until the subscription ends.
func (a *app) pump(sub *wsclient.Subscription, state *channel.State, closed chan<- string) {
	for ev := range sub.Events() {
		upd, err := state.Dispatch(ev)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return
			}
			slog.Warn("walkie_event", "event", "dispatch_failed", "topic", state.Topic(), "error", err.Error())
			continue
		}
		switch upd.Kind {
		case rt.TypeInsert:
			if upd.Duplicate {
				continue
			}
			if upd.Message != nil {
				a.term.message(*upd.Message)
			}
			if upd.Broadcast != nil {
				a.term.incoming(*upd.Broadcast, time.Now())
				a.receiver.Handle(*upd.Broadcast)
			}
		case rt.TypePong:
			a.term.Notify(walkie.Notification{Level: walkie.LevelInfo, Text: "pong on " + state.Topic()})
		case rt.TypeError:
			a.term.Notify(walkie.Notification{Level: walkie.LevelWarn, Text: "Server: " + upd.ErrorMessage})
		case rt.TypeClosed:
			closed <- state.Topic()
			return
		}
	}
}

// handle runs one input line and reports whether the client should exit.
func (a *app) handle(ctx context.Context, line string) bool {
	cmd := parseCommand(line)
	switch cmd.name {
	case "":
		if cmd.text == "" {
			return false
		}
		if _, err := a.client.SendMessage(ctx, cmd.text); err != nil {
			a.term.Notify(walkie.Notification{Level: walkie.LevelError, Text: "Message not sent", Err: err})
		}
	case "talk":
		a.sender.Tap()
	case "mute":
		a.receiver.SetMuted(true)
		a.term.Notify(walkie.Notification{Level: walkie.LevelInfo, Text: "Walkie-talkie muted"})
	case "unmute":
		a.receiver.SetMuted(false)
		a.term.Notify(walkie.Notification{Level: walkie.LevelInfo, Text: "Walkie-talkie unmuted"})
	case "listen":
		if err := a.receiver.Listen(); err != nil {
			a.term.Notify(walkie.Notification{Level: walkie.LevelWarn, Text: "Nothing to play", Err: err})
		}
	case "ping":
		for _, sub := range a.subs {
			if err := sub.Ping(); err != nil {
				a.term.Notify(walkie.Notification{Level: walkie.LevelWarn, Text: "Ping failed on " + sub.Topic, Err: err})
			}
		}
	case "who":
		a.term.roster(a.chat.Online(), a.voice.IsOnline, time.Now())
	case "quit", "exit":
		return true
	default:
		a.term.println(helpText)
	}
	return false
}

// uploaded records the local user's own broadcast so the echoed insert is
// treated as a duplicate.
func (a *app) uploaded(b broadcast.Broadcast) {
	a.voice.SeedBroadcasts([]broadcast.Broadcast{b})
	a.term.Notify(walkie.Notification{
		Level: walkie.LevelInfo,
		Text:  fmt.Sprintf("Playable for %s", b.Remaining(time.Now()).Truncate(time.Second)),
	})
}

// gesturePlayer refuses to start unless the user asked for playback.
type gesturePlayer struct {
	walkie.Player
}

func (p gesturePlayer) Play(ctx context.Context, data []byte) error {
	if !walkie.Manual(ctx) {
		return walkie.ErrAutoplayBlocked
	}
	return p.Player.Play(ctx, data)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
