package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"gymhub/internal/application/walkie"
	"gymhub/internal/domain/broadcast"
	"gymhub/internal/domain/message"
	"gymhub/internal/domain/presence"
)

// terminal serialises all output of the client. It doubles as the walkie Notifier.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
	// selfID marks the local user's own messages.
	selfID string
}

func newTerminal(out io.Writer, selfID string) *terminal {
	return &terminal{out: out, selfID: selfID}
}

func (t *terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}

// Notify implements walkie.Notifier.
func (t *terminal) Notify(n walkie.Notification) {
	text := n.Text
	if n.Err != nil {
		text += ": " + n.Err.Error()
	}
	var style color.Style
	switch n.Level {
	case walkie.LevelSuccess:
		style = color.New(color.FgGreen)
	case walkie.LevelWarn:
		style = color.New(color.FgYellow)
	case walkie.LevelError:
		style = color.New(color.FgRed, color.OpBold)
	default:
		style = color.New(color.FgCyan)
	}
	t.println(style.Render("* " + text))
}

func (t *terminal) message(m message.Message) {
	name := m.SenderName
	if name == "" {
		name = m.SenderID
	}
	style := color.New(color.FgBlue, color.OpBold)
	if m.SenderID == t.selfID {
		style = color.New(color.FgGreen, color.OpBold)
	}
	stamp := color.New(color.FgGray).Render(m.CreatedAt.Local().Format("15:04"))
	t.println(fmt.Sprintf("%s %s %s", stamp, style.Render(name+":"), m.Content))
}

func (t *terminal) incoming(b broadcast.Broadcast, now time.Time) {
	if b.SenderID == t.selfID {
		return
	}
	left := b.Remaining(now).Truncate(time.Second)
	t.println(color.New(color.BgBlack, color.FgGreen).Render(fmt.Sprintf(" voice from %s (%s left) ", b.SenderName, left)))
}

func (t *terminal) header(s string) {
	t.println(color.New(color.BgBlack, color.FgGreen).Render(" " + s + " "))
}

// roster prints the staff online on the chat topic, flagging those also
// listening on the voice topic.
func (t *terminal) roster(chat []presence.Record, onVoice func(userID string) bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(chat) == 0 {
		fmt.Fprintln(t.out, "nobody online")
		return
	}
	table := tablewriter.NewWriter(t.out)
	table.SetHeader([]string{"Name", "Role", "Online for", "Voice"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, rec := range chat {
		voice := ""
		if onVoice(rec.UserID) {
			voice = "yes"
		}
		name := rec.DisplayName
		if name == "" {
			name = rec.UserID
		}
		table.Append([]string{name, rec.Role, now.Sub(rec.JoinedAt).Truncate(time.Second).String(), voice})
	}
	table.Render()
}

const helpText = `commands:
  /talk     start or stop a voice broadcast
  /mute     stop auto-playing incoming broadcasts
  /unmute   resume auto-play
  /listen   play the broadcast that arrived while muted
  /who      show who is online
  /ping     check both connections
  /quit     leave
anything else is sent to the staff chat`

// command is one parsed input line.
type command struct {
	name string // empty for a chat line
	text string
}

func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{text: line}
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), text: strings.TrimSpace(rest)}
}
