// Package chat defines the transport-neutral events and replies the bot
// exchanges with a chat platform.
package chat

import (
	"context"
	"fmt"
	"strings"
)

// Kind is the type of an incoming event.
type Kind int

const (
	// KindCommand is a slash command such as /result
	KindCommand Kind = iota

	// KindText is a free-text message
	KindText

	// KindButton is a press on an inline button
	KindButton
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindButton:
		return "button"
	default:
		return "unknown"
	}
}

// Event is one incoming interaction, tagged with the user and chat it came from.
type Event struct {
	User int64
	Chat int64
	Kind Kind

	// Command is the command name without the slash, for KindCommand
	Command string

	// Text is the message text for KindText, or the command arguments
	Text string

	// Payload is the button data for KindButton
	Payload string
}

// String describes the event without its text, which may hold credentials.
func (e Event) String() string {
	switch e.Kind {
	case KindCommand:
		return fmt.Sprintf("user %d: /%s", e.User, e.Command)
	case KindButton:
		return fmt.Sprintf("user %d: button %s", e.User, e.Payload)
	default:
		return fmt.Sprintf("user %d: text (%d bytes)", e.User, len(e.Text))
	}
}

// Button is an inline button.
type Button struct {
	Label   string
	Payload string
}

// Sink delivers replies to a chat.
type Sink interface {
	SendText(ctx context.Context, chat int64, text string) error
	SendMenu(ctx context.Context, chat int64, text string, rows [][]Button) error
	SendDocument(ctx context.Context, chat int64, filename string, data []byte, caption string) error
	SendPhoto(ctx context.Context, chat int64, data []byte, caption string) error
}

// HandlerFunc handles one event. Transports may call it concurrently.
type HandlerFunc func(ctx context.Context, ev Event)

// Transport is a chat platform connection.
type Transport interface {
	Sink

	// Run delivers events to handle until ctx is done, then waits for
	// handlers still running. Handlers get a context that is not canceled
	// with ctx, so a request in flight at shutdown runs to completion.
	Run(ctx context.Context, handle HandlerFunc) error
}

// ParseLine turns a line of user input into an event. Lines starting with
// "/" are commands; everything else is text.
func ParseLine(user, chatID int64, line string) Event {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "/") && len(line) > 1 {
		name, args, _ := strings.Cut(line[1:], " ")
		// Telegram appends @botname in groups
		name, _, _ = strings.Cut(name, "@")
		return Event{
			User:    user,
			Chat:    chatID,
			Kind:    KindCommand,
			Command: strings.ToLower(name),
			Text:    strings.TrimSpace(args),
		}
	}
	return Event{User: user, Chat: chatID, Kind: KindText, Text: line}
}
