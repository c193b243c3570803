// Package console is a terminal chat transport for running the bot
// locally without a Telegram token. Lines starting with "/" are commands,
// lines starting with "#" press the button with that payload, and anything
// else is a text message. Attachments are written to a directory.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/resultbot/pkg/chat"
)

// DefaultUser is the user id console events carry.
const DefaultUser int64 = 1

// Transport is a chat.Transport over a reader and writer.
type Transport struct {
	in     io.Reader
	out    io.Writer
	outDir string
	user   int64

	mu     sync.Mutex
	photos int
}

// New creates a console transport that saves attachments under outDir.
func New(in io.Reader, out io.Writer, outDir string) *Transport {
	return &Transport{in: in, out: out, outDir: outDir, user: DefaultUser}
}

// Run reads lines until EOF or ctx is done. Events are handled one at a
// time so replies stay in order.
func (t *Transport) Run(ctx context.Context, handle chat.HandlerFunc) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	hctx := context.WithoutCancel(ctx)

	t.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("failed to read input: %w", err)
					}
				default:
				}
				return nil
			}
			if ev, ok := t.parse(line); ok {
				handle(hctx, ev)
			}
			t.prompt()
		}
	}
}

func (t *Transport) parse(line string) (chat.Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return chat.Event{}, false
	}
	if payload, ok := strings.CutPrefix(line, "#"); ok {
		return chat.Event{User: t.user, Chat: t.user, Kind: chat.KindButton, Payload: strings.TrimSpace(payload)}, true
	}
	return chat.ParseLine(t.user, t.user, line), true
}

func (t *Transport) prompt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, promptStyle.Render("> "))
}

func (t *Transport) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}

// SendText implements chat.Sink.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	t.println(botStyle.Render("bot: ") + textStyle.Render(text))
	return nil
}

// SendMenu implements chat.Sink.
func (t *Transport) SendMenu(ctx context.Context, chatID int64, text string, rows [][]chat.Button) error {
	var rendered []string
	for _, row := range rows {
		var buttons []string
		for _, b := range row {
			buttons = append(buttons, buttonStyle.Render(fmt.Sprintf("%s  #%s", b.Label, b.Payload)))
		}
		rendered = append(rendered, lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
	}
	t.println(botStyle.Render("bot: ") + text + "\n" + lipgloss.JoinVertical(lipgloss.Left, rendered...))
	return nil
}

// SendDocument implements chat.Sink.
func (t *Transport) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	path, err := t.save(filename, data)
	if err != nil {
		return err
	}
	t.println(botStyle.Render("bot: ") + fileStyle.Render(fmt.Sprintf("[document %s, %d bytes] %s", path, len(data), caption)))
	return nil
}

// SendPhoto implements chat.Sink.
func (t *Transport) SendPhoto(ctx context.Context, chatID int64, data []byte, caption string) error {
	t.mu.Lock()
	t.photos++
	name := fmt.Sprintf("photo_%d.png", t.photos)
	t.mu.Unlock()

	path, err := t.save(name, data)
	if err != nil {
		return err
	}
	t.println(botStyle.Render("bot: ") + fileStyle.Render(fmt.Sprintf("[photo %s, %d bytes] %s", path, len(data), caption)))
	return nil
}

func (t *Transport) save(name string, data []byte) (string, error) {
	if err := os.MkdirAll(t.outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(t.outDir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
