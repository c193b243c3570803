// Package telegram connects the bot to Telegram with long polling.
package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/entrhq/resultbot/pkg/chat"
	"github.com/entrhq/resultbot/pkg/logging"
)

// DefaultPollTimeout is the long-poll timeout in seconds.
const DefaultPollTimeout = 60

// Transport is a chat.Transport backed by the Telegram Bot API.
type Transport struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      *logging.Logger
}

// botLogger routes the library's logging into ours.
type botLogger struct {
	logger *logging.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Warnf("%s", fmt.Sprint(v...))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(format, v...)
}

// New connects with token and verifies it.
func New(token string, pollTimeout int, debug bool) (*Transport, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	logger := logging.NewLogger("telegram")
	_ = tgbotapi.SetLogger(botLogger{logger: logger})

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = debug

	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	logger.Infof("authorized as @%s", api.Self.UserName)
	return &Transport{api: api, pollTimeout: pollTimeout, logger: logger}, nil
}

// Run polls for updates and handles each on its own goroutine.
func (t *Transport) Run(ctx context.Context, handle chat.HandlerFunc) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(cfg)

	// Shutdown stops polling but not the handlers already running
	hctx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.CallbackQuery != nil {
				t.answerCallback(update.CallbackQuery.ID)
			}

			ev, ok := toEvent(update)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle(hctx, ev)
			}()
		}
	}
}

// answerCallback stops the client's loading spinner on the pressed button.
func (t *Transport) answerCallback(id string) {
	if _, err := t.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		t.logger.Debugf("failed to answer callback: %v", err)
	}
}

// toEvent converts an update into an event. Updates without a sender are dropped.
func toEvent(u tgbotapi.Update) (chat.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return chat.Event{}, false
		}
		return chat.Event{
			User:    q.From.ID,
			Chat:    q.Message.Chat.ID,
			Kind:    chat.KindButton,
			Payload: q.Data,
		}, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return chat.Event{}, false
		}
		if m.IsCommand() {
			return chat.Event{
				User:    m.From.ID,
				Chat:    m.Chat.ID,
				Kind:    chat.KindCommand,
				Command: m.Command(),
				Text:    m.CommandArguments(),
			}, true
		}
		return chat.Event{
			User: m.From.ID,
			Chat: m.Chat.ID,
			Kind: chat.KindText,
			Text: m.Text,
		}, true
	}
	return chat.Event{}, false
}

// SendText implements chat.Sink.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	return t.send(tgbotapi.NewMessage(chatID, text))
}

// SendMenu implements chat.Sink.
func (t *Transport) SendMenu(ctx context.Context, chatID int64, text string, rows [][]chat.Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard(rows)
	return t.send(msg)
}

// SendDocument implements chat.Sink.
func (t *Transport) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: data})
	doc.Caption = caption
	return t.send(doc)
}

// SendPhoto implements chat.Sink.
func (t *Transport) SendPhoto(ctx context.Context, chatID int64, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "result.png", Bytes: data})
	photo.Caption = caption
	return t.send(photo)
}

func (t *Transport) send(c tgbotapi.Chattable) error {
	if _, err := t.api.Send(c); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}

func keyboard(rows [][]chat.Button) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Payload))
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}
