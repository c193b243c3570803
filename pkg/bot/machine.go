// Package bot implements the per-user conversation that takes a student
// from /result through login, optional consent and semester selection to
// a delivered result.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/entrhq/resultbot/pkg/chat"
	"github.com/entrhq/resultbot/pkg/config"
	"github.com/entrhq/resultbot/pkg/logging"
	"github.com/entrhq/resultbot/pkg/portal"
	"github.com/entrhq/resultbot/pkg/session"
)

// Portal runs the browser workflows.
type Portal interface {
	Login(ctx context.Context, creds portal.Credentials) (string, error)
	Fetch(ctx context.Context, token string, semester int) (*portal.Bundle, error)
}

// Commentator writes optional commentary on a result.
type Commentator interface {
	Generate(ctx context.Context, resultText string) (string, error)
}

// Options configures a Machine.
type Options struct {
	// ConsentMode selects whether tokens are cached right after login or only after the user agrees
	ConsentMode config.ConsentMode

	// Semesters is the number of semesters offered in the picker
	Semesters int

	// TTL is how long a cached session token lives
	TTL time.Duration

	// Allowlist restricts who may use the bot; nil allows everyone
	Allowlist *Allowlist

	// Commentary is optional
	Commentary Commentator
}

// Machine is the conversation state machine. It is safe for concurrent use.
type Machine struct {
	portal Portal
	cache  session.Cache
	states *session.StateStore
	sink   chat.Sink
	opts   Options
	logger *logging.Logger
}

// NewMachine wires a state machine.
func NewMachine(p Portal, cache session.Cache, states *session.StateStore, sink chat.Sink, opts Options) *Machine {
	if opts.ConsentMode == "" {
		opts.ConsentMode = config.ConsentAuto
	}
	if opts.Semesters <= 0 {
		opts.Semesters = 8
	}
	if opts.TTL <= 0 {
		opts.TTL = 600 * time.Second
	}
	return &Machine{
		portal: p,
		cache:  cache,
		states: states,
		sink:   sink,
		opts:   opts,
		logger: logging.NewLogger("bot"),
	}
}

// Handle processes one event. Every failure is reported to the user and
// leaves them in a state they can continue from.
func (m *Machine) Handle(ctx context.Context, ev chat.Event) {
	m.logger.Debugf("event %s", ev)

	if !m.opts.Allowlist.Allowed(ev.User) {
		m.logger.Infof("rejected user %d", ev.User)
		m.reply(ctx, ev.Chat, msgNotAllowed)
		return
	}

	switch ev.Kind {
	case chat.KindCommand:
		m.handleCommand(ctx, ev)
	case chat.KindText:
		m.handleText(ctx, ev)
	case chat.KindButton:
		m.handleButton(ctx, ev)
	}
}

func (m *Machine) handleCommand(ctx context.Context, ev chat.Event) {
	switch ev.Command {
	case "start":
		m.reply(ctx, ev.Chat, msgWelcome)
	case "help":
		m.reply(ctx, ev.Chat, msgHelp)
	case "result":
		m.startResult(ctx, ev)
	case "logout":
		m.logout(ctx, ev)
	default:
		m.reply(ctx, ev.Chat, msgUnknown)
	}
}

// startResult begins a new flow, discarding whatever the user was doing.
// A login already running is left to finish.
func (m *Machine) startResult(ctx context.Context, ev chat.Event) {
	if m.states.Get(ev.User).Step == session.LoggingIn {
		m.reply(ctx, ev.Chat, msgLoginInProgress)
		return
	}

	if _, ok := m.cachedToken(ctx, ev.User); ok {
		m.states.Set(ev.User, session.State{Step: session.AwaitingSemester})
		m.menu(ctx, ev.Chat, msgChooseSemester, semesterMenu(payloadSemester, m.opts.Semesters))
		return
	}

	m.states.Set(ev.User, session.State{Step: session.AwaitingCredentials})
	m.reply(ctx, ev.Chat, msgAskCredentials)
}

// logout clears both the cached and the pending token. Repeating it is harmless.
// The state goes first so a login finishing concurrently sees it was
// superseded before the cache entry is removed.
func (m *Machine) logout(ctx context.Context, ev chat.Event) {
	m.states.Delete(ev.User)
	if err := m.cache.Delete(ctx, ev.User); err != nil {
		m.logger.Warnf("user %d: failed to delete cached session: %v", ev.User, err)
	}
	m.reply(ctx, ev.Chat, msgLoggedOut)
}

func (m *Machine) handleText(ctx context.Context, ev chat.Event) {
	switch m.states.Get(ev.User).Step {
	case session.AwaitingCredentials:
	case session.LoggingIn:
		m.reply(ctx, ev.Chat, msgLoginInProgress)
		return
	default:
		m.reply(ctx, ev.Chat, msgUnknown)
		return
	}

	fields := strings.Fields(ev.Text)
	if len(fields) != 2 {
		m.reply(ctx, ev.Chat, msgCredentialsForm)
		return
	}
	creds := portal.Credentials{Username: fields[0], Password: fields[1]}

	// Only one of two concurrent credential messages starts a login
	if _, ok := m.states.Claim(ev.User, session.AwaitingCredentials, session.State{Step: session.LoggingIn}); !ok {
		m.logger.Debugf("user %d: credentials already being processed", ev.User)
		return
	}

	m.reply(ctx, ev.Chat, msgLoggingIn)
	token, err := m.portal.Login(ctx, creds)
	if err != nil {
		m.logger.Warnf("user %d: login failed: %v", ev.User, err)
		if _, ok := m.states.Claim(ev.User, session.LoggingIn, session.State{Step: session.Idle}); !ok {
			m.logger.Debugf("user %d: login superseded, dropping its error", ev.User)
			return
		}
		m.reply(ctx, ev.Chat, loginMessage(err))
		return
	}

	if m.opts.ConsentMode == config.ConsentAsk {
		next := session.State{Step: session.AwaitingConsent, PendingToken: token}
		if _, ok := m.states.Claim(ev.User, session.LoggingIn, next); !ok {
			m.logger.Infof("user %d: logged out during login, discarding session", ev.User)
			return
		}
		m.menu(ctx, ev.Chat, fmt.Sprintf(msgConsentFormat, humanDuration(m.opts.TTL)), consentMenu())
		return
	}
	m.persistAndOffer(ctx, ev, token, msgLoginSuccess)
}

// persistAndOffer caches token and shows the semester picker. The user
// must be at LoggingIn; if they left it meanwhile the token is discarded.
// If the cache is down the token is kept in memory for this one selection.
func (m *Machine) persistAndOffer(ctx context.Context, ev chat.Event, token, prompt string) {
	if err := m.cache.SetWithExpiry(ctx, ev.User, token, m.opts.TTL); err != nil {
		m.logger.Warnf("user %d: session not persisted: %v", ev.User, err)
		next := session.State{Step: session.AwaitingSemester, PendingToken: token, Temporary: true}
		if _, ok := m.states.Claim(ev.User, session.LoggingIn, next); !ok {
			m.logger.Infof("user %d: logged out during login, discarding session", ev.User)
			return
		}
		m.menu(ctx, ev.Chat, msgNotSaved, semesterMenu(payloadTempSemester, m.opts.Semesters))
		return
	}

	if _, ok := m.states.Claim(ev.User, session.LoggingIn, session.State{Step: session.AwaitingSemester}); !ok {
		// logout already ran; undo the write it could not see
		m.logger.Infof("user %d: logged out during login, discarding session", ev.User)
		if err := m.cache.Delete(ctx, ev.User); err != nil {
			m.logger.Warnf("user %d: failed to delete superseded session: %v", ev.User, err)
		}
		return
	}
	m.menu(ctx, ev.Chat, prompt, semesterMenu(payloadSemester, m.opts.Semesters))
}

func (m *Machine) handleButton(ctx context.Context, ev chat.Event) {
	switch {
	case ev.Payload == payloadConsentYes:
		m.handleConsent(ctx, ev, true)
	case ev.Payload == payloadConsentNo:
		m.handleConsent(ctx, ev, false)
	case strings.HasPrefix(ev.Payload, payloadTempSemester):
		m.handleSemester(ctx, ev, strings.TrimPrefix(ev.Payload, payloadTempSemester), true)
	case strings.HasPrefix(ev.Payload, payloadSemester):
		m.handleSemester(ctx, ev, strings.TrimPrefix(ev.Payload, payloadSemester), false)
	default:
		m.logger.Debugf("user %d: ignoring unknown button %q", ev.User, ev.Payload)
	}
}

func (m *Machine) handleConsent(ctx context.Context, ev chat.Event, accepted bool) {
	prev, ok := m.states.Update(ev.User, func(cur session.State) (session.State, bool) {
		if cur.Step != session.AwaitingConsent || cur.PendingToken == "" {
			return cur, false
		}
		if accepted {
			return session.State{Step: session.LoggingIn}, true
		}
		return session.State{Step: session.AwaitingSemester, PendingToken: cur.PendingToken, Temporary: true}, true
	})
	if !ok {
		m.reply(ctx, ev.Chat, msgNoPendingLogin)
		return
	}

	if accepted {
		m.persistAndOffer(ctx, ev, prev.PendingToken, msgChooseSemester)
		return
	}
	m.menu(ctx, ev.Chat, msgTemporary, semesterMenu(payloadTempSemester, m.opts.Semesters))
}

func (m *Machine) handleSemester(ctx context.Context, ev chat.Event, raw string, temporary bool) {
	semester, err := strconv.Atoi(raw)
	if err != nil || semester < 1 || semester > m.opts.Semesters {
		m.reply(ctx, ev.Chat, msgInvalidSemester)
		return
	}

	// Claiming the step makes a second click on the same menu a no-op
	prev, ok := m.states.Claim(ev.User, session.AwaitingSemester, session.State{Step: session.Idle})
	if !ok {
		if temporary {
			m.reply(ctx, ev.Chat, msgRestartLogin)
		} else {
			m.reply(ctx, ev.Chat, msgPickAgain)
		}
		return
	}
	temporary = temporary || prev.Temporary

	token, err := m.selectionToken(ctx, ev.User, prev, temporary)
	if err != nil {
		if temporary {
			m.reply(ctx, ev.Chat, msgRestartLogin)
		} else {
			m.reply(ctx, ev.Chat, fetchMessage(err, semester))
		}
		return
	}

	m.reply(ctx, ev.Chat, fmt.Sprintf(msgFetchingFormat, semester))
	bundle, err := m.portal.Fetch(ctx, token, semester)
	if err != nil {
		m.logger.Warnf("user %d: fetch of semester %d failed: %v", ev.User, semester, err)
		if errors.Is(err, portal.ErrTokenInjectionFailed) && !temporary {
			if err := m.cache.Delete(ctx, ev.User); err != nil {
				m.logger.Warnf("user %d: failed to drop rejected session: %v", ev.User, err)
			}
		}
		m.reply(ctx, ev.Chat, fetchMessage(err, semester))
		return
	}

	m.deliver(ctx, ev, bundle)
}

// selectionToken picks the token a semester selection runs with.
func (m *Machine) selectionToken(ctx context.Context, user int64, prev session.State, temporary bool) (string, error) {
	if temporary {
		if prev.PendingToken == "" {
			return "", ErrSessionExpired
		}
		return prev.PendingToken, nil
	}

	token, ok := m.cachedToken(ctx, user)
	if !ok {
		return "", ErrSessionExpired
	}
	return token, nil
}

// cachedToken reads the cache, treating a failing cache as empty.
func (m *Machine) cachedToken(ctx context.Context, user int64) (string, bool) {
	token, ok, err := m.cache.Get(ctx, user)
	if err != nil {
		m.logger.Warnf("user %d: cache read failed, continuing without cached session: %v", user, err)
		return "", false
	}
	return token, ok
}

// deliver sends the result. Commentary is best effort and never blocks
// the artifacts already produced.
func (m *Machine) deliver(ctx context.Context, ev chat.Event, b *portal.Bundle) {
	if !b.Published() {
		m.reply(ctx, ev.Chat, b.Text)
		return
	}

	if err := m.sink.SendDocument(ctx, ev.Chat, fmt.Sprintf(msgPDFNameFormat, b.Semester), b.PDF, ""); err != nil {
		m.logger.Warnf("user %d: failed to send pdf: %v", ev.User, err)
	}
	if err := m.sink.SendPhoto(ctx, ev.Chat, b.Screenshot, fmt.Sprintf(msgCaptionFormat, b.Semester)); err != nil {
		m.logger.Warnf("user %d: failed to send screenshot: %v", ev.User, err)
	}
	m.logger.Infof("user %d: result for semester %d sent", ev.User, b.Semester)

	if m.opts.Commentary == nil {
		return
	}
	text, err := m.opts.Commentary.Generate(ctx, b.Text)
	if err != nil {
		m.logger.Warnf("user %d: commentary skipped: %v", ev.User, err)
		return
	}
	m.reply(ctx, ev.Chat, text)
}

func (m *Machine) reply(ctx context.Context, chatID int64, text string) {
	if err := m.sink.SendText(ctx, chatID, text); err != nil {
		m.logger.Warnf("chat %d: failed to send message: %v", chatID, err)
	}
}

func (m *Machine) menu(ctx context.Context, chatID int64, text string, rows [][]chat.Button) {
	if err := m.sink.SendMenu(ctx, chatID, text, rows); err != nil {
		m.logger.Warnf("chat %d: failed to send menu: %v", chatID, err)
	}
}
