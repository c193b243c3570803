package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/resultbot/pkg/browser"
	"github.com/entrhq/resultbot/pkg/chat"
	"github.com/entrhq/resultbot/pkg/portal"
)

const (
	msgWelcome = "Welcome to the Result Bot! 😃\n" +
		"Use /result to fetch your academic📚 result.\n" +
		"Use the menu button for more commands."

	msgHelp = "/result - View your result (select semester). You might be asked for credentials initially.\n" +
		"/logout - Clear your current session.\n" +
		"/help - Show this help message"

	msgUnknown = "❗ Unknown command.\n\nHere are the available commands:\n" +
		"/result - View your result (select semester).\n" +
		"/logout - Clear your current session.\n" +
		"/help - Show this help message"

	msgNotAllowed      = "Sorry, this bot is not available to you."
	msgAskCredentials  = "Please enter your university rollno and password (separated by a space)."
	msgCredentialsForm = "Please provide both username and password separated by a space."
	msgLoggingIn       = "Logging in..."
	msgLoginInProgress = "Still logging you in, please wait."
	msgChooseSemester  = "Which semester result do you want to view?"
	msgLoginSuccess    = "Login successful. Which semester result do you want to view?"
	msgConsentFormat   = "Login successful. Should I remember your session for %s so you can check more results without logging in again?"
	msgTemporary       = "Okay, your session will not be saved. Which semester result do you want to view?"
	msgNotSaved        = "Login successful, but your session could not be saved. Which semester result do you want to view?"
	msgLoggedOut       = "You have been logged out.👋"
	msgNoPendingLogin  = "There is no login waiting for an answer. Use /result to start again."
	msgPickAgain       = "That menu has expired. Use /result to choose a semester."
	msgRestartLogin    = "Your temporary session is gone. Please use /result to log in again."
	msgInvalidSemester = "That is not a valid semester."

	msgLoginFailed     = "Login failed.❗ Please check your credentials and try again."
	msgLoginError      = "Login failed❗"
	msgSessionExpired  = "Your session has expired. Please use /result again to log in."
	msgPortalSlow      = "The university portal is not responding right now. Please try again in a few minutes."
	msgShuttingDown    = "The bot is restarting. Please try again in a moment."
	msgFetchingFormat  = "Fetching result for semester %d, please wait..."
	msgFetchFailFormat = "Error fetching result for semester %d"
	msgCaptionFormat   = "Screenshot of your semester %d result page"
	msgPDFNameFormat   = "result_semester_%d.pdf"
)

const (
	payloadConsentYes   = "consent_yes"
	payloadConsentNo    = "consent_no"
	payloadSemester     = "semester_"
	payloadTempSemester = "tempsemester_"
)

// ErrSessionExpired means there is no usable session token for the user.
var ErrSessionExpired = errors.New("session expired")

// isTransient reports errors caused by a slow or unreachable portal.
func isTransient(err error) bool {
	return errors.Is(err, portal.ErrNavigationTimeout) ||
		errors.Is(err, browser.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}

// loginMessage maps a login error to the reply the user sees.
func loginMessage(err error) string {
	switch {
	case errors.Is(err, portal.ErrLoginFailed):
		return msgLoginFailed
	case errors.Is(err, browser.ErrPoolClosed):
		return msgShuttingDown
	case isTransient(err):
		return msgPortalSlow
	default:
		return msgLoginError
	}
}

// fetchMessage maps an extraction error to the reply the user sees.
func fetchMessage(err error, semester int) string {
	switch {
	case errors.Is(err, ErrSessionExpired), errors.Is(err, portal.ErrTokenInjectionFailed):
		return msgSessionExpired
	case errors.Is(err, browser.ErrPoolClosed):
		return msgShuttingDown
	case isTransient(err):
		return msgPortalSlow
	default:
		return fmt.Sprintf(msgFetchFailFormat, semester)
	}
}

// humanDuration renders whole minutes as "10 minutes".
func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return d.String()
}

func semesterMenu(prefix string, count int) [][]chat.Button {
	rows := make([][]chat.Button, 0, count)
	for i := 1; i <= count; i++ {
		rows = append(rows, []chat.Button{{
			Label:   fmt.Sprintf("%d", i),
			Payload: fmt.Sprintf("%s%d", prefix, i),
		}})
	}
	return rows
}

func consentMenu() [][]chat.Button {
	return [][]chat.Button{{
		{Label: "Yes, remember me", Payload: payloadConsentYes},
		{Label: "No, just this once", Payload: payloadConsentNo},
	}}
}
