package portal

import "errors"

var (
	// ErrCredentialsRequired is returned when a request carries neither credentials nor a token
	ErrCredentialsRequired = errors.New("credentials or token required")

	// ErrLoginFailed covers rejected credentials and a post-login marker that never appeared
	ErrLoginFailed = errors.New("login failed")

	// ErrTokenInjectionFailed means a replayed session cookie did not reach the result page
	ErrTokenInjectionFailed = errors.New("session token rejected")

	// ErrNavigationTimeout means the home page never went network-idle
	ErrNavigationTimeout = errors.New("navigation timed out")

	ErrInvalidSemester      = errors.New("invalid semester")
	ErrSemesterFieldMissing = errors.New("semester selector not found")
	ErrSemesterNotSelected  = errors.New("semester selection did not take effect")

	// ErrResultTabNotOpened means neither a result tab nor the no-record message appeared in time
	ErrResultTabNotOpened = errors.New("result tab did not open")
)
