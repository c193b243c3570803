package portal

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxSemester is the largest semester number the selector can encode in two digits.
const MaxSemester = 99

// NotPublishedText is the bundle text when the portal has no record for the semester.
const NotPublishedText = "Result not published yet!"

// Credentials are a portal username (roll number) and password.
type Credentials struct {
	Username string
	Password string
}

// Valid reports whether both fields are present.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// FetchRequest is one unit of automation work. It carries either
// credentials for a fresh login or a session token to resume, and
// optionally a semester to extract.
type FetchRequest struct {
	ID          string
	Credentials *Credentials
	Token       string
	Semester    int
}

// NewLoginRequest builds a credential-path request.
func NewLoginRequest(creds Credentials) FetchRequest {
	return FetchRequest{ID: uuid.NewString(), Credentials: &creds}
}

// NewFetchRequest builds a resume-path request for one semester.
func NewFetchRequest(token string, semester int) FetchRequest {
	return FetchRequest{ID: uuid.NewString(), Token: token, Semester: semester}
}

// Validate checks that exactly one identity form is present and the
// semester, if any, is in range.
func (r FetchRequest) Validate() error {
	hasCreds := r.Credentials != nil && r.Credentials.Valid()
	hasToken := r.Token != ""

	switch {
	case !hasCreds && !hasToken:
		return ErrCredentialsRequired
	case hasCreds && hasToken:
		return fmt.Errorf("request must carry credentials or a token, not both")
	}

	if r.Semester != 0 {
		if _, err := FormatSemester(r.Semester); err != nil {
			return err
		}
	}
	return nil
}

// FormatSemester renders a semester number the way the portal's selector
// expects it: left-padded to two digits.
func FormatSemester(n int) (string, error) {
	if n < 1 || n > MaxSemester {
		return "", fmt.Errorf("%w: %d", ErrInvalidSemester, n)
	}
	return fmt.Sprintf("%02d", n), nil
}

// Bundle is the outcome of a result extraction. A bundle without a
// screenshot and PDF means the result is not published yet.
type Bundle struct {
	Semester   int
	Text       string
	Screenshot []byte
	PDF        []byte

	// PDFPages is the page count of PDF, or 0 when it could not be read
	PDFPages int
}

// Published reports whether the bundle carries rendered artifacts.
func (b *Bundle) Published() bool {
	return len(b.Screenshot) > 0 && len(b.PDF) > 0
}
