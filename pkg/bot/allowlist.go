package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Allowlist decides which chat users may use the bot. Patterns are globs
// over the decimal user id; a leading "!" denies instead of allows.
type Allowlist struct {
	allowed []glob.Glob
	denied  []glob.Glob
}

// NewAllowlist compiles patterns such as "*", "12345" or "!999*".
func NewAllowlist(patterns []string) (*Allowlist, error) {
	a := &Allowlist{}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		deny := strings.HasPrefix(pattern, "!")
		g, err := glob.Compile(strings.TrimPrefix(pattern, "!"))
		if err != nil {
			return nil, fmt.Errorf("invalid user pattern '%s': %w", pattern, err)
		}
		if deny {
			a.denied = append(a.denied, g)
		} else {
			a.allowed = append(a.allowed, g)
		}
	}

	return a, nil
}

// Allowed reports whether user may talk to the bot. Denials take
// precedence; with no allow patterns everyone not denied is allowed.
func (a *Allowlist) Allowed(user int64) bool {
	if a == nil {
		return true
	}
	id := strconv.FormatInt(user, 10)

	for _, g := range a.denied {
		if g.Match(id) {
			return false
		}
	}

	if len(a.allowed) == 0 {
		return true
	}
	for _, g := range a.allowed {
		if g.Match(id) {
			return true
		}
	}
	return false
}
