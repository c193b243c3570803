package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlist(t *testing.T) {
	allow, err := NewAllowlist([]string{"100", "2*", "!2666"})
	require.NoError(t, err)

	assert.True(t, allow.Allowed(100))
	assert.True(t, allow.Allowed(2555))
	assert.False(t, allow.Allowed(2666))
	assert.False(t, allow.Allowed(300))

	everyone, err := NewAllowlist([]string{"*"})
	require.NoError(t, err)
	assert.True(t, everyone.Allowed(12345))

	empty, err := NewAllowlist(nil)
	require.NoError(t, err)
	assert.True(t, empty.Allowed(1))

	var none *Allowlist
	assert.True(t, none.Allowed(1))

	blank, err := NewAllowlist([]string{"  ", ""})
	require.NoError(t, err)
	assert.True(t, blank.Allowed(7))
}
