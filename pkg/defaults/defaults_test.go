package defaults

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgents(t *testing.T) {
	assert.Len(t, UserAgents, 8)
	seen := make(map[string]bool)
	for _, ua := range UserAgents {
		assert.True(t, strings.HasPrefix(ua, "Mozilla/5.0"), ua)
		assert.False(t, seen[ua], "duplicate user agent %q", ua)
		seen[ua] = true
	}
}

func TestToolUserAgent(t *testing.T) {
	assert.Equal(t, "lostsec/"+Version, ToolUserAgent())
}

func TestBatchSizeDefaults(t *testing.T) {
	// Probe batches default to 500 tasks.
	assert.Equal(t, 500, ConcurrencyProbe*BatchMultiplier)
	assert.Greater(t, PoolSize, 0)
}
