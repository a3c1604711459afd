package hosterrors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCache_DisabledIsNil(t *testing.T) {
	c := NewCache(0, time.Minute)
	assert.Nil(t, c)

	// nil cache is safe to use and never skips
	assert.False(t, c.MarkError("http://a"))
	assert.False(t, c.Check("http://a"))
	assert.Zero(t, c.Skipped())
}

func TestCache_Threshold(t *testing.T) {
	c := NewCache(3, time.Minute)

	assert.False(t, c.MarkError("http://example.com/a"))
	assert.False(t, c.MarkError("http://EXAMPLE.com:8080/b"))
	assert.False(t, c.Check("example.com"))
	assert.True(t, c.MarkError("example.com"))

	assert.True(t, c.Check("http://example.com/other?q=1"))
	assert.False(t, c.Check("http://other.com/"))
	assert.Equal(t, int64(1), c.Skipped())
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(1, 10*time.Millisecond)
	c.MarkError("http://slow.test/")
	assert.True(t, c.Check("slow.test"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Check("slow.test"))
}

func TestCache_Permanent(t *testing.T) {
	c := NewCache(5, time.Nanosecond)
	c.MarkPermanent("http://nxdomain.test/")
	time.Sleep(time.Millisecond)
	assert.True(t, c.Check("nxdomain.test"))

	c.Clear("nxdomain.test")
	assert.False(t, c.Check("nxdomain.test"))
}

func TestNormalizeHost(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"Example.COM":               "example.com",
		"example.com:443":           "example.com",
		"https://Example.com:8443/": "example.com",
		"http://[::1]:80/x":         "::1",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeHost(in), in)
	}
}
