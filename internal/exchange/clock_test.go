package exchange

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockOffsetFromDateHeader(t *testing.T) {
	t.Parallel()

	c := NewClock()
	local := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return local }

	assert.False(t, c.Synced())
	assert.Equal(t, local, c.Now())

	server := local.Add(90 * time.Second)
	c.UpdateFromHeader(server.Format(http.TimeFormat))

	assert.True(t, c.Synced())
	assert.Equal(t, 90*time.Second, c.Offset())
	assert.Equal(t, local.Add(90*time.Second), c.Now())
}

func TestClockNegativeOffset(t *testing.T) {
	t.Parallel()

	c := NewClock()
	local := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return local }

	server := local.Add(-2 * time.Minute)
	c.UpdateFromHeader(server.Format(http.TimeFormat))
	assert.Equal(t, -2*time.Minute, c.Offset())
}

func TestClockIgnoresMalformedHeader(t *testing.T) {
	t.Parallel()

	c := NewClock()
	c.UpdateFromHeader("")
	c.UpdateFromHeader("not a date")
	assert.False(t, c.Synced())
	assert.Equal(t, time.Duration(0), c.Offset())
}
