package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	c := NewMockClock(start)

	assert.Equal(t, int64(1_700_000_000_000), c.UnixMilli())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, int64(1_700_000_001_500), c.UnixMilli())
	assert.Equal(t, 1500*time.Millisecond, c.Since(start))

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestSystemClock(t *testing.T) {
	c := NewSystemClock()
	before := time.Now().UnixMilli()
	got := c.UnixMilli()
	assert.GreaterOrEqual(t, got, before)
}
