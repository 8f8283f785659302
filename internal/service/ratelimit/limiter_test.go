package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	l := New(3, 0.001, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "keys are independent")
}

func TestAllow_EvictsIdleKeys(t *testing.T) {
	l := New(1, 1, 10*time.Millisecond)
	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	time.Sleep(25 * time.Millisecond)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 1, New(1, 5, 0).RetryAfter())
	assert.Equal(t, 4, New(1, 0.25, 0).RetryAfter())
}
