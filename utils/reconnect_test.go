package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedBackoffGivesUpAfterMaxFailures(t *testing.T) {
	b := NewFixedBackoff(3*time.Second, 3)

	d, ok := b.NextDelay()
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = b.NextDelay()
	assert.True(t, ok)

	_, ok = b.NextDelay()
	assert.False(t, ok)
	assert.Equal(t, 3, b.Failures())
}

func TestFixedBackoffReset(t *testing.T) {
	b := NewFixedBackoff(time.Second, 2)
	_, ok := b.NextDelay()
	assert.True(t, ok)

	b.Reset()
	assert.Equal(t, 0, b.Failures())
	_, ok = b.NextDelay()
	assert.True(t, ok)
}

func TestFixedBackoffMinimumOneAttempt(t *testing.T) {
	b := NewFixedBackoff(time.Second, 0)
	_, ok := b.NextDelay()
	assert.False(t, ok)
}
