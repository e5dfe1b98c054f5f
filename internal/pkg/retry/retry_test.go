package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryFixed(t *testing.T) {
	t.Parallel()
	s, err := NewRetry(Config{
		Type: "fixed",
		FixedInterval: &FixedIntervalConfig{
			Interval:   100 * time.Millisecond,
			MaxRetries: 2,
		},
	})
	require.NoError(t, err)

	d, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)

	_, ok = s.Next()
	require.True(t, ok)
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestNewRetryExponential(t *testing.T) {
	t.Parallel()
	s, err := NewRetry(Config{
		Type: "exponential",
		ExponentialBackoff: &ExponentialBackoffConfig{
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			MaxRetries:      4,
		},
	})
	require.NoError(t, err)

	// 第一个退避间隔就是初始间隔
	d, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestNewRetryUnknownType(t *testing.T) {
	t.Parallel()
	_, err := NewRetry(Config{Type: "linear"})
	assert.Error(t, err)
}
