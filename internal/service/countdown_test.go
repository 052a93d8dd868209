package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayTracksPolledValue(t *testing.T) {
	var value atomic.Int32
	value.Store(30)

	countdown := NewCountdown(func() int { return int(value.Load()) }, nil, WithInterval(5*time.Millisecond))
	countdown.Start(context.Background())
	defer countdown.Stop()

	assert.Equal(t, 30, countdown.Display())

	value.Store(25)
	require.Eventually(t, func() bool {
		return countdown.Display() == 25
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSkipZeroesDisplayAndFiresOnce(t *testing.T) {
	var skips atomic.Int32
	countdown := NewCountdown(func() int { return 10 }, func() { skips.Add(1) }, WithInterval(time.Hour))
	countdown.Start(context.Background())
	defer countdown.Stop()

	countdown.Skip()
	assert.Equal(t, 0, countdown.Display())
	assert.Equal(t, int32(1), skips.Load())

	countdown.Skip()
	assert.Equal(t, int32(1), skips.Load())
}

func TestSkipIsNoOpAtZero(t *testing.T) {
	var skips atomic.Int32
	countdown := NewCountdown(func() int { return 0 }, func() { skips.Add(1) }, WithInterval(time.Hour))
	countdown.Start(context.Background())
	defer countdown.Stop()

	countdown.Skip()
	assert.Zero(t, skips.Load())
}

func TestSkipWithoutCallback(t *testing.T) {
	countdown := NewCountdown(func() int { return 5 }, nil, WithInterval(time.Hour))
	countdown.Start(context.Background())
	defer countdown.Stop()

	countdown.Skip()
	assert.Equal(t, 0, countdown.Display())
}

func TestStopHaltsPolling(t *testing.T) {
	var polls atomic.Int32
	countdown := NewCountdown(func() int { return int(polls.Add(1)) }, nil, WithInterval(5*time.Millisecond))

	countdown.Start(context.Background())
	require.Eventually(t, func() bool { return polls.Load() > 2 }, 2*time.Second, 5*time.Millisecond)

	countdown.Stop()
	settled := polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, polls.Load(), settled+1)
}
