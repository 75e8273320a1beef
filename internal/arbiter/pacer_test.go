package arbiter

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codefionn/wsserial/internal/logger"
)

type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	cancel bool
}

func newFakePacer(hz int) (*pacer, *fakeClock, *bytes.Buffer) {
	var buf bytes.Buffer
	clock := &fakeClock{now: time.Unix(1000, 0)}
	p := newPacer(hz, logger.NewWithWriter(logger.LevelWarn, &buf, "arbiter"))
	p.now = func() time.Time { return clock.now }
	p.sleep = func(_ context.Context, d time.Duration) bool {
		if clock.cancel {
			return false
		}
		clock.slept = append(clock.slept, d)
		clock.now = clock.now.Add(d)
		return true
	}
	p.last = clock.now
	return p, clock, &buf
}

func TestPacerSleepsRemainderOfPeriod(t *testing.T) {
	p, clock, buf := newFakePacer(10)

	clock.now = clock.now.Add(30 * time.Millisecond)
	assert.True(t, p.wait(context.Background()))

	assert.Equal(t, []time.Duration{70 * time.Millisecond}, clock.slept)
	assert.Equal(t, 0, p.slips)
	assert.Empty(t, buf.String())
}

func TestPacerCountsSlips(t *testing.T) {
	p, clock, buf := newFakePacer(4)

	for i := 0; i < 4; i++ {
		work := 10 * time.Millisecond
		if i%2 == 0 {
			work = 400 * time.Millisecond
		}
		clock.now = clock.now.Add(work)
		assert.True(t, p.wait(context.Background()))
	}

	assert.Len(t, clock.slept, 2, "overrun cycles skip the sleep")
	assert.Equal(t, 2, p.lastWindow)
	assert.Equal(t, 0, p.slips, "counters reset after a window")
	assert.Contains(t, buf.String(), "Missed 2 of 4 cycle deadlines")
}

func TestPacerStopsOnCancel(t *testing.T) {
	p, clock, _ := newFakePacer(30)
	clock.cancel = true

	assert.False(t, p.wait(context.Background()))
}

func TestSleepContext(t *testing.T) {
	assert.True(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepContext(ctx, time.Hour))
}
