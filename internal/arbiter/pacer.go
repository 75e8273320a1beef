package arbiter

import (
	"context"
	"time"

	"github.com/codefionn/wsserial/internal/logger"
)

// pacer keeps the run loop near a target rate. It sleeps away whatever is
// left of the period after a cycle's work. A cycle that overran the period
// counts as a slip and the sleep is skipped.
type pacer struct {
	hz     int
	period time.Duration
	last   time.Time

	cycles     int
	slips      int
	lastWindow int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
	log   *logger.Logger
}

func newPacer(hz int, log *logger.Logger) *pacer {
	return &pacer{
		hz:     hz,
		period: time.Second / time.Duration(hz),
		last:   time.Now(),
		now:    time.Now,
		sleep:  sleepContext,
		log:    log,
	}
}

// wait blocks until the next cycle is due. It returns false when ctx is done.
func (p *pacer) wait(ctx context.Context) bool {
	elapsed := p.now().Sub(p.last)
	if elapsed >= p.period {
		p.slips++
	} else if !p.sleep(ctx, p.period-elapsed) {
		return false
	}
	p.last = p.now()

	p.cycles++
	if p.cycles >= p.hz {
		if p.slips > 0 {
			p.log.Warn("Missed %d of %d cycle deadlines (%s per cycle)", p.slips, p.cycles, p.period)
		}
		p.lastWindow = p.slips
		p.cycles = 0
		p.slips = 0
	}
	return ctx.Err() == nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
