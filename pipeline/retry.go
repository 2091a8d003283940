package pipeline

import (
	"context"
	"math/rand"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("pipeline")

// RetryPolicy retries an operation with exponential backoff. Sleep and Rand
// are injectable so tests run with deterministic clocks.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// Do runs fn up to MaxAttempts times, backing off between attempts. Only
// errors accepted by retryable are retried, anything else surfaces at once.
func (p RetryPolicy) Do(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	p = p.withDefaults()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.delay(attempt)
			log.Debugf("%s: attempt %d/%d failed, retrying in %v: %v", op, attempt, p.MaxAttempts, delay, err)
			if serr := p.Sleep(ctx, delay); serr != nil {
				return err
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}

	log.Warnf("%s: giving up after %d attempts: %v", op, p.MaxAttempts, err)
	return err
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt-1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(p.Jitter * p.Rand() * float64(delay))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
