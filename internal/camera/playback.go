package camera

import (
	"context"
	"time"
)

// PlaybackPolicy bounds how long a session waits for the sink to render.
//
// Some mobile browsers ignore autoplay on the first attempt, so after an
// immediate Play the sink is re-asserted at each offset in Delays (measured
// from attachment) while it is still paused. After the last offset the
// session fails with ReasonPlaybackFailed.
type PlaybackPolicy struct {
	Delays []time.Duration
}

// DefaultPlaybackPolicy re-asserts playback at 1s and 2s.
func DefaultPlaybackPolicy() PlaybackPolicy {
	return PlaybackPolicy{Delays: []time.Duration{1 * time.Second, 2 * time.Second}}
}

// confirm blocks until sink is playing, ctx is done, or the schedule runs out.
// onReassert is called before every delayed Play.
func (p PlaybackPolicy) confirm(ctx context.Context, sink Sink, onReassert func(attempt int)) error {
	lastErr := sink.Play(ctx)
	if sink.Playing() {
		return nil
	}

	var elapsed time.Duration
	for i, at := range p.Delays {
		wait := at - elapsed
		elapsed = at
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if sink.Playing() {
			return nil
		}
		if onReassert != nil {
			onReassert(i + 1)
		}
		if err := sink.Play(ctx); err != nil {
			lastErr = err
		}
		if sink.Playing() {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return NewError(ReasonPlaybackFailed, lastErr)
}
