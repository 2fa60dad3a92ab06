package timeutils

import (
	"context"
	"fmt"
	"time"
)

// Retry runs function up to len(attemptDelays) times, sleeping the matching
// delay between attempts. onFinished decides whether the result warrants
// another attempt. The last result and error are returned once attempts run
// out, so callers keep the real failure cause.
func Retry[T any](
	ctx context.Context,
	attemptDelays []time.Duration,
	function func(context.Context) (T, error),
	onFinished func(T, error) (needRetry bool),
) (T, error) {
	var res T
	var err error
	for i, delay := range attemptDelays {
		if ctx.Err() != nil {
			return res, fmt.Errorf("retry canceled: %w", ctx.Err())
		}
		res, err = function(ctx)
		if !onFinished(res, err) {
			return res, err
		}
		if i == len(attemptDelays)-1 {
			break
		}
		if sleepErr := SleepCtx(ctx, delay); sleepErr != nil {
			return res, sleepErr
		}
	}
	return res, err
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep canceled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}
