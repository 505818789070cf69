package lib

import (
	"context"
	"time"
)

// Poll calls f until it returns nil or timeout elapses. Context can be used to
// cancel execution prematurely.
func Poll(ctx context.Context, timeout, interval time.Duration, f func() error) error {
	for i := 0; ; i++ {
		err := f()
		if err == nil {
			return nil
		}

		elapsed := time.Duration(i) * interval
		if elapsed > timeout {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
