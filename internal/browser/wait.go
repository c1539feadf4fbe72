package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PollInterval is how often WaitUntil re-evaluates its condition.
var PollInterval = 250 * time.Millisecond

// Condition is evaluated repeatedly by WaitUntil.
type Condition struct {
	Name  string
	Check func(ctx context.Context, s Session) (bool, error)
}

// Present holds once at least one element matches sel.
func Present(sel Selector) Condition {
	return Condition{
		Name: "presence of " + sel.String(),
		Check: func(ctx context.Context, s Session) (bool, error) {
			n, err := s.Count(ctx, sel)
			return n > 0, err
		},
	}
}

// Clickable holds once the first match is displayed and enabled.
func Clickable(sel Selector) Condition {
	return Condition{
		Name: "clickability of " + sel.String(),
		Check: func(ctx context.Context, s Session) (bool, error) {
			return s.Clickable(ctx, sel)
		},
	}
}

// TitleContains holds once the page title contains substr.
func TitleContains(substr string) Condition {
	return Condition{
		Name: fmt.Sprintf("title containing %q", substr),
		Check: func(ctx context.Context, s Session) (bool, error) {
			title, err := s.Title(ctx)
			return strings.Contains(title, substr), err
		},
	}
}

// WaitUntil polls cond until it holds or timeout elapses.
//
// It returns ErrWaitTimeout when the session stayed reachable but the
// condition never held, ErrSessionClosed when the session went away, and the
// context's error when ctx ended first. Check errors other than a closed
// session are treated as "not yet" and retried until the deadline.
func WaitUntil(ctx context.Context, s Session, cond Condition, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := cond.Check(ctx, s)
		switch {
		case err == nil && ok:
			return nil
		case errors.Is(err, ErrSessionClosed):
			return fmt.Errorf("waiting for %s: %w", cond.Name, err)
		case ctx.Err() != nil:
			return fmt.Errorf("waiting for %s: %w", cond.Name, context.Cause(ctx))
		}
		if err != nil {
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastErr != nil {
				return fmt.Errorf("waiting for %s after %s: %w (last error: %v)", cond.Name, timeout, ErrWaitTimeout, lastErr)
			}
			return fmt.Errorf("waiting for %s after %s: %w", cond.Name, timeout, ErrWaitTimeout)
		}

		timer := time.NewTimer(min(PollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for %s: %w", cond.Name, context.Cause(ctx))
		case <-timer.C:
		}
	}
}
