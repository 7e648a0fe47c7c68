// Package retry runs one backend operation with bounded attempts and linear
// backoff. Authorization failures and invalid input stop it at once.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"go.uber.org/zap"
)

// permissionMarkers are substrings of backend error messages that mean the
// caller lacks access and trying again cannot help.
var permissionMarkers = []string{"not authorized", "missing scope"}

// Policy parameterizes a single call site.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Resource names what the operation touches in permission errors.
	Resource string

	// Wait blocks for d or until ctx is done. Nil uses a timer.
	Wait   func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

// Default is the policy used when configuration does not override it.
var Default = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// For returns a copy of p whose permission errors name resource.
func (p Policy) For(resource string) Policy {
	p.Resource = resource
	return p
}

// Do invokes op until it succeeds or attempts run out. Before attempt n+1 it
// waits BaseDelay*n. A permission failure returns a PermissionDenied error
// naming p.Resource at once. InvalidArgument errors and a done ctx also end
// the loop. Exhausting the attempts returns the last error unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Wait
	if wait == nil {
		wait = sleep
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		logger.Warn("operation failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if IsPermission(err) {
			if apperr.Is(err, apperr.PermissionDenied) {
				return zero, err
			}
			return zero, apperr.PermissionOn(p.Resource, err)
		}
		if apperr.Is(err, apperr.InvalidArgument) || attempt >= attempts {
			return zero, err
		}
		if err := wait(ctx, p.BaseDelay*time.Duration(attempt)); err != nil {
			return zero, err
		}
	}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// IsPermission reports whether err is an authorization failure.
func IsPermission(err error) bool {
	if err == nil {
		return false
	}
	if apperr.Is(err, apperr.PermissionDenied) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permissionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
