package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/lahodne/vyroba_backend/config"
	"github.com/bsm/redislock"
)

// acquireBatchLock serializes batch transitions of one finished product
// across processes. Best effort: when redis is not configured or not
// reachable the transition proceeds on row locks alone. The returned
// closure releases the lock and is always non-nil.
func (e *Engine) acquireBatchLock(ctx context.Context, productId int) func() {
	if e.locker == nil {
		return func() {}
	}

	key := fmt.Sprintf("production:batch:%d", productId)
	lock, err := e.locker.Obtain(ctx, key, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 10),
	})
	if err != nil {
		if !errors.Is(err, redislock.ErrNotObtained) {
			config.LogErrorCtx(ctx, e.logger, "postingLock.go", "acquireBatchLock", "Obtain", key, err)
		}
		return func() {}
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			config.LogErrorCtx(ctx, e.logger, "postingLock.go", "acquireBatchLock", "Release", key, err)
		}
	}
}
