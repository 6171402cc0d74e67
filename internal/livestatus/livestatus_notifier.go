package livestatus

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Invalidator retires cached snapshots and announces the change after every
// committed open or close. Without redis it only pokes the local hub.
type Invalidator struct {
	rdb    *redis.Client
	local  func()
	logger *zap.Logger
}

func NewInvalidator(rdb *redis.Client, local func(), logger ...*zap.Logger) *Invalidator {
	l := zap.L().Named("livestatus.invalidator")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("livestatus.invalidator")
	}
	return &Invalidator{rdb: rdb, local: local, logger: l}
}

func (i *Invalidator) SessionChanged(ctx context.Context) {
	if i.rdb == nil {
		if i.local != nil {
			i.local()
		}
		return
	}

	gen, err := i.rdb.Incr(ctx, GenerationKey).Result()
	if err != nil {
		i.logger.Warn("live snapshot invalidation failed", zap.Error(err))
	}
	// subscribers include this process's hub
	if err := i.rdb.Publish(ctx, ChangedChannel, gen).Err(); err != nil {
		i.logger.Warn("live change publish failed", zap.Error(err))
		if i.local != nil {
			i.local()
		}
	}
}
