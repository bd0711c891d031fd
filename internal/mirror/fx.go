package mirror

import (
	"github.com/redis/go-redis/v9"
	"github.com/windimenu/windi/internal/config"
	"github.com/windimenu/windi/internal/mirror/outbox"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("mirror",
	fx.Provide(
		NewRemote,
		NewSyncer,
		NewOutbox,
		NewWorker,
	),
)

// WorkerModule starts the push worker.
var WorkerModule = fx.Invoke(RegisterWorker)

// NewOutbox picks the outbox implementation. Markers are dropped when the
// mirror is disabled, and kept in Redis when several processes share it.
func NewOutbox(cfg config.Config, remote *Remote, client *redis.Client, log *zap.Logger) outbox.Outbox {
	switch {
	case remote == nil:
		return outbox.Noop{}
	case cfg.Mirror.UseRedis && client != nil:
		return outbox.NewRedis(client, cfg.Mirror.QueueKey, log)
	default:
		if cfg.Mirror.UseRedis {
			log.Warn("MIRROR_USE_REDIS set without REDIS_ADDR, using in-process outbox")
		}
		return outbox.NewChannel()
	}
}
