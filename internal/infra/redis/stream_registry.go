package redis

import (
	"context"
	"time"

	"github.com/google/logger"
	"github.com/redis/go-redis/v9"

	"quiz-battle/internal/domain"
	"quiz-battle/internal/infra/memory"
)

// StreamRegistry is a Redis-aware implementation of app.StreamRegistry.
// Notes:
//   - Cancellation handles stay in a local in-memory registry; only this process can tear down its own streams.
//   - Redis holds SET contest:{contestID}:streams of connection ids so Active counts viewers across instances.
//   - Every live stream re-adds itself and refreshes the TTL on each heartbeat, so the set only
//     expires once no instance is polling it. That bounds leaks from crashed instances.
type StreamRegistry struct {
	client *redis.Client
	ttl    time.Duration
	local  *memory.StreamRegistry
}

func NewStreamRegistry(client *redis.Client, ttl time.Duration) *StreamRegistry {
	return &StreamRegistry{
		client: client,
		ttl:    ttl,
		local:  memory.NewStreamRegistry(),
	}
}

func (r *StreamRegistry) Register(ctx context.Context, contestID string, cancel context.CancelFunc) string {
	connID := r.local.Register(ctx, contestID, cancel)
	if err := r.mark(ctx, contestID, connID); err != nil {
		logger.Warningf("register stream %s for contest %s: %v", connID, contestID, err)
	}
	return connID
}

func (r *StreamRegistry) Heartbeat(ctx context.Context, contestID, connID string) {
	if err := r.mark(ctx, contestID, connID); err != nil {
		logger.V(1).Infof("heartbeat stream %s for contest %s: %v", connID, contestID, err)
	}
}

// mark is a best-effort liveness marker.
func (r *StreamRegistry) mark(ctx context.Context, contestID, connID string) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.key(contestID), connID)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key(contestID), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *StreamRegistry) Release(ctx context.Context, contestID, connID string) {
	r.local.Release(ctx, contestID, connID)
	if err := r.client.SRem(ctx, r.key(contestID), connID).Err(); err != nil {
		logger.Warningf("release stream %s for contest %s: %v", connID, contestID, err)
	}
}

func (r *StreamRegistry) Active(ctx context.Context, contestID string) (int, error) {
	n, err := r.client.SCard(ctx, r.key(contestID)).Result()
	if err != nil {
		return 0, domain.Unavailable(err)
	}
	return int(n), nil
}

func (r *StreamRegistry) CloseAll() {
	r.local.CloseAll()
}

func (r *StreamRegistry) key(contestID string) string {
	return "contest:" + contestID + ":streams"
}
