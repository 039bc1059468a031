package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-battle/internal/domain"
	"quiz-battle/internal/infra/memory"
)

// ContestRepository caches contest content in Redis and falls back to a loader on cache miss.
// Content is stored as JSON: SET contest:{contestID}:content {json} EX ttl
type ContestRepository struct {
	client *redis.Client
	loader memory.ContestLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewContestRepository(client *redis.Client, loader memory.ContestLoader, ttl time.Duration) *ContestRepository {
	return &ContestRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ContestRepository) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	if contest, ok := r.cached(ctx, contestID); ok {
		return contest, nil
	}

	result, err, _ := r.sf.Do(contestID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if contest, ok := r.cached(ctx, contestID); ok {
			return contest, nil
		}

		contest, err := r.loader.LoadContest(ctx, contestID)
		if err != nil {
			return domain.Contest{}, err
		}

		data, err := json.Marshal(contest)
		if err != nil {
			return domain.Contest{}, err
		}
		if err := r.client.Set(ctx, r.contentKey(contestID), data, r.ttlWithJitter()).Err(); err != nil {
			logger.Warningf("cache contest %s: %v", contestID, err)
		}
		return contest, nil
	})
	if err != nil {
		return domain.Contest{}, err
	}
	return result.(domain.Contest), nil
}

// Invalidate drops the cached content of a contest.
func (r *ContestRepository) Invalidate(ctx context.Context, contestID string) error {
	return domain.Unavailable(r.client.Del(ctx, r.contentKey(contestID)).Err())
}

func (r *ContestRepository) cached(ctx context.Context, contestID string) (domain.Contest, bool) {
	data, err := r.client.Get(ctx, r.contentKey(contestID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warningf("read cached contest %s: %v", contestID, err)
		}
		return domain.Contest{}, false
	}
	var contest domain.Contest
	if err := json.Unmarshal(data, &contest); err != nil {
		return domain.Contest{}, false
	}
	return contest, true
}

func (r *ContestRepository) contentKey(contestID string) string {
	return "contest:" + contestID + ":content"
}

func (r *ContestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
