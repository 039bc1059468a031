package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-battle/internal/domain"
)

// ContestLoader fetches contest content from the record store.
type ContestLoader interface {
	LoadContest(ctx context.Context, contestID string) (domain.Contest, error)
}

// ContestRepository caches contest content with TTL to keep stream ticks and submissions off the database.
type ContestRepository struct {
	loader ContestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedContest
}

type cachedContest struct {
	contest   domain.Contest
	expiresAt time.Time
}

func NewContestRepository(loader ContestLoader, ttl time.Duration) *ContestRepository {
	return &ContestRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedContest),
	}
}

func (r *ContestRepository) GetContest(ctx context.Context, contestID string) (domain.Contest, error) {
	if contest, ok := r.lookup(contestID); ok {
		return contest, nil
	}

	result, err, _ := r.sf.Do(contestID, func() (interface{}, error) {
		if contest, ok := r.lookup(contestID); ok {
			return contest, nil
		}

		contest, err := r.loader.LoadContest(ctx, contestID)
		if err != nil {
			return domain.Contest{}, err
		}

		r.mu.Lock()
		r.cache[contestID] = cachedContest{
			contest:   contest,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return contest, nil
	})
	if err != nil {
		return domain.Contest{}, err
	}
	return result.(domain.Contest), nil
}

// Invalidate drops a cached contest so the next read reloads it.
func (r *ContestRepository) Invalidate(_ context.Context, contestID string) error {
	r.mu.Lock()
	delete(r.cache, contestID)
	r.mu.Unlock()
	return nil
}

func (r *ContestRepository) lookup(contestID string) (domain.Contest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[contestID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Contest{}, false
	}
	return entry.contest, true
}

func (r *ContestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
