package redis

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-battle/internal/domain"
)

// tieSpan is the number of join slots encoded below the points of every member score.
// A member's ZSET score is points*tieSpan + (tieSpan - joinSeq), so equal points order by join.
const tieSpan = 1 << 20

// seedScript adds a member at zero points unless present, stamping its join sequence.
// KEYS: leaderboard, sequence. ARGV: member, tieSpan, ttl seconds.
var seedScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  local seq = redis.call('INCR', KEYS[2])
  local span = tonumber(ARGV[2])
  if seq >= span then seq = span - 1 end
  redis.call('ZADD', KEYS[1], span - seq, ARGV[1])
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
  redis.call('EXPIRE', KEYS[2], ttl)
end
return 1
`)

// incrementScript seeds the member if absent, then adds the scaled delta.
// KEYS: leaderboard, sequence. ARGV: member, tieSpan, ttl seconds, scaled delta.
var incrementScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  local seq = redis.call('INCR', KEYS[2])
  local span = tonumber(ARGV[2])
  if seq >= span then seq = span - 1 end
  redis.call('ZADD', KEYS[1], span - seq, ARGV[1])
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
  redis.call('EXPIRE', KEYS[2], ttl)
end
return redis.call('ZINCRBY', KEYS[1], ARGV[4], ARGV[1])
`)

// RankingStore keeps the live leaderboard of each contest in a Redis sorted set:
//
//	ZSET contest:{contestID}:leaderboard  member=userID score=points*tieSpan+(tieSpan-joinSeq)
//	INCR contest:{contestID}:joinseq
type RankingStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRankingStore(client *redis.Client, ttl time.Duration) *RankingStore {
	return &RankingStore{client: client, ttl: ttl}
}

func (s *RankingStore) Upsert(ctx context.Context, contestID, userID string) error {
	err := seedScript.Run(ctx, s.client, s.keys(contestID), userID, tieSpan, s.ttlSeconds()).Err()
	return domain.Unavailable(err)
}

func (s *RankingStore) Increment(ctx context.Context, contestID, userID string, delta int) error {
	scaled := strconv.FormatInt(int64(delta)*tieSpan, 10)
	err := incrementScript.Run(ctx, s.client, s.keys(contestID), userID, tieSpan, s.ttlSeconds(), scaled).Err()
	return domain.Unavailable(err)
}

func (s *RankingStore) TopN(ctx context.Context, contestID string, n int) ([]domain.RankedEntry, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n) - 1
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.leaderboardKey(contestID), 0, stop).Result()
	if err != nil {
		return nil, domain.Unavailable(err)
	}

	entries := make([]domain.RankedEntry, 0, len(members))
	for _, z := range members {
		userID, _ := z.Member.(string)
		entries = append(entries, domain.RankedEntry{
			UserID: userID,
			Score:  int(math.Floor(z.Score / tieSpan)),
		})
	}
	return entries, nil
}

func (s *RankingStore) Clear(ctx context.Context, contestID string) error {
	return domain.Unavailable(s.client.Del(ctx, s.keys(contestID)...).Err())
}

func (s *RankingStore) keys(contestID string) []string {
	return []string{s.leaderboardKey(contestID), "contest:" + contestID + ":joinseq"}
}

func (s *RankingStore) leaderboardKey(contestID string) string {
	return "contest:" + contestID + ":leaderboard"
}

func (s *RankingStore) ttlSeconds() int64 {
	if s.ttl <= 0 {
		return 0
	}
	return int64(math.Ceil(s.ttl.Seconds()))
}
