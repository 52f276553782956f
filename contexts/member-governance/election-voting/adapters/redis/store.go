package redisadapter

import (
	"context"
	"errors"
	"time"

	domainerrors "intellicash/contexts/member-governance/election-voting/domain/errors"
	"intellicash/contexts/member-governance/election-voting/ports"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RateStore backs the security gate's counters, session fingerprints,
// device-to-IP sets and temporary IP blocks with Redis. Every key
// carries a TTL so abandoned state expires on its own.
type RateStore struct {
	client redis.UniversalClient
}

func NewRateStore(client redis.UniversalClient) *RateStore {
	return &RateStore{client: client}
}

func (s *RateStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RateStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *RateStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RateStore) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RateStore) AddToSet(ctx context.Context, key string, member string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, member)
	pipe.Expire(ctx, key, ttl)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// RecomputeLock serializes result recomputation per election across
// instances using redislock.
type RecomputeLock struct {
	locker *redislock.Client
}

func NewRecomputeLock(client redis.UniversalClient) *RecomputeLock {
	return &RecomputeLock{locker: redislock.New(client)}
}

func (l *RecomputeLock) Acquire(
	ctx context.Context,
	electionID string,
	ttl time.Duration,
) (func(ctx context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, "results_lock:"+electionID, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, domainerrors.ErrRecomputeInProgress
		}
		return nil, err
	}
	return lock.Release, nil
}

var _ ports.RateStore = (*RateStore)(nil)
var _ ports.RecomputeLock = (*RecomputeLock)(nil)
