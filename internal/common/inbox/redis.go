package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpKeyPrefix     = "otp:"
	claimedKeyPrefix = "otp:claimed:"

	// DefaultClaimTTL applies when NewRedisConsumedSet gets no TTL.
	DefaultClaimTTL = time.Hour
)

// RedisSource reads codes a mail webhook stored under otp:{email}. The key is
// deleted on read so a code is handed out once.
type RedisSource struct {
	client redis.Cmdable
}

func NewRedisSource(client redis.Cmdable) *RedisSource {
	return &RedisSource{client: client}
}

func (r *RedisSource) Latest(ctx context.Context, email string) (string, bool, error) {
	val, err := r.client.GetDel(ctx, otpKeyPrefix+email).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s%s: %w", otpKeyPrefix, email, err)
	}
	return val, true, nil
}

// RedisConsumedSet shares claimed codes between harness processes. Each claim
// is a key otp:claimed:{email}:{code} that expires after ttl.
type RedisConsumedSet struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisConsumedSet(client redis.Cmdable, ttl time.Duration) *RedisConsumedSet {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &RedisConsumedSet{client: client, ttl: ttl}
}

func claimKey(email, code string) string {
	return claimedKeyPrefix + email + ":" + code
}

func (r *RedisConsumedSet) Claim(ctx context.Context, email, code string) (bool, error) {
	set, err := r.client.SetNX(ctx, claimKey(email, code), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim code for %s: %w", email, err)
	}
	return set, nil
}
