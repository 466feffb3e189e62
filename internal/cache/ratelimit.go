package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// countScript increments the attempt counter and makes sure it expires, also
// for a counter left without a TTL by an earlier failure.
// KEYS: counter key. ARGV: window ms.
const countScript = `
local count = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`

var ErrTooManyAttempts = errors.New("too many attempts, try again later")

const (
	inviteRedeemLimit  = 10
	inviteRedeemWindow = 15 * time.Minute
)

// RateLimiter counts attempts per key in fixed windows.
type RateLimiter struct {
	redis redisClient
}

// NewRateLimiter returns a limiter over client. A nil client allows
// everything.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	r := &RateLimiter{}
	if client != nil {
		r.redis = client
	}
	return r
}

// CheckInviteRedeem limits how many invite codes one user may try, so codes
// cannot be guessed by brute force.
func (r *RateLimiter) CheckInviteRedeem(ctx context.Context, userID string) error {
	return r.check(ctx, fmt.Sprintf("invite_redeem_attempts:%s", userID), inviteRedeemLimit, inviteRedeemWindow)
}

func (r *RateLimiter) ResetInviteRedeem(ctx context.Context, userID string) error {
	if r.redis == nil {
		return nil
	}
	return r.redis.Del(ctx, fmt.Sprintf("invite_redeem_attempts:%s", userID)).Err()
}

func (r *RateLimiter) check(ctx context.Context, key string, limit int64, window time.Duration) error {
	if r.redis == nil {
		return nil
	}

	count, err := r.redis.Eval(ctx, countScript, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}

	if count > limit {
		return ErrTooManyAttempts
	}
	return nil
}
