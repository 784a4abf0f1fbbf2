package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/apperr"
)

// ErrNoCode is returned when no live code exists for the appointment.
var ErrNoCode = errors.New("otp: no active code")

// attemptScript counts an attempt only while the code exists, so a stray
// counter never outlives its code.
var attemptScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return {redis.call('HGET', KEYS[1], 'hash'), n}
`)

// RedisStore keeps hashed codes and attempt counters with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over client.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("otp: redis client required")
	}
	return &RedisStore{client: client, prefix: "otp"}
}

func (s *RedisStore) codeKey(appointmentID string) string {
	return fmt.Sprintf("%s:code:%s", s.prefix, appointmentID)
}

func (s *RedisStore) cooldownKey(appointmentID string) string {
	return fmt.Sprintf("%s:cooldown:%s", s.prefix, appointmentID)
}

// Save replaces any previous code and resets the attempt counter.
func (s *RedisStore) Save(ctx context.Context, appointmentID string, hash []byte, ttl time.Duration) error {
	key := s.codeKey(appointmentID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "hash", string(hash), "attempts", 0)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.Transient("otp.save", err)
	}
	return nil
}

// Attempt claims one verification attempt and returns the stored hash with
// the attempt count, this one included. Concurrent callers each get a
// distinct count.
func (s *RedisStore) Attempt(ctx context.Context, appointmentID string) ([]byte, int, error) {
	res, err := attemptScript.Run(ctx, s.client, []string{s.codeKey(appointmentID)}).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, 0, ErrNoCode
	}
	if err != nil {
		return nil, 0, apperr.Transient("otp.attempt", err)
	}
	if len(res) != 2 {
		return nil, 0, fmt.Errorf("otp: unexpected attempt reply %v", res)
	}
	hash, _ := res[0].(string)
	n, _ := res[1].(int64)
	if hash == "" {
		return nil, 0, ErrNoCode
	}
	return []byte(hash), int(n), nil
}

// Delete drops the code once used.
func (s *RedisStore) Delete(ctx context.Context, appointmentID string) error {
	if err := s.client.Del(ctx, s.codeKey(appointmentID)).Err(); err != nil {
		return apperr.Transient("otp.delete", err)
	}
	return nil
}

// AcquireCooldown returns true when no send happened within cooldown, and
// starts a new window. Otherwise it returns the time left.
func (s *RedisStore) AcquireCooldown(ctx context.Context, appointmentID string, cooldown time.Duration) (bool, time.Duration, error) {
	key := s.cooldownKey(appointmentID)
	ok, err := s.client.SetNX(ctx, key, "1", cooldown).Result()
	if err != nil {
		return false, 0, apperr.Transient("otp.cooldown", err)
	}
	if ok {
		return true, 0, nil
	}
	left, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, apperr.Transient("otp.cooldown", err)
	}
	if left < 0 {
		left = 0
	}
	return false, left, nil
}
