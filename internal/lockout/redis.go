package lockout

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis shares lockout counters between instances.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
}

func NewRedis(client redis.UniversalClient, cfg Config) *Redis {
	return &Redis{client: client, cfg: cfg.withDefaults(), prefix: "lockout:"}
}

func (r *Redis) key(k string) string { return r.prefix + k }

// recordFailure increments the counter and starts its window in one step. A
// counter found without a TTL gets one as well.
var recordFailure = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func (r *Redis) RecordFailure(ctx context.Context, key string) (int, error) {
	count, err := recordFailure.Run(ctx, r.client, []string{r.key(key)}, r.cfg.Duration.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

func (r *Redis) IsLocked(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Get(ctx, r.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count >= int64(r.cfg.Threshold), nil
}

func (r *Redis) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
