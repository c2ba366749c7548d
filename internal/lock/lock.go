// Package lock provides the mutual exclusion used around exports when Postgres is not the store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sprint-pulse:lock:"

var ErrNotHeld = errors.New("lock not held")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease lock stored under a single key per lock id.
type Redis struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[int64]string
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, ttl: ttl, tokens: map[int64]string{}}
}

// DialRedis parses a redis:// URL and checks the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (r *Redis) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	token := strconv.FormatInt(time.Now().UnixNano(), 36)
	ok, err := r.client.SetNX(ctx, keyPrefix+strconv.FormatInt(key, 10), token, r.ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

func (r *Redis) AdvisoryUnlock(ctx context.Context, key int64) error {
	r.mu.Lock()
	token, held := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !held {
		return ErrNotHeld
	}
	n, err := releaseScript.Run(ctx, r.client, []string{keyPrefix + strconv.FormatInt(key, 10)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Local serialises exports within one process.
type Local struct {
	mu   sync.Mutex
	held map[int64]bool
}

func NewLocal() *Local { return &Local{held: map[int64]bool{}} }

func (l *Local) TryAdvisoryLock(_ context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *Local) AdvisoryUnlock(_ context.Context, key int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held[key] {
		return ErrNotHeld
	}
	delete(l.held, key)
	return nil
}
