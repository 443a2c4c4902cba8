package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

type (
	// RedisStore keeps every entry in a hash holding its kind, encoded value
	// and logical expiration. Expiration is evaluated against the caller's
	// logical time inside Lua scripts, so each single-key operation is atomic.
	RedisStore struct {
		client    redis.UniversalClient
		prefix    string
		timeout   time.Duration
		keyExpiry bool
	}

	RedisConfig struct {
		Port     int
		Host     string
		Password string
		DB       int
	}

	RedisOption func(*RedisStore)
)

const (
	defaultPrefix  = "admission:"
	defaultTimeout = 5 * time.Second
	scanCount      = 100
)

var (
	getScript = redis.NewScript(`
-- KEYS[1]: entry key
-- ARGV[1]: current logical time (ms)
local entry = redis.call('HMGET', KEYS[1], 'kind', 'value', 'expires_at')
if entry[1] == false then
  return false
end
if entry[3] ~= false and tonumber(entry[3]) <= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  return false
end
return {entry[1], entry[2]}
`)

	setScript = redis.NewScript(`
-- KEYS[1]: entry key
-- ARGV[1]: kind
-- ARGV[2]: encoded value
-- ARGV[3]: logical expiration (ms), empty when the entry never expires
-- ARGV[4]: real expiry in ms, 0 to keep the key until it is read expired
redis.call('DEL', KEYS[1])
if ARGV[3] == '' then
  redis.call('HSET', KEYS[1], 'kind', ARGV[1], 'value', ARGV[2])
else
  redis.call('HSET', KEYS[1], 'kind', ARGV[1], 'value', ARGV[2], 'expires_at', ARGV[3])
end
if tonumber(ARGV[4]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`)

	incrementScript = redis.NewScript(`
-- KEYS[1]: entry key
if redis.call('HGET', KEYS[1], 'kind') ~= 'int' then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'value', 1)
return 1
`)
)

var _ Store = (*RedisStore)(nil)

func NewRedisClient(config RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		prefix:  defaultPrefix,
		timeout: defaultTimeout,
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// WithPrefix namespaces every key. Reset only removes keys under the prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithTimeout(timeout time.Duration) RedisOption {
	return func(s *RedisStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithKeyExpiry additionally arms a real PEXPIRE equal to the ttl. Only use it
// when logical time advances at wall-clock speed.
func WithKeyExpiry() RedisOption {
	return func(s *RedisStore) { s.keyExpiry = true }
}

func (r *RedisStore) Get(ctx context.Context, key string, now Millis) (interface{}, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := getScript.Run(ctx, r.client, []string{r.key(key)}, formatMillis(now)).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %q: %w", key, err)
	}

	if len(res) != 2 {
		return nil, false, fmt.Errorf("failed to get key %q: unexpected reply of length %d", key, len(res))
	}

	v, err := decode(res[0], res[1])
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode key %q: %w", key, err)
	}

	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl, now Millis) error {
	kind, data, err := encode(value)
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}

	var (
		expiresAt string
		pexpire   int64
	)

	if ttl > 0 {
		expiresAt = formatMillis(now + ttl)

		if r.keyExpiry {
			pexpire = ttl.Duration().Milliseconds() + 1
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := setScript.Run(ctx, r.client, []string{r.key(key)}, kind, data, expiresAt, pexpire).Err(); err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}

	return nil
}

func (r *RedisStore) Increment(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := incrementScript.Run(ctx, r.client, []string{r.key(key)}).Int()
	if err != nil {
		return fmt.Errorf("failed to increment key %q: %w", key, err)
	}

	if n == 0 {
		log.WithField("key", key).Debug("skipped increment of missing or non-integer value")
	}

	return nil
}

func (r *RedisStore) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		keys = make([]string, 0, scanCount)
		iter = r.client.Scan(ctx, 0, r.prefix+"*", scanCount).Iterator()
	)

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())

		if len(keys) == scanCount {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}

			keys = keys[:0]
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys with prefix %q: %w", r.prefix, err)
	}

	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}

	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func formatMillis(m Millis) string {
	return strconv.FormatFloat(float64(m), 'f', -1, 64)
}
