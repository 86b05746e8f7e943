package scorelock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTTL        = time.Minute
	defaultRetryDelay = 50 * time.Millisecond
	keyPrefix         = "judge:score:"
)

// release deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var _ Locker = &Redis{}

// RedisConfig defines the redis connection and lock timing
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	TTL        time.Duration
	RetryDelay time.Duration
}

// Redis is a Locker shared by every judge instance connected to the same
// server. The lock expires after TTL if its holder dies.
type Redis struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewRedis connects and pings the server
func NewRedis(ctx context.Context, conf RedisConfig, logger *zap.Logger) (*Redis, error) {
	if conf.TTL <= 0 {
		conf.TTL = defaultTTL
	}
	if conf.RetryDelay <= 0 {
		conf.RetryDelay = defaultRetryDelay
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("scorelock: init redis failed: %w", err)
	}
	return &Redis{
		client:     client,
		ttl:        conf.TTL,
		retryDelay: conf.RetryDelay,
		logger:     logger,
	}, nil
}

// Lock polls SETNX until the key is acquired or ctx is done
func (r *Redis) Lock(ctx context.Context, userID string) (func(), error) {
	key := keyPrefix + userID
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("scorelock: setnx: %w", err)
		}
		if ok {
			return func() { r.release(key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		r.logger.Warn("release score lock failed", zap.String("key", key), zap.Error(err))
	}
}

// Close closes the redis client
func (r *Redis) Close() error {
	return r.client.Close()
}
