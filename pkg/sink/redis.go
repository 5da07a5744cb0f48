package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marmos91/iec104d/pkg/apdu"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by RedisRegistry.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// RedisOptions locates the Redis server backing the session registry.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisRegistry records live sessions in Redis. The session key holds
// "<gateway>|<remote addr>|<started unix ms>" and a companion hash
// "<key>:last" keeps the kind, size and time of the latest frame. Both keys
// expire after TTL without traffic and are deleted when the session ends.
type RedisRegistry struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a registry on client. keyPrefix is prepended to
// "<gateway>:<session id>"; ttl expires a session unless a frame refreshes it.
func NewRedisRegistry(client RedisClient, keyPrefix string, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, prefix: keyPrefix, ttl: ttl}
}

// DialRedis creates a client and verifies the server answers PING.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Name implements Sink.
func (r *RedisRegistry) Name() string { return "redis" }

// SessionKey returns the registry key of s.
func (r *RedisRegistry) SessionKey(s Session) string {
	return r.prefix + s.GatewayID + ":" + strconv.FormatUint(s.ID, 10)
}

func (r *RedisRegistry) lastKey(s Session) string {
	return r.SessionKey(s) + ":last"
}

// SessionOpened implements Sink.
func (r *RedisRegistry) SessionOpened(ctx context.Context, s Session) error {
	value := fmt.Sprintf("%s|%s|%d", s.GatewayID, s.RemoteAddr, s.StartedAt.UnixMilli())
	if err := r.client.Set(ctx, r.SessionKey(s), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// FrameReceived implements Sink. The TTL refresh and the last-frame update
// go out in one pipeline.
func (r *RedisRegistry) FrameReceived(ctx context.Context, s Session, f apdu.Frame) error {
	key, last := r.SessionKey(s), r.lastKey(s)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, key, r.ttl)
		pipe.HSet(ctx, last,
			"kind", f.Kind.String(),
			"length", f.Len(),
			"ts", f.CapturedAtMillis(),
		)
		pipe.Expire(ctx, last, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	return nil
}

// SessionClosed implements Sink.
func (r *RedisRegistry) SessionClosed(ctx context.Context, s Session, _ string) error {
	if err := r.client.Del(ctx, r.SessionKey(s), r.lastKey(s)).Err(); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
