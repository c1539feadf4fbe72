// Package claim keeps two runners on different hosts from reviewing the same
// document at the same time.
package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/review-automation/pkg/logger"
)

// Claimer hands out exclusive, expiring claims on document names.
type Claimer interface {
	// Claim reports whether the caller now owns name.
	Claim(ctx context.Context, name string) (bool, error)
	// Release gives up a claim held by the caller.
	Release(ctx context.Context, name string) error
}

// Local is the single-host claimer: every claim succeeds.
type Local struct{}

func (Local) Claim(context.Context, string) (bool, error) { return true, nil }
func (Local) Release(context.Context, string) error        { return nil }

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis stores claims as SET NX keys with a TTL so a crashed runner's claims
// expire on their own.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	token  string
	logger logger.Logger
}

func NewRedis(ctx context.Context, cfg *Config, log logger.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "review:claim:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}

	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		token:  uuid.NewString(),
		logger: log,
	}, nil
}

func (r *Redis) Claim(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+name, r.token, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", name, err)
	}
	if !ok {
		r.logger.Info("Document claimed by another runner", logger.String("file", name))
	}
	return ok, nil
}

func (r *Redis) Release(ctx context.Context, name string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + name}, r.token).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", name, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
