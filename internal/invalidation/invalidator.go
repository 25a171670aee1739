package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"go.uber.org/zap"
)

// Invalidator tells downstream renderers that the views of a business are
// stale. It only triggers; it never waits for re-rendering.
type Invalidator interface {
	Notify(ctx context.Context, businessID snowflake.ID) error
}

// Paths lists the views derived from one business: its public page, the
// public listing and the owner's management dashboard.
func Paths(businessID snowflake.ID) []string {
	return []string{
		"/businesses/" + businessID.String(),
		"/businesses",
		"/dashboard/businesses",
	}
}

// Message is the payload published for each invalidation.
type Message struct {
	BusinessID string    `json:"business_id"`
	Paths      []string  `json:"paths"`
	At         time.Time `json:"at"`
}

// RedisInvalidator publishes a Message on <prefix>:invalidate and deletes the
// cached renderings stored under <prefix>:view:<path>.
type RedisInvalidator struct {
	client  *redis.Client
	prefix  string
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRedisInvalidator(client *redis.Client, prefix string, log *zap.Logger, m *metrics.Metrics) *RedisInvalidator {
	return &RedisInvalidator{
		client:  client,
		prefix:  prefix,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

func (r *RedisInvalidator) Channel() string {
	return r.prefix + ":invalidate"
}

func (r *RedisInvalidator) ViewKey(path string) string {
	return r.prefix + ":view:" + path
}

func (r *RedisInvalidator) Notify(ctx context.Context, businessID snowflake.ID) error {
	paths := Paths(businessID)
	payload, err := json.Marshal(Message{
		BusinessID: businessID.String(),
		Paths:      paths,
		At:         r.now().UTC(),
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		keys = append(keys, r.ViewKey(p))
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Publish(ctx, r.Channel(), payload)
		return nil
	})
	r.metrics.RecordInvalidation(ctx, err)
	if err != nil {
		return fmt.Errorf("invalidate views of %s: %w", businessID, err)
	}
	r.log.Debug("views invalidated",
		zap.String("business_id", businessID.String()),
		zap.Strings("paths", paths),
	)
	return nil
}

// LogInvalidator records invalidations for deployments without Redis.
type LogInvalidator struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewLogInvalidator(log *zap.Logger, m *metrics.Metrics) *LogInvalidator {
	return &LogInvalidator{log: log, metrics: m}
}

func (l *LogInvalidator) Notify(ctx context.Context, businessID snowflake.ID) error {
	l.metrics.RecordInvalidation(ctx, nil)
	l.log.Info("views invalidated",
		zap.String("business_id", businessID.String()),
		zap.Strings("paths", Paths(businessID)),
	)
	return nil
}
