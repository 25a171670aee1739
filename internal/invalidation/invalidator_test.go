package invalidation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, []string{"/businesses/15", "/businesses", "/dashboard/businesses"}, Paths(snowflake.ID(15)))
}

func TestRedisInvalidator_PublishesAndDropsViews(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inv := NewRedisInvalidator(client, "directory", zap.NewNop(), nil)
	inv.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, srv.Set(inv.ViewKey("/businesses/15"), "<html>"))
	require.NoError(t, srv.Set(inv.ViewKey("/businesses"), "<html>"))

	sub := client.Subscribe(context.Background(), inv.Channel())
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	require.NoError(t, inv.Notify(context.Background(), snowflake.ID(15)))

	assert.False(t, srv.Exists("directory:view:/businesses/15"))
	assert.False(t, srv.Exists("directory:view:/businesses"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var payload Message
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, "15", payload.BusinessID)
	assert.Equal(t, Paths(15), payload.Paths)
}

func TestRedisInvalidator_ReportsFailure(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	srv.Close()

	inv := NewRedisInvalidator(client, "directory", zap.NewNop(), nil)
	assert.Error(t, inv.Notify(context.Background(), snowflake.ID(1)))
}

func TestLogInvalidator(t *testing.T) {
	assert.NoError(t, NewLogInvalidator(zap.NewNop(), nil).Notify(context.Background(), snowflake.ID(1)))
}
