package redisx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stats struct {
	Free int `json:"free"`
	Sold int `json:"sold"`
}

func TestQueryCache_MissThenHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &QueryCache{Redis: db}
	ctx := context.Background()

	mock.ExpectGet("query:stats").RedisNil()
	var got stats
	hit, err := c.Get(ctx, "stats", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	mock.ExpectSet("query:stats", []byte(`{"free":9,"sold":1}`), 5*time.Second).SetVal("OK")
	require.NoError(t, c.Set(ctx, "stats", stats{Free: 9, Sold: 1}, 5*time.Second))

	mock.ExpectGet("query:stats").SetVal(`{"free":9,"sold":1}`)
	hit, err = c.Get(ctx, "stats", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, stats{Free: 9, Sold: 1}, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCache_ErrorsSurface(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := &QueryCache{Redis: db}

	mock.ExpectGet("query:stats").SetErr(errors.New("connection refused"))
	var got stats
	hit, err := c.Get(context.Background(), "stats", &got)
	assert.Error(t, err)
	assert.False(t, hit)

	mock.ExpectGet("query:stats").SetVal(`not json`)
	hit, err = c.Get(context.Background(), "stats", &got)
	assert.Error(t, err)
	assert.False(t, hit)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedup_SeenAndMark(t *testing.T) {
	db, mock := redismock.NewClientMock()
	d := &Dedup{Redis: db, Service: "settler"}
	ctx := context.Background()
	key := "dedup:settler:stripe:evt_1"

	mock.ExpectExists(key).SetVal(0)
	seen, err := d.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	mock.ExpectSet(key, "1", TTLDedup).SetVal("OK")
	require.NoError(t, d.Mark(ctx, "stripe", "evt_1"))

	mock.ExpectExists(key).SetVal(1)
	seen, err = d.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedup_CustomTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	d := &Dedup{Redis: db, Service: "settler", TTL: time.Hour}

	mock.ExpectSet("dedup:settler:manual:42", "1", time.Hour).SetVal("OK")
	require.NoError(t, d.Mark(context.Background(), "manual", "42"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	db, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, HealthCheck(context.Background(), db))

	mock.ExpectPing().SetErr(errors.New("down"))
	assert.ErrorContains(t, HealthCheck(context.Background(), db), "redis health check failed")

	assert.NoError(t, mock.ExpectationsWereMet())
}
