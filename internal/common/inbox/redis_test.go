package inbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisSource_ReadsAndDeletes(t *testing.T) {
	mr, client := newMiniredis(t)
	require.NoError(t, mr.Set("otp:kid@example.com", "Your code is 552211"))

	src := NewRedisSource(client)
	text, found, err := src.Latest(context.Background(), "kid@example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Your code is 552211", text)
	assert.False(t, mr.Exists("otp:kid@example.com"))

	_, found, err = src.Latest(context.Background(), "kid@example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisSource_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGetDel("otp:kid@example.com").SetErr(errors.New("READONLY replica"))

	_, _, err := NewRedisSource(db).Latest(context.Background(), "kid@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisConsumedSet_Claim(t *testing.T) {
	mr, client := newMiniredis(t)
	set := NewRedisConsumedSet(client, 10*time.Minute)
	ctx := context.Background()

	fresh, err := set.Claim(ctx, "a@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = set.Claim(ctx, "a@example.com", "123456")
	require.NoError(t, err)
	assert.False(t, fresh)

	fresh, err = set.Claim(ctx, "b@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, fresh, "another address may receive the same code")

	assert.Equal(t, 10*time.Minute, mr.TTL("otp:claimed:a@example.com:123456"))
}

func TestRedisConsumedSet_ClaimsExpire(t *testing.T) {
	mr, client := newMiniredis(t)
	set := NewRedisConsumedSet(client, 0)
	ctx := context.Background()

	_, err := set.Claim(ctx, "a@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, DefaultClaimTTL, mr.TTL("otp:claimed:a@example.com:123456"))

	mr.FastForward(DefaultClaimTTL + time.Second)

	fresh, err := set.Claim(ctx, "a@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestRedisConsumedSet_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectSetNX("otp:claimed:a@example.com:123456", 1, time.Hour).SetErr(errors.New("OOM"))

	_, err := NewRedisConsumedSet(db, time.Hour).Claim(context.Background(), "a@example.com", "123456")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
