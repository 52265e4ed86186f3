package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow_FirstUseSetsExpiry(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, "redeem:", 2, time.Minute)

	mock.ExpectIncr("redeem:cust-1").SetVal(1)
	mock.ExpectExpire("redeem:cust-1", time.Minute).SetVal(true)

	ok, err := limiter.Allow(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_Allow_OverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, "redeem", 2, time.Minute)

	mock.ExpectIncr("redeem:cust-1").SetVal(3)

	ok, err := limiter.Allow(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_Allow_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewRateLimiter(db, "redeem", 2, time.Minute)

	mock.ExpectIncr("redeem:cust-1").SetErr(errors.New("connection refused"))

	ok, err := limiter.Allow(context.Background(), "cust-1")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey([]byte("secret"), "join-token")
	require.NoError(t, err)
	assert.Len(t, a, 32)

	again, err := DeriveKey([]byte("secret"), "join-token")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	other, err := DeriveKey([]byte("secret"), "something-else")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	_, err = DeriveKey(nil, "join-token")
	assert.ErrorIs(t, err, ErrEmptySecret)
}
