package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestEvent() (*core.RequestEvent, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil)
	req.RemoteAddr = "203.0.113.7:1234"

	e := &core.RequestEvent{}
	e.App = core.NewBaseApp(core.BaseAppConfig{})
	e.Request = req
	e.Response = rec
	return e, rec
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	limiter := NewRateLimiter(db, 5)

	mock.ExpectIncr("ratelimit:ip:203.0.113.7").SetVal(1)
	mock.ExpectExpire("ratelimit:ip:203.0.113.7", time.Minute).SetVal(true)

	called := false
	handler := limiter.Wrap(func(e *core.RequestEvent) error {
		called = true
		return nil
	})

	e, _ := newRequestEvent()
	require.NoError(t, handler(e))
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	limiter := NewRateLimiter(db, 5)

	mock.ExpectIncr("ratelimit:ip:203.0.113.7").SetVal(6)

	called := false
	handler := limiter.Wrap(func(e *core.RequestEvent) error {
		called = true
		return nil
	})

	e, rec := newRequestEvent()
	require.NoError(t, handler(e))
	assert.False(t, called, "handler must not run past the limit")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_FailsOpenOnRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	limiter := NewRateLimiter(db, 5)

	mock.ExpectIncr("ratelimit:ip:203.0.113.7").SetErr(assert.AnError)

	called := false
	handler := limiter.Wrap(func(e *core.RequestEvent) error {
		called = true
		return nil
	})

	e, _ := newRequestEvent()
	require.NoError(t, handler(e))
	assert.True(t, called, "throttling is protective, not critical")
}
