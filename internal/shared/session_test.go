package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func requestWithCookies(rr *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

// ===== SESSIONS =====

func TestSessionAnonymousLeavesNoState(t *testing.T) {
	mr, client := newRedis(t)
	sm := NewSessionManager(client, "dq_session", "secret", time.Hour, false)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Zero(t, sess.AdminID())

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))
	assert.Empty(t, rr.Result().Cookies())
	assert.Empty(t, mr.Keys())
}

func TestSessionLoginRoundTrip(t *testing.T) {
	mr, client := newRedis(t)
	sm := NewSessionManager(client, "dq_session", "secret", time.Hour, true)
	ctx := context.Background()
	at := time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC)

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sm.Rotate(sess)
	sess.SetAdmin(7, "admin@dewater.test", at)

	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	assert.True(t, mr.Exists("session:"+sess.ID))

	loaded, err := sm.Load(ctx, requestWithCookies(rr))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, int64(7), loaded.AdminID())
	assert.Equal(t, "admin@dewater.test", loaded.Email())
	assert.True(t, at.Equal(loaded.IssuedAt()))
}

func TestSessionRotateDropsPreviousID(t *testing.T) {
	mr, client := newRedis(t)
	sm := NewSessionManager(client, "dq_session", "secret", time.Hour, false)
	ctx := context.Background()

	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetAdmin(1, "a@dewater.test", time.Now())
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))
	oldID := sess.ID

	loaded, err := sm.Load(ctx, requestWithCookies(rr))
	require.NoError(t, err)
	sm.Rotate(loaded)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), loaded))

	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists("session:"+oldID))
	assert.True(t, mr.Exists("session:"+loaded.ID))
}

func TestSessionDestroyAndExpiry(t *testing.T) {
	mr, client := newRedis(t)
	sm := NewSessionManager(client, "dq_session", "secret", time.Minute, false)
	ctx := context.Background()

	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.SetAdmin(1, "a@dewater.test", time.Now())
	rr := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rr, sess))

	mr.FastForward(2 * time.Minute)
	expired, err := sm.Load(ctx, requestWithCookies(rr))
	require.NoError(t, err)
	assert.Zero(t, expired.AdminID())

	sess.SetAdmin(1, "a@dewater.test", time.Now())
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	sm.Destroy(sess)
	out := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, out, sess))
	assert.False(t, mr.Exists("session:"+sess.ID))
	require.Len(t, out.Result().Cookies(), 1)
	assert.Equal(t, -1, out.Result().Cookies()[0].MaxAge)
}

// ===== CSRF =====

func TestCSRFTokenLifecycle(t *testing.T) {
	_, client := newRedis(t)
	sm := NewSessionManager(client, "dq_session", "secret", time.Hour, false)
	csrf := NewCSRFManager("csrf-secret")
	ctx := context.Background()

	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, nil, token), ErrCSRFTokenMissing)

	other, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, other, token), ErrCSRFTokenMissing)
}

// ===== LOCKS =====

func TestRedisLockerExclusive(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()
	key := QuoteSendLockKey(12)
	assert.Equal(t, "quotes:12:send:lock", key)

	lock, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Obtain(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrLockNotObtained)

	require.NoError(t, lock.Release(ctx))
	second, err := locker.Obtain(ctx, key, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, second.Release(ctx), "releasing an expired lock is not an error")
}
