package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/ipguard/internal/handlers"
	"github.com/serroba/ipguard/internal/ratelimit"
	"github.com/serroba/ipguard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testClient = ratelimit.ClientKey("203.0.113.7")

func newTestLimiter(t *testing.T) *ratelimit.RateLimiter {
	t.Helper()

	cfg := ratelimit.DefaultConfig()
	cfg.ScheduledMaxRequests = 1

	limiter, err := ratelimit.New(store.NewMemoryStores(), cfg)
	require.NoError(t, err)

	return limiter
}

// blockClient drives the client past the scheduled limit, which blocks on the first violation.
func blockClient(t *testing.T, limiter *ratelimit.RateLimiter, key ratelimit.ClientKey) {
	t.Helper()

	for range 2 {
		_, err := limiter.Admit(context.Background(), key, ratelimit.ClassScheduled)
		require.NoError(t, err)
	}

	blocked, err := limiter.IsBlocked(context.Background(), key)
	require.NoError(t, err)
	require.True(t, blocked)
}

func TestAdminHandler_Stats(t *testing.T) {
	limiter := newTestLimiter(t)
	handler := handlers.NewAdminHandler(limiter, zap.NewNop())

	_, _ = limiter.Admit(context.Background(), testClient, ratelimit.ClassStandard)
	blockClient(t, limiter, "198.51.100.1")

	resp, err := handler.Stats(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Body.Windows["standard"][string(testClient)])
	assert.Equal(t, 1, resp.Body.Windows["scheduled"]["198.51.100.1"])
	assert.Equal(t, 1, resp.Body.Blocked)
}

func TestAdminHandler_Blocked(t *testing.T) {
	t.Run("lists blocked clients sorted by key", func(t *testing.T) {
		limiter := newTestLimiter(t)
		handler := handlers.NewAdminHandler(limiter, zap.NewNop())

		blockClient(t, limiter, "203.0.113.9")
		blockClient(t, limiter, "198.51.100.1")

		resp, err := handler.ListBlocked(context.Background(), nil)

		require.NoError(t, err)
		require.Len(t, resp.Body.Clients, 2)
		assert.Equal(t, "198.51.100.1", resp.Body.Clients[0].Key)
		assert.Equal(t, "203.0.113.9", resp.Body.Clients[1].Key)
	})

	t.Run("unblocks a blocked client and keeps violations", func(t *testing.T) {
		limiter := newTestLimiter(t)
		handler := handlers.NewAdminHandler(limiter, zap.NewNop())

		blockClient(t, limiter, testClient)

		_, err := handler.Unblock(context.Background(), &handlers.ClientKeyRequest{Key: string(testClient)})
		require.NoError(t, err)

		blocked, _ := limiter.IsBlocked(context.Background(), testClient)
		assert.False(t, blocked)

		violations, _ := limiter.Violations(context.Background(), testClient)
		assert.Equal(t, int64(1), violations)
	})

	t.Run("unblocking an unknown client returns 404", func(t *testing.T) {
		handler := handlers.NewAdminHandler(newTestLimiter(t), zap.NewNop())

		_, err := handler.Unblock(context.Background(), &handlers.ClientKeyRequest{Key: "unknown"})

		var statusErr huma.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusNotFound, statusErr.GetStatus())
	})
}

func TestAdminHandler_Client(t *testing.T) {
	t.Run("reports client state", func(t *testing.T) {
		limiter := newTestLimiter(t)
		handler := handlers.NewAdminHandler(limiter, zap.NewNop())

		blockClient(t, limiter, testClient)

		resp, err := handler.GetClient(context.Background(), &handlers.ClientKeyRequest{Key: string(testClient)})

		require.NoError(t, err)
		assert.True(t, resp.Body.Blocked)
		assert.NotNil(t, resp.Body.BlockedAt)
		assert.Equal(t, int64(1), resp.Body.Violations)
		assert.Equal(t, 1, resp.Body.Windows["scheduled"])
		assert.Equal(t, 0, resp.Body.Windows["standard"])
	})

	t.Run("resets client state", func(t *testing.T) {
		limiter := newTestLimiter(t)
		handler := handlers.NewAdminHandler(limiter, zap.NewNop())

		blockClient(t, limiter, testClient)

		_, err := handler.ResetClient(context.Background(), &handlers.ClientKeyRequest{Key: string(testClient)})
		require.NoError(t, err)

		resp, err := handler.GetClient(context.Background(), &handlers.ClientKeyRequest{Key: string(testClient)})
		require.NoError(t, err)
		assert.False(t, resp.Body.Blocked)
		assert.Zero(t, resp.Body.Violations)
		assert.Zero(t, resp.Body.Windows["scheduled"])
	})

	t.Run("reports failed stores on partial reset", func(t *testing.T) {
		op := &mockOperator{resetErr: &ratelimit.ResetError{
			Key: testClient,
			Failed: []*ratelimit.StorageError{
				{Store: ratelimit.StoreViolations, Op: "reset", Err: errors.New("down")},
			},
		}}
		handler := handlers.NewAdminHandler(op, zap.NewNop())

		_, err := handler.ResetClient(context.Background(), &handlers.ClientKeyRequest{Key: string(testClient)})

		var statusErr huma.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.GetStatus())
		assert.Contains(t, err.Error(), "violations")
	})
}

func TestAdminHandler_Config(t *testing.T) {
	t.Run("returns the active config", func(t *testing.T) {
		handler := handlers.NewAdminHandler(newTestLimiter(t), zap.NewNop())

		resp, err := handler.GetConfig(context.Background(), nil)

		require.NoError(t, err)
		assert.Equal(t, int64(60), resp.Body.StandardWindowSeconds)
		assert.Equal(t, 10, resp.Body.StandardMaxRequests)
		assert.Equal(t, int64(3600), resp.Body.ScheduledWindowSeconds)
		assert.Equal(t, int64(5), resp.Body.EscalationStrikeLimit)
		assert.Equal(t, []string{"127.0.0.1", "::1"}, resp.Body.AllowList)
	})

	t.Run("replaces the config", func(t *testing.T) {
		limiter := newTestLimiter(t)
		handler := handlers.NewAdminHandler(limiter, zap.NewNop())

		req := &handlers.UpdateConfigRequest{Body: handlers.ConfigBody{
			StandardWindowSeconds:  30,
			StandardMaxRequests:    3,
			ScheduledWindowSeconds: 600,
			ScheduledMaxRequests:   5,
			EscalationStrikeLimit:  2,
			AllowList:              []string{"10.0.0.1"},
			BlockTTLSeconds:        120,
		}}

		resp, err := handler.UpdateConfig(context.Background(), req)

		require.NoError(t, err)
		assert.Equal(t, req.Body, resp.Body)
		assert.Equal(t, 30*time.Second, limiter.Config().StandardWindow)
		assert.Equal(t, 2*time.Minute, limiter.Config().BlockTTL)
	})

	t.Run("rejects an invalid config with 422", func(t *testing.T) {
		limiter := newTestLimiter(t)
		handler := handlers.NewAdminHandler(limiter, zap.NewNop())

		_, err := handler.UpdateConfig(context.Background(), &handlers.UpdateConfigRequest{})

		var statusErr huma.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusUnprocessableEntity, statusErr.GetStatus())
		assert.Equal(t, 10, limiter.Config().StandardMaxRequests, "config unchanged")
	})
}

func TestAdminHandler_ConfigBounds(t *testing.T) {
	valid := handlers.ConfigBody{
		StandardWindowSeconds:  60,
		StandardMaxRequests:    10,
		ScheduledWindowSeconds: 3600,
		ScheduledMaxRequests:   60,
		EscalationStrikeLimit:  5,
	}

	tests := []struct {
		name   string
		mutate func(*handlers.ConfigBody)
	}{
		{name: "window that overflows a duration", mutate: func(b *handlers.ConfigBody) { b.StandardWindowSeconds = 1 << 62 }},
		{name: "window above a year", mutate: func(b *handlers.ConfigBody) { b.ScheduledWindowSeconds = ratelimit.MaxSeconds + 1 }},
		{name: "block ttl that overflows a duration", mutate: func(b *handlers.ConfigBody) { b.BlockTTLSeconds = 1 << 62 }},
		{name: "negative block ttl", mutate: func(b *handlers.ConfigBody) { b.BlockTTLSeconds = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := newTestLimiter(t)
			handler := handlers.NewAdminHandler(limiter, zap.NewNop())

			body := valid
			tt.mutate(&body)

			_, err := handler.UpdateConfig(context.Background(), &handlers.UpdateConfigRequest{Body: body})

			var statusErr huma.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, http.StatusUnprocessableEntity, statusErr.GetStatus())
			assert.Equal(t, time.Minute, limiter.Config().StandardWindow, "config unchanged")
		})
	}

	t.Run("accepts the maximum", func(t *testing.T) {
		limiter := newTestLimiter(t)
		handler := handlers.NewAdminHandler(limiter, zap.NewNop())

		body := valid
		body.BlockTTLSeconds = ratelimit.MaxSeconds

		_, err := handler.UpdateConfig(context.Background(), &handlers.UpdateConfigRequest{Body: body})

		require.NoError(t, err)
		assert.Equal(t, ratelimit.MaxDuration, limiter.Config().BlockTTL)
	})
}

func TestAdminHandler_StorageErrors(t *testing.T) {
	storageErr := &ratelimit.StorageError{Store: ratelimit.StoreWindows, Op: "sizes", Err: errors.New("down")}
	handler := handlers.NewAdminHandler(&mockOperator{err: storageErr}, zap.NewNop())

	_, err := handler.Stats(context.Background(), nil)

	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.GetStatus())

	_, err = handler.Prune(context.Background(), nil)
	require.ErrorAs(t, err, &statusErr)
}

func TestRegisterAdminRoutes(t *testing.T) {
	limiter := newTestLimiter(t)
	blockClient(t, limiter, testClient)

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	handlers.RegisterAdminRoutes(api, handlers.NewAdminHandler(limiter, zap.NewNop()))

	send := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		return w
	}

	w := send(http.MethodGet, "/admin/blocked")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(testClient))

	w = send(http.MethodDelete, "/admin/blocked/"+string(testClient))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = send(http.MethodDelete, "/admin/blocked/"+string(testClient))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = send(http.MethodPost, "/admin/prune")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"pruned"`))
}

type mockOperator struct {
	err      error
	resetErr error
}

func (m *mockOperator) GetStats(context.Context) (ratelimit.Stats, error) {
	return ratelimit.Stats{}, m.err
}

func (m *mockOperator) ListBlocked(context.Context) (map[ratelimit.ClientKey]time.Time, error) {
	return nil, m.err
}

func (m *mockOperator) Unblock(context.Context, ratelimit.ClientKey) error { return m.err }

func (m *mockOperator) Violations(context.Context, ratelimit.ClientKey) (int64, error) {
	return 0, m.err
}

func (m *mockOperator) ResetClient(context.Context, ratelimit.ClientKey) error { return m.resetErr }

func (m *mockOperator) PruneAll(context.Context, ratelimit.Class) (int, error) { return 0, m.err }

func (m *mockOperator) Reconfigure(ratelimit.Config) error { return m.err }

func (m *mockOperator) Config() ratelimit.Config { return ratelimit.DefaultConfig() }
