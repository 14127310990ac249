package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/serroba/ipguard/internal/metrics"
	"github.com/serroba/ipguard/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder() *metrics.Recorder {
	reg := prometheus.NewRegistry()

	return metrics.New(reg, reg)
}

func TestRecorder_ObserveDecision(t *testing.T) {
	rec := newRecorder()

	rec.ObserveDecision(ratelimit.Result{Outcome: ratelimit.Admitted, Class: ratelimit.ClassStandard})
	rec.ObserveDecision(ratelimit.Result{Outcome: ratelimit.Admitted, Class: ratelimit.ClassStandard})
	rec.ObserveDecision(ratelimit.Result{
		Outcome: ratelimit.Rejected,
		Reason:  ratelimit.ReasonBlocked,
		Class:   ratelimit.ClassScheduled,
	})

	assert.InDelta(t, 2, testutil.ToFloat64(rec.DecisionsTotal.WithLabelValues("standard", "admitted", "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.DecisionsTotal.WithLabelValues("scheduled", "rejected", "blocked")), 0)
}

func TestRecorder_ObserveStorageError(t *testing.T) {
	rec := newRecorder()

	rec.ObserveStorageError(ratelimit.StoreWindows, "save")

	assert.InDelta(t, 1, testutil.ToFloat64(rec.StorageErrorsTotal.WithLabelValues("windows", "save")), 0)
}

func TestRecorder_Notify(t *testing.T) {
	rec := newRecorder()

	require.NoError(t, rec.Notify(context.Background(), ratelimit.Event{
		Type:  ratelimit.EventIPBlocked,
		Class: ratelimit.ClassStandard,
	}))
	require.NoError(t, rec.Notify(context.Background(), ratelimit.Event{Type: "other"}))

	assert.InDelta(t, 1, testutil.ToFloat64(rec.BlocksTotal.WithLabelValues("standard")), 0)
}

func TestRecorder_Handler(t *testing.T) {
	reg := metrics.NewRegistry()
	rec := metrics.New(reg, reg)
	rec.ObserveStorageError(ratelimit.StoreBlocks, "block")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	rec.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ratelimit_storage_errors_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
