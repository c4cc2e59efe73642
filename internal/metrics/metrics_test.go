package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/praemium/internal/metrics"
)

func TestCollectorsExposeObservations(t *testing.T) {
	c := metrics.New()
	c.ObserveLogin()
	c.ObserveBuild("stake", nil)
	c.ObserveBuild("stake", errors.New("boom"))
	c.ObserveTransition("claim", 1)
	c.ObservePipelineRun("stake", "committed", 2)
	c.ObserveRequest("/api/v1/balance", "GET", 200, 15*time.Millisecond)

	count, err := testutil.GatherAndCount(c.Registry(), "praemium_transactions_built_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "praemium_logins_total 1")
	require.Contains(t, string(body), `praemium_pipeline_runs_total{action="stake",outcome="committed"} 1`)
}
