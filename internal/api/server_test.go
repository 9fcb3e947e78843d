package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chicagolots/lotbot/internal/lotbot"
	memstore "github.com/chicagolots/lotbot/internal/store/memory"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := NewServer(memstore.NewPropertyStore(), zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsReportsStoreAggregates(t *testing.T) {
	t.Parallel()

	store := memstore.NewPropertyStore()
	ctx := context.Background()
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "A", Address: "1 First St"}))
	require.NoError(t, store.AddProperty(ctx, lotbot.Property{PIN: "B", Address: "2 Second St"}))

	s := NewServer(store, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats lotbot.Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, lotbot.Statistics{Total: 2, Remaining: 2}, stats)
}

func TestMetricsEndpointServes(t *testing.T) {
	t.Parallel()

	s := NewServer(memstore.NewPropertyStore(), zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
