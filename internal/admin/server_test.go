package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teskje/materialize/internal/trace"
)

func TestServerReportsRegisteredFrontiersAndLags(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFrontier("orders_view", func() trace.Time { return 42 })
	reg.RegisterUpsertBackend("hashmap", func() trace.Time { return 40 })

	srv := NewServer(reg)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/probe/frontier")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fr frontierResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fr))
	require.Equal(t, trace.Time(42), fr.Frontiers["orders_view"])

	resp2, err := http.Get(ts.URL + "/upsert/lag")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var lag upsertLagResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&lag))
	require.Equal(t, trace.Time(40), lag.Backends["hashmap"].LastClosedTime)
}

func TestServerWithNoRegistrationsReturnsEmptyMaps(t *testing.T) {
	reg := NewRegistry()
	srv := NewServer(reg)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/probe/frontier")
	require.NoError(t, err)
	defer resp.Body.Close()
	var fr frontierResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fr))
	require.Empty(t, fr.Frontiers)
}
