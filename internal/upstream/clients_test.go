package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
)

func timeMustParse(t *testing.T, value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestBookingClient_QueryOperations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/operations", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("from"))
		assert.NotEmpty(t, r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": 0,
			"operations": [
				{"case_id": "CASE-001", "patient_id": "MRN1", "procedure_codes": ["44140"], "scheduled_time": "2026-09-01T09:00:00Z", "location": "OR3"},
				{"case_id": "CASE-002", "patient_id": "MRN2", "scheduled_time": "not-a-time"}
			]
		}`))
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Schedule.BookingBaseURL = server.URL
	client := NewBookingClient(cfg, zap.NewNop())

	ops, err := client.QueryOperations(context.Background(), timeMustParse(t, "2026-08-31T00:00:00Z"), timeMustParse(t, "2026-09-02T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, ops, 1) // entry with bad timestamp skipped
	assert.Equal(t, "CASE-001", ops[0].CaseID)
	assert.Equal(t, []string{"44140"}, ops[0].ProcedureCodes)
}

func TestBookingClient_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": 1, "msg": "backend unavailable"}`))
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Schedule.BookingBaseURL = server.URL
	client := NewBookingClient(cfg, zap.NewNop())

	_, err := client.QueryOperations(context.Background(), timeMustParse(t, "2026-08-31T00:00:00Z"), timeMustParse(t, "2026-09-02T00:00:00Z"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestOrdersClient_QueryProphylaxisStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/medication-orders", r.URL.Path)
		assert.Equal(t, "MRN1", r.URL.Query().Get("patient_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": 0,
			"orders": [
				{"agent": "cefazolin", "category": "prophylactic", "administered": false},
				{"agent": "vancomycin", "category": "therapeutic", "administered": true}
			]
		}`))
	}))
	defer server.Close()

	cfg := &config.Config{}
	cfg.Orders.BaseURL = server.URL
	cfg.Orders.RecencyHours = 24
	client := NewOrdersClient(cfg, zap.NewNop())

	status, err := client.QueryProphylaxisStatus(context.Background(), "MRN1")
	require.NoError(t, err)
	assert.True(t, status.OrderExists)
	assert.False(t, status.Administered)
	assert.True(t, status.TherapeuticActive)
	assert.Equal(t, []string{"cefazolin"}, status.OrderedAgents)
}
