package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantgate/decision"
)

func doGet(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthBeforeFirstCycle(t *testing.T) {
	s := NewServer()
	code, body := doGet(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestSignalsEmptyBeforeFirstCycle(t *testing.T) {
	s := NewServer()
	code, body := doGet(t, s, "/api/signals")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["signals"])
}

func TestSignalsAfterSetResult(t *testing.T) {
	s := NewServer()
	s.SetResult(&decision.CycleResult{
		Signals: []*decision.Signal{
			{Symbol: "BTCUSDT", Kind: decision.KindEnterLong, Entry: 50000},
		},
		Rejected: []decision.RejectedCandidate{
			{Symbol: "ETHUSDT", Reason: "信心度不足"},
		},
		Timestamp: time.Now(),
	})

	code, body := doGet(t, s, "/api/signals")
	assert.Equal(t, http.StatusOK, code)
	signals, ok := body["signals"].([]any)
	require.True(t, ok)
	require.Len(t, signals, 1)
	first := signals[0].(map[string]any)
	assert.Equal(t, "BTCUSDT", first["symbol"])

	code, body = doGet(t, s, "/api/rejected")
	assert.Equal(t, http.StatusOK, code)
	rejected, ok := body["rejected"].([]any)
	require.True(t, ok)
	require.Len(t, rejected, 1)
}
