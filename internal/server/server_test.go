package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodialogue/internal/common/config"
	"geodialogue/internal/common/logger"
	analysisdispatcher "geodialogue/internal/dialogue/analysis-dispatcher"
	dialoguemanager "geodialogue/internal/dialogue/dialogue-manager"
	intentclassifier "geodialogue/internal/dialogue/intent-classifier"
	locationresolver "geodialogue/internal/dialogue/location-resolver"
	parameterextractor "geodialogue/internal/dialogue/parameter-extractor"
	"geodialogue/internal/models"
	"geodialogue/internal/session"
	"geodialogue/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("redis: connection refused") }

// newTestAPI wires the full dialogue pipeline against an httptest engine.
func newTestAPI(t *testing.T, store Pinger) *httptest.Server {
	t.Helper()
	log := logger.NewTestLogger(t)
	reg := registry.Default()

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":{"flooded_km2":12.5}}`)
	}))
	t.Cleanup(engine.Close)

	records, err := locationresolver.LoadEmbedded()
	require.NoError(t, err)
	resolver := locationresolver.New(records, locationresolver.DefaultConfig(), log)

	dispatcher, err := analysisdispatcher.New(analysisdispatcher.Config{
		AttemptTimeout: 5 * time.Second,
		BackoffBase:    time.Millisecond,
	}, analysisdispatcher.NewHTTPEngine(engine.URL, ""), reg, nil, log)
	require.NoError(t, err)

	sessions := session.NewMemoryStore(30 * time.Minute)
	manager := dialoguemanager.New(dialoguemanager.DefaultConfig(), dialoguemanager.Deps{
		Registry:   reg,
		Classifier: intentclassifier.New(intentclassifier.DefaultConfig(), models.AllKinds(), nil, log),
		Extractor:  parameterextractor.New(reg, resolver, nil, log),
		Dispatcher: dispatcher,
		Store:      sessions,
		Logger:     log,
	})

	if store == nil {
		store = sessions
	}
	srv := New(config.ServerConfig{Address: ":0", WriteTimeout: 10000}, manager, store, reg, log)
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)
	return api
}

func postChat(t *testing.T, api *httptest.Server, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(api.URL+"/api/v1/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]interface{}{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return out
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ==========================
// Chat API Tests
// ==========================

func TestChat_CompleteRequest(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, body := postChat(t, api, `{"sessionId":"s1","utterance":"Show me sea level rise risk for Jakarta in 2020"}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["awaitingInput"])
	result, ok := body["analysisResult"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, map[string]interface{}{"flooded_km2": 12.5}, result["result"])
	assert.Contains(t, body["message"], "city Jakarta, year 2020")
}

func TestChat_SessionLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)

	resp, body := postChat(t, api, `{"sessionId":"s2","utterance":"urban development for Jakarta"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["awaitingInput"])
	assert.Equal(t, []interface{}{"year"}, body["missing"])

	resp = doRequest(t, http.MethodGet, api.URL+"/api/v1/sessions/s2")
	state := decode(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "urban_development", state["kind"])

	resp = doRequest(t, http.MethodDelete, api.URL+"/api/v1/sessions/s2")
	_ = decode(t, resp)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, api.URL+"/api/v1/sessions/s2")
	errBody := decode(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "SESSION_NOT_FOUND", errBody["error"].(map[string]interface{})["code"])
}

func TestChat_BadRequests(t *testing.T) {
	api := newTestAPI(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"sessionId":`},
		{"missing session", `{"utterance":"sea level rise"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postChat(t, api, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INVALID_REQUEST", body["error"].(map[string]interface{})["code"])
		})
	}
}

// ==========================
// Operational Endpoint Tests
// ==========================

func TestAnalyses(t *testing.T) {
	api := newTestAPI(t, nil)

	resp := doRequest(t, http.MethodGet, api.URL+"/api/v1/analyses")
	body := decode(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, registry.Version, body["version"])
	analyses, ok := body["analyses"].([]interface{})
	require.True(t, ok)
	require.Len(t, analyses, len(models.AllKinds()))
	first := analyses[0].(map[string]interface{})
	assert.Equal(t, "sea_level_rise", first["kind"])
	assert.NotEmpty(t, first["parameterSchema"])
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t, nil)

	resp := doRequest(t, http.MethodGet, api.URL+"/health")
	assert.Equal(t, "ok", decode(t, resp)["status"])

	resp = doRequest(t, http.MethodGet, api.URL+"/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", decode(t, resp)["status"])

	down := newTestAPI(t, failingPinger{})
	resp = doRequest(t, http.MethodGet, down.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", decode(t, resp)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	_, _ = postChat(t, api, `{"sessionId":"m1","utterance":"hello"}`)

	resp := doRequest(t, http.MethodGet, api.URL+"/metrics")
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "dialogue_turns_total")
}
