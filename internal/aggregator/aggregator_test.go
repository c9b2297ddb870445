// File: internal/aggregator/aggregator_test.go
package aggregator

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/internal/config"
)

// fakeAgent mimics the per-agent HTTP surface well enough for fan-out.
func fakeAgent(t *testing.T, name string, pheromones string, injected *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"` + name + `","name":"` + name + `","phaseTransitionOccurred":true,"synchronized":false}`))
	})
	mux.HandleFunc("GET /pheromones", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pheromones))
	})
	mux.HandleFunc("GET /thoughts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("POST /pheromone", func(w http.ResponseWriter, r *http.Request) {
		if injected != nil {
			injected.Add(1)
		}
		w.Write([]byte(`{"ok":true}`))
	})
	return httptest.NewServer(mux)
}

func newAggregator(t *testing.T, agentURLs []string) *httptest.Server {
	t.Helper()
	srv := New(config.AggregatorConfig{
		Port:      0,
		AgentURLs: agentURLs,
		Timeout:   2 * time.Second,
	}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestPheromones_MergedAndDeduplicated(t *testing.T) {
	agentA := fakeAgent(t, "a", `[{"id":"s1","strength":0.5},{"id":"shared","strength":0.6}]`, nil)
	defer agentA.Close()
	agentB := fakeAgent(t, "b", `[{"id":"s2","strength":0.4},{"id":"shared","strength":0.6}]`, nil)
	defer agentB.Close()

	ts := newAggregator(t, []string{agentA.URL, agentB.URL})

	resp, err := http.Get(ts.URL + "/api/pheromones")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var merged []map[string]any
	require.NoError(t, json.Unmarshal(body, &merged))

	// Three distinct ids survive from four entries.
	assert.Len(t, merged, 3)
	seen := map[string]int{}
	for _, item := range merged {
		seen[item["id"].(string)]++
	}
	assert.Equal(t, 1, seen["shared"])
}

func TestState_KeyedByAgentURL(t *testing.T) {
	agentA := fakeAgent(t, "a", `[]`, nil)
	defer agentA.Close()

	ts := newAggregator(t, []string{agentA.URL, "http://127.0.0.1:1"})

	var states map[string]map[string]any
	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))

	// Only the reachable agent appears.
	require.Len(t, states, 1)
	assert.Equal(t, "a", states[agentA.URL]["id"])
}

func TestReport_AggregatesCounters(t *testing.T) {
	agentA := fakeAgent(t, "a", `[]`, nil)
	defer agentA.Close()
	agentB := fakeAgent(t, "b", `[]`, nil)
	defer agentB.Close()

	ts := newAggregator(t, []string{agentA.URL, agentB.URL})

	var report map[string]any
	resp, err := http.Get(ts.URL + "/api/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))

	assert.Equal(t, float64(2), report["reachable"])
	assert.Equal(t, float64(2), report["transitioned"])
	assert.Equal(t, float64(0), report["synchronized"])
}

func TestInject_BroadcastsHumanSignal(t *testing.T) {
	var injectedA, injectedB atomic.Int32
	agentA := fakeAgent(t, "a", `[]`, &injectedA)
	defer agentA.Close()
	agentB := fakeAgent(t, "b", `[]`, &injectedB)
	defer agentB.Close()

	ts := newAggregator(t, []string{agentA.URL, agentB.URL})

	resp, err := http.Post(ts.URL+"/api/inject", "application/json",
		bytes.NewReader([]byte(`{"topic":"solar_flares","content":"watch the X-class event today"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	assert.Equal(t, true, result["ok"])
	assert.Equal(t, float64(2), result["delivered"])
	assert.NotEmpty(t, result["signalId"])
	assert.Equal(t, int32(1), injectedA.Load())
	assert.Equal(t, int32(1), injectedB.Load())
}

func TestInject_MalformedPayloadRejected(t *testing.T) {
	ts := newAggregator(t, nil)

	resp, err := http.Post(ts.URL+"/api/inject", "application/json",
		bytes.NewReader([]byte(`not json`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
