package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/app"
	"github.com/ternarybob/portico/internal/common"
	"github.com/ternarybob/portico/internal/models"
)

// fakeScript answers the store actions the desk uses, keyed by action name.
type fakeScript struct {
	mu      sync.Mutex
	status  string
	actions []string
}

func (f *fakeScript) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	action := r.Form.Get("action")

	f.mu.Lock()
	f.actions = append(f.actions, action)
	if action == "updateState" {
		f.status = r.PostForm.Get("newState")
	}
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch action {
	case "read":
		rows := []map[string]interface{}{
			{"name": "Ana Pérez", "course": "3A", "reason": "Médico", "status": status, "timestamp": 1000, "exitTime": ""},
			{"name": "Luis Soto", "course": "1B", "reason": "Familiar", "status": "AVISADO", "timestamp": 500, "exitTime": "09:10"},
		}
		_ = json.NewEncoder(w).Encode(rows)
	case "checkNotifications":
		io.WriteString(w, `{"hasNew":false,"notifications":[]}`)
	case "getRanking":
		io.WriteString(w, `{"rankingCompleto":[["1B",3],["3A",1]]}`)
	case "getMonthlyStats":
		io.WriteString(w, `{"meses":["Mar"],"valores":[4]}`)
	case "getUsuarios":
		io.WriteString(w, `[{"nombre":"María","cargo":"Inspectora"}]`)
	default:
		io.WriteString(w, `{"success":true}`)
	}
}

func (f *fakeScript) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.actions {
		if a == action {
			n++
		}
	}
	return n
}

func newTestServer(t *testing.T) (*httptest.Server, *app.App, *fakeScript) {
	t.Helper()

	script := &fakeScript{status: "ESPERA"}
	storeServer := httptest.NewServer(script)
	t.Cleanup(storeServer.Close)

	config := common.NewDefaultConfig()
	config.Store.URL = storeServer.URL
	config.Store.MinInterval = "0s"
	config.Storage.Badger.Path = t.TempDir()
	config.Desk.Timezone = "UTC"
	config.WebSocket.StateThrottle = "10ms"
	require.NoError(t, config.Validate())

	application, err := app.New(config, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	require.NoError(t, application.Start())
	require.Eventually(t, func() bool {
		return len(application.State.Snapshot().Active) == 1
	}, 3*time.Second, 20*time.Millisecond)

	srv := httptest.NewServer(New(application).Handler())
	t.Cleanup(srv.Close)
	return srv, application, script
}

func request(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestServer_DeskFlow(t *testing.T) {
	srv, application, script := newTestServer(t)

	resp, body := request(t, http.MethodGet, srv.URL+"/api/desk", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view models.DeskView
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	require.Len(t, view.Active, 1)
	assert.Equal(t, 1, view.HistoryTotal)
	assert.Nil(t, view.Operator)

	// Mutations are refused until an operator is selected
	resp, _ = request(t, http.MethodPost, srv.URL+"/api/withdrawals/1000/advance", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, script.count("updateState"))

	resp, _ = request(t, http.MethodPut, srv.URL+"/api/session/operator", `{"nombre":"María","cargo":"Inspectora"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = request(t, http.MethodPost, srv.URL+"/api/withdrawals/1000/advance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, 1, script.count("updateState"))

	require.Eventually(t, func() bool {
		active := application.State.Snapshot().Active
		return len(active) == 1 && active[0].Status == models.StatusSearching
	}, 2*time.Second, 20*time.Millisecond)

	resp, body = request(t, http.MethodGet, srv.URL+"/api/desk", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	require.NotNil(t, view.Operator)
	assert.Equal(t, "María", view.Operator.Name)
}

func TestServer_SystemRoutes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, body := request(t, http.MethodGet, srv.URL+"/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	// The run counter is recorded after the state is applied
	require.Eventually(t, func() bool {
		resp, body = request(t, http.MethodGet, srv.URL+"/metrics", "")
		return resp.StatusCode == http.StatusOK &&
			strings.Contains(body, `portico_task_runs_total{result="changed",task="sync"}`)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, "portico_active 1")

	resp, _ = request(t, http.MethodPost, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body = request(t, http.MethodGet, srv.URL+"/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "/api/nope")

	resp, _ = request(t, http.MethodOptions, srv.URL+"/api/desk", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_RankingAndStats(t *testing.T) {
	srv, application, _ := newTestServer(t)

	require.Eventually(t, func() bool {
		return len(application.Ranking.Current().Entries) == 2
	}, 3*time.Second, 20*time.Millisecond)

	resp, body := request(t, http.MethodGet, srv.URL+"/api/ranking?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ranking models.Ranking
	require.NoError(t, json.Unmarshal([]byte(body), &ranking))
	assert.Equal(t, []models.CourseCount{{Label: "1B", Count: 3}}, ranking.Entries)

	resp, body = request(t, http.MethodGet, srv.URL+"/api/stats/monthly", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"meses":["Mar"],"valores":[4]}`, body)

	resp, body = request(t, http.MethodPost, srv.URL+"/api/sync/pause", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	resp, _ = request(t, http.MethodPost, srv.URL+"/api/sync/now", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, body = request(t, http.MethodGet, srv.URL+"/api/sync/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"paused":true`)
}
