package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/portico/internal/models"
)

type recordedRequest struct {
	Method string
	Action string
	Query  map[string]string
	Form   map[string]string
}

type fakeScript struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  map[string]string
	status   int
}

func (f *fakeScript) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	rec := recordedRequest{Method: r.Method, Query: map[string]string{}, Form: map[string]string{}}
	for k := range r.URL.Query() {
		rec.Query[k] = r.URL.Query().Get(k)
	}
	for k := range r.PostForm {
		rec.Form[k] = r.PostForm.Get(k)
	}
	rec.Action = r.FormValue("action")

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	status := f.status
	reply := f.replies[rec.Action]
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(reply))
}

func (f *fakeScript) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, script *fakeScript) *StoreClient {
	t.Helper()
	server := httptest.NewServer(script)
	t.Cleanup(server.Close)
	return NewStoreClient(server.URL+"/exec", arbor.NewLogger(), WithMinInterval(0, 1), WithTimeout(2*time.Second))
}

func TestStoreClient_ReadReturnsRawPayload(t *testing.T) {
	payload := `[{"name":"Ana Pérez","course":"3A","reason":"Médico","status":"ESPERA","timestamp":1700000000000}]`
	script := &fakeScript{replies: map[string]string{"read": payload}}
	client := newTestClient(t, script)

	raw, err := client.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, string(raw))
	assert.Equal(t, http.MethodGet, script.last().Method)
	assert.Equal(t, "read", script.last().Query["action"])
}

func TestStoreClient_CheckNotifications(t *testing.T) {
	script := &fakeScript{replies: map[string]string{
		"checkNotifications": `{"hasNew":true,"notifications":[
			{"type":"new","name":"Ana","course":"3A","reason":"Médico","timestamp":1700000000000},
			{"type":"completed","name":"Luis","course":"2B","reason":"Dentista","timestamp":"1700000005000","exitTime":" 10:45 "},
			{"type":"other","name":"X","timestamp":1}
		]}`,
	}}
	client := newTestClient(t, script)

	batch, err := client.CheckNotifications(context.Background(), 1699999999000)
	require.NoError(t, err)

	assert.Equal(t, "1699999999000", script.last().Query["lastCheck"])
	assert.True(t, batch.HasNew)
	require.Len(t, batch.Items, 2)
	assert.Equal(t, models.NotificationCreated, batch.Items[0].Kind)
	assert.Equal(t, int64(1700000000000), batch.Items[0].Timestamp)
	assert.Equal(t, models.NotificationCompleted, batch.Items[1].Kind)
	assert.Equal(t, int64(1700000005000), batch.Items[1].Timestamp)
	assert.Equal(t, "10:45", batch.Items[1].ExitTime)
}

func TestStoreClient_RankingAndMonthlyStats(t *testing.T) {
	script := &fakeScript{replies: map[string]string{
		"getRanking":      `{"rankingCompleto":[["3A",12],["1B",7],["bad"]]}`,
		"getMonthlyStats": `{"meses":["2024-01","2024-02"],"valores":[10,14]}`,
		"getUsuarios":     `[{"nombre":"María","cargo":"Inspectora"}]`,
	}}
	client := newTestClient(t, script)
	ctx := context.Background()

	ranking, err := client.GetRanking(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CourseCount{{Label: "3A", Count: 12}, {Label: "1B", Count: 7}}, ranking)

	stats, err := client.GetMonthlyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01", "2024-02"}, stats.Months)
	assert.Equal(t, []float64{10, 14}, stats.Values)

	users, err := client.GetUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Operator{{Name: "María", Role: "Inspectora"}}, users)
}

func TestStoreClient_MonthlyStatsMisaligned(t *testing.T) {
	script := &fakeScript{replies: map[string]string{
		"getMonthlyStats": `{"meses":["2024-01"],"valores":[10,14]}`,
	}}
	client := newTestClient(t, script)

	_, err := client.GetMonthlyStats(context.Background())
	assert.True(t, errors.Is(err, models.ErrMalformedSnapshot))
}

func TestStoreClient_MutationsPostForm(t *testing.T) {
	script := &fakeScript{replies: map[string]string{
		"add":         `{"success":true}`,
		"updateState": `{"success":true}`,
		"finish":      `{"success":true}`,
		"delete":      `{"success":true}`,
		"saveUser":    `ok`,
	}}
	client := newTestClient(t, script)
	ctx := context.Background()

	require.NoError(t, client.Add(ctx, models.Withdrawal{
		Name: "Ana Pérez", Course: "3A", Reason: "Médico",
		Status: models.StatusWaiting, CreatedAt: 1700000000000, Responsible: "María",
	}))
	add := script.last()
	assert.Equal(t, http.MethodPost, add.Method)
	assert.Equal(t, map[string]string{
		"action": "add", "name": "Ana Pérez", "course": "3A", "reason": "Médico",
		"status": "ESPERA", "timestamp": "1700000000000", "responsable": "María",
	}, add.Form)

	require.NoError(t, client.UpdateState(ctx, 1700000000000, models.StatusSearching, ""))
	assert.Equal(t, map[string]string{
		"action": "updateState", "timestamp": "1700000000000", "newState": "EN BUSCA", "responsable": "Sistema",
	}, script.last().Form)

	require.NoError(t, client.Finish(ctx, 1700000000000, "10:45", "María"))
	assert.Equal(t, "10:45", script.last().Form["exitTime"])

	require.NoError(t, client.Delete(ctx, 1700000000000))
	assert.Equal(t, map[string]string{"action": "delete", "timestamp": "1700000000000"}, script.last().Form)

	require.NoError(t, client.SaveUser(ctx, models.Operator{Name: "Pedro", Role: "Portero"}))
	assert.Equal(t, "Pedro", script.last().Form["nombre"])
	assert.Equal(t, "Portero", script.last().Form["cargo"])
}

func TestStoreClient_RemoteRejection(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		message string
	}{
		{name: "explicit failure", reply: `{"success":false,"message":"Registro no encontrado"}`, message: "Registro no encontrado"},
		{name: "missing success", reply: `{}`, message: ""},
		{name: "error field", reply: `{"success":false,"error":"quota"}`, message: "quota"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script := &fakeScript{replies: map[string]string{"finish": tt.reply}}
			client := newTestClient(t, script)

			err := client.Finish(context.Background(), 1, "10:00", "María")
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrRemoteRejected))
			assert.Equal(t, tt.message, models.RemoteMessage(err))
		})
	}
}

func TestStoreClient_NetworkFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, &fakeScript{status: http.StatusInternalServerError})
		_, err := client.Read(context.Background())
		assert.True(t, errors.Is(err, models.ErrNetworkFailure))
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		client := NewStoreClient(url, arbor.NewLogger(), WithMinInterval(0, 1))
		err := client.Delete(context.Background(), 1)
		assert.True(t, errors.Is(err, models.ErrNetworkFailure))
	})

	t.Run("timeout", func(t *testing.T) {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		t.Cleanup(slow.Close)

		client := NewStoreClient(slow.URL, arbor.NewLogger(), WithMinInterval(0, 1), WithTimeout(50*time.Millisecond))
		_, err := client.Read(context.Background())
		assert.True(t, errors.Is(err, models.ErrNetworkFailure))
	})
}
