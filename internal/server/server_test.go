package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/service"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingTrigger struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingTrigger) RequestOptimization(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

// fakeMaster answers the requests the HTTP layer sends to the master actor.
func fakeMaster(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: true})
	case domain.SetAutomaticControlRequest:
		ctx.Respond(domain.SetAutomaticControlResponse{Enabled: msg.Enabled, Changed: true})
	case domain.ManualOverrideRequest:
		ctx.Respond(domain.ManualOverrideResponse{Action: msg.Action})
	}
}

type serverFixture struct {
	system  *actor.ActorSystem
	store   *service.PlanStore
	trigger *recordingTrigger
	hub     *Hub
	http    *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	as := actor.NewActorSystem()
	f := &serverFixture{
		system:  as,
		store:   service.NewPlanStore(),
		trigger: &recordingTrigger{},
	}
	f.hub = NewHub(f.store, zap.NewNop())
	f.hub.Subscribe(as.EventStream)
	s := &Server{
		rootContext: as.Root,
		masterActor: as.Root.Spawn(actor.PropsFromFunc(fakeMaster)),
		telemetry:   f.store,
		trigger:     f.trigger,
		hub:         f.hub,
		logger:      zap.NewNop(),
	}
	f.http = httptest.NewServer(s.RegisterRoutes())
	t.Cleanup(func() {
		f.http.Close()
		f.hub.Close()
		as.Shutdown()
	})
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealthCheck(t *testing.T) {

	f := newServerFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTelemetryAndPlan(t *testing.T) {

	f := newServerFixture(t)
	f.store.PublishState(domain.InitialExecutionState(true), time.Now())

	resp, body := f.do(t, http.MethodGet, "/api/telemetry", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["status"])
	assert.Equal(t, true, body["automaticControl"])

	resp, _ = f.do(t, http.MethodGet, "/api/plan", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOptimize(t *testing.T) {

	f := newServerFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/optimize", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"http"}, f.trigger.reasons)
}

func TestAutomaticControl(t *testing.T) {

	f := newServerFixture(t)

	resp, body := f.do(t, http.MethodPut, "/api/automatic-control", `{"enabled": false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["enabled"])

	resp, _ = f.do(t, http.MethodPut, "/api/automatic-control", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOverride(t *testing.T) {

	f := newServerFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/override", `{"mode": "charge"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "charge", body["mode"])

	resp, body = f.do(t, http.MethodPost, "/api/override", `{"mode": "stop"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["mode"])

	resp, _ = f.do(t, http.MethodPost, "/api/override", `{"mode": "boost"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketTelemetry(t *testing.T) {

	f := newServerFixture(t)
	f.store.PublishState(domain.InitialExecutionState(false), time.Now())

	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var telemetry map[string]any
		require.NoError(t, json.Unmarshal(msg, &telemetry))
		return telemetry
	}

	// current snapshot first
	assert.Equal(t, false, read()["automaticControl"])

	assert.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	state := domain.InitialExecutionState(true)
	state.Status = domain.StatusOptimizing
	f.system.EventStream.Publish(domain.TelemetryUpdatedEvent{Telemetry: f.store.PublishState(state, time.Now())})

	update := read()
	assert.Equal(t, true, update["automaticControl"])
	assert.Equal(t, "optimizing", update["status"])
}
