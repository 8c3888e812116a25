package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/moodsync/lifecycle"
	"github.com/mbocsi/moodsync/proto"
	"github.com/mbocsi/moodsync/services"
)

type MockDelivery struct {
	mu       sync.Mutex
	requests []services.MoodRequest
	err      error
	outcomes []proto.DeliveryOutcome
}

func (m *MockDelivery) NotifyMood(req services.MoodRequest) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return []string{"cmd-1"}, nil
}

func (m *MockDelivery) Moods() []proto.MoodInfo { return proto.Moods() }

func (m *MockDelivery) set(err error, outcomes []proto.DeliveryOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err, m.outcomes = err, outcomes
}

func (m *MockDelivery) lastRequest() services.MoodRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func (m *MockDelivery) RecentOutcomes(n int) []proto.DeliveryOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 && n < len(m.outcomes) {
		return m.outcomes[:n]
	}
	return m.outcomes
}

type MockEndpoints struct {
	mu         sync.Mutex
	infos      map[string]*services.EndpointInfo
	connectErr error
	connected  []string
}

func (m *MockEndpoints) ListEndpoints() ([]services.EndpointInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []services.EndpointInfo{}
	for _, info := range m.infos {
		out = append(out, *info)
	}
	return out, nil
}

func (m *MockEndpoints) GetEndpoint(name string) (*services.EndpointInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.infos[name]
	if !ok {
		return nil, services.ServiceError{Code: services.ErrCodeNotFound, Message: "Endpoint not found: " + name}
	}
	cp := *info
	return &cp, nil
}

func (m *MockEndpoints) failConnects(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

func (m *MockEndpoints) Connect(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[name]; !ok {
		return services.ServiceError{Code: services.ErrCodeNotFound, Message: "Endpoint not found: " + name}
	}
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = append(m.connected, name)
	m.infos[name].Status.State = lifecycle.Connected
	return nil
}

func (m *MockEndpoints) Disconnect(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[name]; !ok {
		return services.ServiceError{Code: services.ErrCodeNotFound, Message: "Endpoint not found: " + name}
	}
	m.infos[name].Status.State = lifecycle.Disconnected
	return nil
}

type MockEvents struct {
	mu   sync.Mutex
	subs []func(services.Event)
}

func (m *MockEvents) Subscribe(fn func(services.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
	return func() {}
}

func (m *MockEvents) Publish(ev services.Event) {
	m.mu.Lock()
	subs := slices.Clone(m.subs)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (m *MockEvents) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

type fixture struct {
	delivery  *MockDelivery
	endpoints *MockEndpoints
	events    *MockEvents
	srv       *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		delivery: &MockDelivery{},
		endpoints: &MockEndpoints{infos: map[string]*services.EndpointInfo{
			"esp32": {Ref: proto.EndpointRef{Name: "esp32", Kind: proto.KindPoll, Address: "192.168.4.1"}},
		}},
		events: &MockEvents{},
	}
	s := NewServer(&services.ServiceContainer{Delivery: f.delivery, Endpoint: f.endpoints, Events: f.events})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	f.srv = httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		cancel()
		f.srv.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("Expected 200 ok, got %d %s", resp.StatusCode, body)
	}
}

func TestHandleMoods(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/moods", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var moods []proto.MoodInfo
	if err := json.Unmarshal(body, &moods); err != nil {
		t.Fatalf("Expected mood list, got %v", err)
	}
	if len(moods) != 10 || moods[0].Name != proto.MoodHappy {
		t.Errorf("Expected 10 moods starting with happy, got %+v", moods)
	}
}

func TestHandleNotifyMood(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/moods", `{"mood":"happy","intensity":0.4,"endpoint":"esp32"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "cmd-1") {
		t.Errorf("Expected command id in body, got %s", body)
	}

	req := f.delivery.lastRequest()
	if req.Mood != "happy" || req.Endpoint != "esp32" || req.Intensity == nil || *req.Intensity != 0.4 {
		t.Errorf("Expected decoded request, got %+v", req)
	}
}

func TestHandleNotifyMood_Errors(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/moods", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad body, got %d", resp.StatusCode)
	}

	f.delivery.set(services.ServiceError{Code: services.ErrCodeUnavailable, Message: "Delivery is shutting down"}, nil)
	resp, body := f.do(t, http.MethodPost, "/api/moods", `{"mood":"sad"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
	var svcErr services.ServiceError
	if err := json.Unmarshal(body, &svcErr); err != nil || svcErr.Code != services.ErrCodeUnavailable {
		t.Errorf("Expected UNAVAILABLE body, got %s", body)
	}
}

func TestHandleEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/endpoints", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "esp32") {
		t.Errorf("Expected endpoint list, got %d %s", resp.StatusCode, body)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/endpoints/lamp", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleConnectDisconnect(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/endpoints/esp32/connect", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d %s", resp.StatusCode, body)
	}
	var info services.EndpointInfo
	if err := json.Unmarshal(body, &info); err != nil || info.Status.State != lifecycle.Connected {
		t.Errorf("Expected connected endpoint, got %s", body)
	}

	resp, body = f.do(t, http.MethodPost, "/api/endpoints/esp32/disconnect", "")
	if err := json.Unmarshal(body, &info); err != nil || resp.StatusCode != http.StatusOK || info.Status.State != lifecycle.Disconnected {
		t.Errorf("Expected disconnected endpoint, got %d %s", resp.StatusCode, body)
	}

	f.endpoints.failConnects(services.ServiceError{Code: services.ErrCodeTimeout, Message: "Connect to esp32 timed out"})
	resp, _ = f.do(t, http.MethodPost, "/api/endpoints/esp32/connect", "")
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %d", resp.StatusCode)
	}
}

func TestHandleOutcomes(t *testing.T) {
	f := newFixture(t)
	f.delivery.set(nil, []proto.DeliveryOutcome{
		proto.Succeeded(proto.Command{ID: "b"}, "OK"),
		proto.Succeeded(proto.Command{ID: "a"}, "OK"),
	})

	resp, body := f.do(t, http.MethodGet, "/api/outcomes?limit=1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var outcomes []proto.DeliveryOutcome
	json.Unmarshal(body, &outcomes)
	if len(outcomes) != 1 || outcomes[0].Command.ID != "b" {
		t.Errorf("Expected newest outcome only, got %+v", outcomes)
	}

	resp, _ = f.do(t, http.MethodGet, "/api/outcomes?limit=-3", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", resp.StatusCode)
	}
}

func TestWebsocketEvents(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	change := lifecycle.StateChange{Endpoint: "esp32", From: lifecycle.Connecting, To: lifecycle.Connected, At: time.Now()}

	// Registration and broadcast race inside the hub, so redial until an
	// event published after the dial arrives.
	deadline := time.Now().Add(3 * time.Second)
	var ev services.Event
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("Expected websocket dial to succeed, got %v", err)
		}
		f.events.Publish(services.Event{Type: services.EventState, State: &change})
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		err = conn.ReadJSON(&ev)
		conn.Close()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for websocket event: %v", err)
		}
	}

	if ev.Type != services.EventState || ev.State == nil || ev.State.To != lifecycle.Connected {
		t.Errorf("Expected connected state event, got %+v", ev)
	}
	if f.events.Subscribers() != 1 {
		t.Errorf("Expected the server to subscribe once, got %d", f.events.Subscribers())
	}
}
