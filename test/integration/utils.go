package integration

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbocsi/moodsync/app"
	"github.com/mbocsi/moodsync/config"
)

// ledDevice is an in-process stand-in for the LED firmware.
type ledDevice struct {
	mu      sync.Mutex
	lag     time.Duration
	levels  []string
	started chan struct{}
}

func newLEDDevice(t *testing.T, lag time.Duration) (*ledDevice, *httptest.Server) {
	t.Helper()
	d := &ledDevice{lag: lag, started: make(chan struct{}, 16)}
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return d, srv
}

func (d *ledDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/test":
		w.Write([]byte("OK"))
	case "/command":
		select {
		case d.started <- struct{}{}:
		default:
		}
		d.mu.Lock()
		lag := d.lag
		d.mu.Unlock()
		if lag > 0 {
			select {
			case <-time.After(lag):
			case <-r.Context().Done():
				return
			}
		}
		d.mu.Lock()
		d.levels = append(d.levels, r.URL.Query().Get("led"))
		d.mu.Unlock()
		w.Write([]byte("LED set"))
	default:
		http.NotFound(w, r)
	}
}

func (d *ledDevice) SetLag(lag time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lag = lag
}

func (d *ledDevice) Levels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.levels...)
}

type daemon struct {
	base string
	app  *app.App
}

// startDaemon runs the whole daemon on a random loopback port until the test ends.
func startDaemon(t *testing.T, endpoints ...config.EndpointConfig) *daemon {
	t.Helper()
	cfg := config.Default()
	cfg.Endpoints = endpoints

	a, err := app.New(app.Options{Cfg: cfg})
	if err != nil {
		t.Fatalf("Failed to build daemon: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.Serve(ctx, ln); err != nil {
			t.Errorf("Daemon failed: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &daemon{base: "http://" + ln.Addr().String(), app: a}
}

func pollEndpoint(name, addr string) config.EndpointConfig {
	return config.EndpointConfig{Name: name, Kind: "poll", Address: addr, ConnectTimeoutMS: 1000, SendTimeoutMS: 2000}
}

func (d *daemon) post(t *testing.T, path, body string, dst any) int {
	t.Helper()
	resp, err := http.Post(d.base+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if dst != nil {
		json.NewDecoder(resp.Body).Decode(dst)
	}
	return resp.StatusCode
}

func (d *daemon) get(t *testing.T, path string, dst any) int {
	t.Helper()
	resp, err := http.Get(d.base + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if dst != nil {
		json.NewDecoder(resp.Body).Decode(dst)
	}
	return resp.StatusCode
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
