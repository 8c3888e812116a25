package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbocsi/moodsync/proto"
)

// MockDevice imitates the ESP32 LED firmware.
type MockDevice struct {
	mu         sync.Mutex
	testBody   string
	status     int
	commandLag time.Duration
	commands   []string
}

func NewMockDevice() *MockDevice {
	return &MockDevice{testBody: "OK", status: http.StatusOK}
}

func (d *MockDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	body, status, lag := d.testBody, d.status, d.commandLag
	d.mu.Unlock()

	switch r.URL.Path {
	case "/test":
		w.Write([]byte(body))
	case "/command":
		if lag > 0 {
			select {
			case <-time.After(lag):
			case <-r.Context().Done():
				return
			}
		}
		d.mu.Lock()
		d.commands = append(d.commands, r.URL.RawQuery)
		d.mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte("LED set"))
	default:
		http.NotFound(w, r)
	}
}

func (d *MockDevice) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func pollRef(srv *httptest.Server) proto.EndpointRef {
	return proto.EndpointRef{Name: "esp32", Kind: proto.KindPoll, Address: strings.TrimPrefix(srv.URL, "http://")}
}

func TestPollTransport_ConnectAndSend(t *testing.T) {
	device := NewMockDevice()
	srv := httptest.NewServer(device)
	defer srv.Close()

	pt := NewPollTransport()
	ep := pollRef(srv)

	h, err := pt.Connect(context.Background(), ep)
	if err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}
	if h.Endpoint() != ep {
		t.Errorf("Expected handle endpoint %v, got %v", ep, h.Endpoint())
	}

	resp, err := pt.Send(context.Background(), h, proto.Encode(proto.NewMoodEvent("sad"), ep))
	if err != nil {
		t.Fatalf("Expected send to succeed, got %v", err)
	}
	if resp != "LED set" {
		t.Errorf("Expected device response 'LED set', got %q", resp)
	}

	commands := device.Commands()
	if len(commands) != 1 || commands[0] != "led=0.25" {
		t.Errorf("Expected [led=0.25], got %v", commands)
	}
}

func TestPollTransport_ConnectRejectsBadLiveness(t *testing.T) {
	device := NewMockDevice()
	device.testBody = "BUSY"
	srv := httptest.NewServer(device)
	defer srv.Close()

	_, err := NewPollTransport().Connect(context.Background(), pollRef(srv))
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Errorf("Expected ConnectError, got %v", err)
	}
}

func TestPollTransport_ConnectTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	pt := NewPollTransport()
	pt.ConnectTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := pt.Connect(context.Background(), pollRef(srv))
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected ConnectError, got %v", err)
	}
	if !IsTimeout(err) {
		t.Errorf("Expected a timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Expected connect to fail fast, took %v", time.Since(start))
	}
}

func TestPollTransport_DefaultConnectTimeout(t *testing.T) {
	if got := NewPollTransport().ConnectTimeout; got != 3*time.Second {
		t.Errorf("Expected 3s connect timeout, got %v", got)
	}
}

func TestPollTransport_SendTimeout(t *testing.T) {
	device := NewMockDevice()
	device.commandLag = 2 * time.Second
	srv := httptest.NewServer(device)
	defer srv.Close()

	pt := NewPollTransport()
	pt.SendTimeout = 50 * time.Millisecond
	ep := pollRef(srv)

	h, err := pt.Connect(context.Background(), ep)
	if err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}

	_, err = pt.Send(context.Background(), h, proto.Encode(proto.NewMoodEvent("happy"), ep))
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("Expected SendError, got %v", err)
	}
	if !IsTimeout(err) {
		t.Errorf("Expected a timeout, got %v", err)
	}
}

func TestPollTransport_SendHTTPError(t *testing.T) {
	device := NewMockDevice()
	device.status = http.StatusInternalServerError
	srv := httptest.NewServer(device)
	defer srv.Close()

	pt := NewPollTransport()
	ep := pollRef(srv)
	h, _ := pt.Connect(context.Background(), ep)

	_, err := pt.Send(context.Background(), h, proto.Encode(proto.NewMoodEvent("happy"), ep))
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Errorf("Expected SendError, got %v", err)
	}
}

func TestPollTransport_DisconnectAbortsInFlight(t *testing.T) {
	device := NewMockDevice()
	device.commandLag = 2 * time.Second
	srv := httptest.NewServer(device)
	defer srv.Close()

	pt := NewPollTransport()
	ep := pollRef(srv)
	h, err := pt.Connect(context.Background(), ep)
	if err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := pt.Send(context.Background(), h, proto.Encode(proto.NewMoodEvent("happy"), ep))
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	pt.Disconnect(h)

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected in-flight send to fail after disconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected disconnect to abort the in-flight send")
	}

	_, err = pt.Send(context.Background(), h, proto.Encode(proto.NewMoodEvent("happy"), ep))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestDeviceURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"192.168.4.1", "http://192.168.4.1", false},
		{"esp32.local:8080", "http://esp32.local:8080", false},
		{"http://10.0.0.2/led/", "http://10.0.0.2/led/", false},
		{"", "", true},
		{"ftp://10.0.0.2", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := deviceURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if u.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, u.String())
			}
		})
	}
}

func TestNew_SelectsVariantByKind(t *testing.T) {
	bt, err := New(proto.EndpointRef{Name: "b", Kind: proto.KindBroker}, Options{ClientIDPrefix: "Test_"})
	if err != nil {
		t.Fatalf("Expected broker transport, got %v", err)
	}
	if b, ok := bt.(*BrokerTransport); !ok || b.ClientIDPrefix != "Test_" {
		t.Errorf("Expected *BrokerTransport with prefix Test_, got %#v", bt)
	}

	pt, err := New(proto.EndpointRef{Name: "p", Kind: proto.KindPoll}, Options{SendTimeout: time.Second, Discover: true})
	if err != nil {
		t.Fatalf("Expected poll transport, got %v", err)
	}
	p, ok := pt.(*PollTransport)
	if !ok {
		t.Fatalf("Expected *PollTransport, got %T", pt)
	}
	if p.SendTimeout != time.Second || p.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Expected timeouts 3s/1s, got %v/%v", p.ConnectTimeout, p.SendTimeout)
	}
	if p.Discovery == nil || p.Discovery.Service != DefaultMDNSService {
		t.Error("Expected mDNS discovery with the default service")
	}

	if _, err := New(proto.EndpointRef{Name: "x", Kind: "carrier-pigeon"}, Options{}); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
