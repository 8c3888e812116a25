package transport

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/mbocsi/moodsync/proto"
)

func TestDiscovery_ResolveFirstEntry(t *testing.T) {
	d := NewDiscovery("", time.Second)
	d.query = func(p *mdns.QueryParam) error {
		if p.Service != DefaultMDNSService {
			t.Errorf("Expected service %s, got %s", DefaultMDNSService, p.Service)
		}
		p.Entries <- &mdns.ServiceEntry{Name: "no-address"}
		p.Entries <- &mdns.ServiceEntry{Name: "esp32", AddrV4: net.ParseIP("192.168.4.1"), Port: 80}
		p.Entries <- &mdns.ServiceEntry{Name: "other", AddrV4: net.ParseIP("192.168.4.2"), Port: 80}
		return nil
	}

	addr, err := d.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Expected device to be found, got %v", err)
	}
	if addr != "192.168.4.1:80" {
		t.Errorf("Expected 192.168.4.1:80, got %s", addr)
	}
}

func TestDiscovery_NothingFound(t *testing.T) {
	d := NewDiscovery("_custom._tcp", time.Second)
	d.query = func(p *mdns.QueryParam) error { return errors.New("no multicast interface") }

	_, err := d.Resolve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "_custom._tcp") {
		t.Errorf("Expected not-found error naming the service, got %v", err)
	}
}

func TestDiscovery_ContextCancel(t *testing.T) {
	d := NewDiscovery("", time.Second)
	release := make(chan struct{})
	d.query = func(p *mdns.QueryParam) error {
		<-release
		return nil
	}
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := d.Resolve(ctx); !IsTimeout(err) {
		t.Errorf("Expected timeout, got %v", err)
	}
}

func TestPollTransport_ConnectViaDiscovery(t *testing.T) {
	srv := httptest.NewServer(NewMockDevice())
	defer srv.Close()

	host, port, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	portNum, _ := strconv.Atoi(port)

	pt := NewPollTransport()
	pt.Discovery = NewDiscovery("", time.Second)
	pt.Discovery.query = func(p *mdns.QueryParam) error {
		p.Entries <- &mdns.ServiceEntry{Name: "esp32", AddrV4: net.ParseIP(host), Port: portNum}
		return nil
	}

	ep := proto.EndpointRef{Name: "esp32", Kind: proto.KindPoll}
	h, err := pt.Connect(context.Background(), ep)
	if err != nil {
		t.Fatalf("Expected connect via discovery, got %v", err)
	}
	if h.Endpoint().Address != "" {
		t.Error("Expected endpoint ref to stay unmodified")
	}
}
