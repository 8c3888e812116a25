package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

const DefaultMDNSService = "_moodsync-led._tcp"

// Discovery finds an LED device on the local network over mDNS.
type Discovery struct {
	Service string
	Timeout time.Duration

	query func(*mdns.QueryParam) error
}

func NewDiscovery(service string, timeout time.Duration) *Discovery {
	if service == "" {
		service = DefaultMDNSService
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Discovery{Service: service, Timeout: timeout, query: mdns.Query}
}

// Resolve returns host:port of the first device that answers.
func (d *Discovery) Resolve(ctx context.Context) (string, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 4)

	params := mdns.DefaultParams(d.Service)
	params.Entries = entriesCh
	params.Timeout = d.Timeout
	params.DisableIPv6 = true

	go func() {
		defer close(entriesCh)
		if err := d.query(params); err != nil {
			slog.Warn("mDNS query failed", "service", d.Service, "error", err)
		}
	}()
	// Keep the query goroutine from blocking once we return.
	defer func() {
		go func() {
			for range entriesCh {
			}
		}()
	}()

	for {
		select {
		case entry, ok := <-entriesCh:
			if !ok {
				return "", fmt.Errorf("no %s device found", d.Service)
			}
			addr := entryAddr(entry)
			if addr == "" {
				continue
			}
			slog.Info("Discovered LED device", "service_name", entry.Name, "address", addr)
			return addr, nil
		case <-ctx.Done():
			return "", fmt.Errorf("mDNS discovery for %s: %w", d.Service, ctx.Err())
		}
	}
}

func entryAddr(entry *mdns.ServiceEntry) string {
	if entry == nil {
		return ""
	}
	var ip net.IP
	switch {
	case entry.AddrV4 != nil:
		ip = entry.AddrV4
	case entry.AddrV6 != nil:
		ip = entry.AddrV6
	default:
		return ""
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
}
