package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbocsi/moodsync/proto"
)

// PollTransport drives a device directly over HTTP: GET /test as a liveness
// probe and GET /command?<payload> per command.
type PollTransport struct {
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	Client         *http.Client
	Discovery      *Discovery // used when the endpoint has no address
}

type pollHandle struct {
	ep   proto.EndpointRef
	base *url.URL

	// ctx is cancelled by Disconnect and aborts any request in flight.
	ctx    context.Context
	cancel context.CancelFunc
}

func (h *pollHandle) Endpoint() proto.EndpointRef { return h.ep }

func NewPollTransport() *PollTransport {
	return &PollTransport{
		ConnectTimeout: DefaultConnectTimeout,
		SendTimeout:    DefaultSendTimeout,
		Client:         &http.Client{},
	}
}

func (t *PollTransport) Kind() proto.EndpointKind { return proto.KindPoll }

func (t *PollTransport) Connect(ctx context.Context, ep proto.EndpointRef) (Handle, error) {
	addr := ep.Address
	if addr == "" && t.Discovery != nil {
		found, err := t.Discovery.Resolve(ctx)
		if err != nil {
			return nil, &ConnectError{Endpoint: ep.Name, Err: err}
		}
		addr = found
	}

	base, err := deviceURL(addr)
	if err != nil {
		return nil, &ConnectError{Endpoint: ep.Name, Err: err}
	}

	probeCtx, cancel := context.WithTimeout(ctx, t.ConnectTimeout)
	defer cancel()

	slog.Info("Probing device", "endpoint", ep.Name, "url", base.String())
	status, body, err := t.get(probeCtx, base.JoinPath("test"))
	if err != nil {
		return nil, &ConnectError{Endpoint: ep.Name, Err: err}
	}
	if status != http.StatusOK || body != "OK" {
		return nil, &ConnectError{Endpoint: ep.Name, Err: fmt.Errorf("unexpected liveness response %d %q", status, body)}
	}

	hctx, hcancel := context.WithCancel(context.Background())
	return &pollHandle{ep: ep, base: base, ctx: hctx, cancel: hcancel}, nil
}

func (t *PollTransport) Send(ctx context.Context, h Handle, cmd proto.Command) (string, error) {
	ph, ok := h.(*pollHandle)
	if !ok || ph == nil || ph.ctx.Err() != nil {
		return "", &SendError{Endpoint: cmd.Target.Name, CommandID: cmd.ID, Err: ErrNotConnected}
	}

	ctx, cancel := context.WithTimeout(ctx, t.SendTimeout)
	defer cancel()
	stop := context.AfterFunc(ph.ctx, cancel)
	defer stop()

	u := ph.base.JoinPath("command")
	u.RawQuery = cmd.Payload

	status, body, err := t.get(ctx, u)
	if err != nil {
		return "", &SendError{Endpoint: ph.ep.Name, CommandID: cmd.ID, Err: err}
	}
	if status >= http.StatusBadRequest {
		return "", &SendError{Endpoint: ph.ep.Name, CommandID: cmd.ID, Err: fmt.Errorf("device responded %d: %s", status, body)}
	}

	slog.Debug("Device command accepted", "endpoint", ph.ep.Name, "query", u.RawQuery, "status", status)
	return body, nil
}

func (t *PollTransport) Disconnect(h Handle) error {
	ph, ok := h.(*pollHandle)
	if !ok || ph == nil {
		return nil
	}
	ph.cancel()
	return nil
}

func (t *PollTransport) get(ctx context.Context, u *url.URL) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(b)), nil
}

// deviceURL accepts "192.168.4.1", "host:port" or a full http URL.
func deviceURL(addr string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid device address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("device address %q has no host", addr)
	}
	u.RawQuery = ""
	return u, nil
}
