// Package rpc talks to the quoting server. Each call dials a fresh websocket,
// writes one request, reads one reply and closes the connection.
package rpc

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"poscalc/internal/logger"
)

// Caller is what the scheduler and assistant depend on.
type Caller interface {
	Call(ctx context.Context, action Action, params Params) Response
}

type Options struct {
	// CallTimeout bounds dial, write and read together; 0 means no bound.
	CallTimeout      time.Duration
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

type Client struct {
	url    string
	opts   Options
	dialer *websocket.Dialer
	log    *logger.Logger
}

// NewClient takes the endpoint already joined as "{address}:{port}".
func NewClient(endpoint string, opts Options) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("rpc endpoint %q: scheme must be ws or wss", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("rpc endpoint %q: missing host", endpoint)
	}
	return &Client{
		url:  endpoint,
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		log: logger.With("rpc"),
	}, nil
}

func (c *Client) URL() string {
	return c.url
}

// Call never returns a Go error: transport and protocol failures come back as
// an error Response carrying the cause.
func (c *Client) Call(ctx context.Context, action Action, params Params) Response {
	start := time.Now()
	resp, err := c.roundTrip(ctx, Request{Action: action, Params: params})
	callLatency.WithLabelValues(string(action)).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		callsTotal.WithLabelValues(string(action), outcomeTransport).Inc()
		c.log.Warnf("%s failed: %v", action, err)
		return ErrorResponse(err)
	}
	if resp.OK() {
		callsTotal.WithLabelValues(string(action), outcomeSuccess).Inc()
	} else {
		callsTotal.WithLabelValues(string(action), outcomeError).Inc()
		c.log.Debugf("%s returned error: %s", action, resp.Message)
	}
	return resp
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}
	payload, err := encodeRequest(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("connect %s: %w", c.url, err)
	}
	defer conn.Close()
	// Closing the conn is what unblocks a pending read once ctx ends, so
	// ctx.Err() is already set when the read fails.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", req.Action, ctxErr(ctx, err))
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return Response{}, fmt.Errorf("await %s reply: %w", req.Action, ctxErr(ctx, err))
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	resp, err := parseEnvelope(raw)
	if err != nil {
		return Response{}, err
	}
	if resp.OK() {
		if err := validateResult(req.Action, resp.Result); err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

// ctxErr prefers the context's reason over the net error it caused.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}
