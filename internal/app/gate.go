package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"poscalc/internal/logger"
	"poscalc/internal/store/endpoint"
	assisthttp "poscalc/internal/transport/http/assist"
)

// EndpointStore is the persisted endpoint the gate reads and writes.
type EndpointStore interface {
	Load(ctx context.Context) (endpoint.Endpoint, error)
	Save(ctx context.Context, address, port string) (endpoint.Endpoint, error)
}

// Gate holds the session back until a server endpoint exists and announces
// every later change so the session can redial.
type Gate struct {
	store   EndpointStore
	changed chan endpoint.Endpoint
	active  atomic.Pointer[Session]

	mu sync.Mutex // serializes announcements on changed
}

func NewGate(store EndpointStore) *Gate {
	return &Gate{store: store, changed: make(chan endpoint.Endpoint, 1)}
}

func (g *Gate) Current(ctx context.Context) (endpoint.Endpoint, error) {
	return g.store.Load(ctx)
}

// Configure saves the endpoint. An empty field is rejected with
// endpoint.ErrIncomplete and a non-websocket address with endpoint.ErrInvalid;
// nothing is stored in either case.
func (g *Gate) Configure(ctx context.Context, address, port string) (endpoint.Endpoint, error) {
	ep, err := g.store.Save(ctx, address, port)
	if err != nil {
		return endpoint.Endpoint{}, err
	}
	g.announce(ep)
	return ep, nil
}

// announce replaces any pending change with ep and never blocks.
func (g *Gate) announce(ep endpoint.Endpoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.changed:
	default:
	}
	select {
	case g.changed <- ep:
	default:
	}
}

// Wait returns the stored endpoint, blocking until one is configured.
func (g *Gate) Wait(ctx context.Context) (endpoint.Endpoint, error) {
	ep, err := g.store.Load(ctx)
	if err == nil {
		return ep, nil
	}
	if !errors.Is(err, endpoint.ErrNotConfigured) {
		return endpoint.Endpoint{}, err
	}
	logger.Infof("no server endpoint yet, defaults are %s:%s", endpoint.DefaultAddress, endpoint.DefaultPort)
	select {
	case ep := <-g.changed:
		return ep, nil
	case <-ctx.Done():
		return endpoint.Endpoint{}, ctx.Err()
	}
}

// Changed fires when an endpoint is saved after Wait returned.
func (g *Gate) Changed() <-chan endpoint.Endpoint {
	return g.changed
}

// Assistant is the running session, or nil.
func (g *Gate) Assistant() assisthttp.Assistant {
	if s := g.active.Load(); s != nil {
		return s.Controller()
	}
	return nil
}

func (g *Gate) activate(s *Session) {
	g.active.Store(s)
}
