package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"poscalc/internal/assistant"
	"poscalc/internal/config"
	"poscalc/internal/logger"
	"poscalc/internal/session"
	"poscalc/internal/store/endpoint"
	"poscalc/internal/store/journal"
	assisthttp "poscalc/internal/transport/http/assist"
)

// App owns the process lifetime: stores, the HTTP surface, and one session
// per configured endpoint.
type App struct {
	cfg       *config.Config
	endpoints *endpoint.Store
	journal   *journal.Store
	gate      *Gate
	store     *session.Store
	http      *assisthttp.Server
	dial      CallerFactory
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Gate exposes the endpoint gate (for tests and embedding).
func (a *App) Gate() *Gate {
	if a == nil {
		return nil
	}
	return a.gate
}

// Run serves HTTP and keeps a session running against the newest endpoint
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()
	logger.InfoBlock(startupSummary(a.cfg))
	a.store.Start()
	defer a.store.Stop()

	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("assist http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		return a.runSessions(ctx)
	})
	return group.Wait()
}

// runSessions waits for an endpoint, runs a session against it and starts a
// fresh one whenever the endpoint is saved again.
func (a *App) runSessions(ctx context.Context) error {
	ep, err := a.gate.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	for {
		sess, err := buildSession(a.cfg, ep, a.store, a.journal, a.dial)
		if err != nil {
			// Stay up on a bad endpoint until the next save.
			logger.Errorf("session against %s not started: %v", ep.URL(), err)
			if alertErr := a.store.Alert(assistant.AlertTitle, fmt.Sprintf("Error: %v", err)); alertErr != nil {
				logger.Warnf("alert dropped (%v)", alertErr)
			}
			if ep, err = a.awaitOther(ctx, ep); err != nil {
				return nil
			}
			continue
		}
		a.gate.activate(sess)
		next, restart, runErr := a.supervise(ctx, sess)
		a.gate.activate(nil)
		if !restart {
			if ctx.Err() != nil {
				return nil
			}
			return runErr
		}
		if runErr != nil {
			logger.Warnf("session against %s ended: %v", ep.URL(), runErr)
		}
		logger.Infof("server endpoint changed to %s, restarting session", next.URL())
		ep = next
	}
}

// supervise runs sess until ctx ends, the session stops by itself, or a
// different endpoint is saved. restart is true only in the last case.
func (a *App) supervise(ctx context.Context, sess *Session) (next endpoint.Endpoint, restart bool, runErr error) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Run(sessCtx) }()

	for {
		select {
		case ep := <-a.gate.Changed():
			if ep.ID != 0 && ep.ID == sess.Endpoint().ID {
				continue
			}
			cancel()
			return ep, true, <-done
		case err := <-done:
			return endpoint.Endpoint{}, false, err
		case <-ctx.Done():
			cancel()
			return endpoint.Endpoint{}, false, <-done
		}
	}
}

// awaitOther blocks until an endpoint other than cur is saved.
func (a *App) awaitOther(ctx context.Context, cur endpoint.Endpoint) (endpoint.Endpoint, error) {
	for {
		select {
		case ep := <-a.gate.Changed():
			if ep.ID != 0 && ep.ID == cur.ID {
				continue
			}
			return ep, nil
		case <-ctx.Done():
			return endpoint.Endpoint{}, ctx.Err()
		}
	}
}

func (a *App) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warnf("close journal: %v", err)
		}
	}
	if a.endpoints != nil {
		if err := a.endpoints.Close(); err != nil {
			logger.Warnf("close endpoint store: %v", err)
		}
	}
}
