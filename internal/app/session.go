package app

import (
	"context"
	"fmt"
	"time"

	"poscalc/internal/assistant"
	"poscalc/internal/config"
	"poscalc/internal/logger"
	"poscalc/internal/order"
	"poscalc/internal/rpc"
	"poscalc/internal/scheduler"
	"poscalc/internal/session"
	"poscalc/internal/store/endpoint"
)

// CallerFactory dials nothing up front; it only prepares a caller for url.
type CallerFactory func(url string, opts rpc.Options) (rpc.Caller, error)

func newRPCCaller(url string, opts rpc.Options) (rpc.Caller, error) {
	return rpc.NewClient(url, opts)
}

// Session is one connection's worth of background work: the caller for the
// configured endpoint, the scheduler with both polling loops and the
// controller driving them. The session store outlives it.
type Session struct {
	endpoint endpoint.Endpoint
	store    *session.Store
	sched    *scheduler.Scheduler
	ctrl     *assistant.Controller
}

func (s *Session) Controller() *assistant.Controller {
	return s.ctrl
}

func (s *Session) Endpoint() endpoint.Endpoint {
	return s.endpoint
}

func newSessionStore(cfg *config.Config) *session.Store {
	st := session.NewState(session.RiskInputs{
		InitialRisk: cfg.Risk.InitialRisk,
		MaxRisk:     cfg.Risk.MaxRisk,
		DailyTarget: cfg.Risk.DailyTarget,
	})
	st.Form = order.DefaultForm(cfg.Order.OrderAction, cfg.Order.StopType, cfg.Order.ProfitRatio, cfg.Order.FillPolicy)
	return session.NewStore(st, cfg.Scheduler.QueueSize)
}

func rpcOptions(cfg config.RPCConfig) rpc.Options {
	return rpc.Options{
		CallTimeout:      ms(cfg.CallTimeoutMs),
		HandshakeTimeout: ms(cfg.HandshakeTimeoutMs),
		ReadLimit:        cfg.ReadLimitBytes,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func buildSession(cfg *config.Config, ep endpoint.Endpoint, store *session.Store, j assistant.Journal, dial CallerFactory) (*Session, error) {
	caller, err := dial(ep.URL(), rpcOptions(cfg.RPC))
	if err != nil {
		return nil, fmt.Errorf("rpc client for %s: %w", ep.URL(), err)
	}
	var ctrl *assistant.Controller
	sched := scheduler.New(scheduler.Options{
		QueueSize: cfg.Scheduler.QueueSize,
		Workers:   cfg.Scheduler.Workers,
		OnError: func(source string, err error) {
			ctrl.ReportError(source, err)
		},
	})
	ctrl = assistant.NewController(caller, store, sched, j)

	sc := cfg.Scheduler
	backoffMin, backoffMax := ms(sc.FailureBackoffMinMs), ms(sc.FailureBackoffMaxMs)
	sched.AddLoop(scheduler.NewLoop(scheduler.PriceLoopName, ms(sc.PriceIntervalMs), backoffMin, backoffMax,
		scheduler.PriceStep(caller, store)))
	sched.AddLoop(scheduler.NewLoop(scheduler.AccountLoopName, ms(sc.AccountIntervalMs), backoffMin, backoffMax,
		scheduler.AccountStep(caller, store, ctrl.RefreshRisk)))

	return &Session{endpoint: ep, store: store, sched: sched, ctrl: ctrl}, nil
}

// Run queues the initial loads and blocks until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	if err := s.ctrl.Start(); err != nil {
		return fmt.Errorf("queue initial loads: %w", err)
	}
	logger.Infof("session started against %s", s.endpoint.URL())
	err := s.sched.Run(ctx)
	logger.Infof("session against %s stopped", s.endpoint.URL())
	return err
}
