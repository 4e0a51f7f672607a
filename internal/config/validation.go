package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.RPC.validate(); err != nil {
		return err
	}
	if err := c.Scheduler.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	return c.Order.validate()
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.ConfigDB) == "" {
		return fmt.Errorf("store.config_db cannot be empty")
	}
	if strings.TrimSpace(s.JournalDB) == "" {
		return fmt.Errorf("store.journal_db cannot be empty")
	}
	return nil
}

func (r *RPCConfig) validate() error {
	if r.CallTimeoutMs < 0 {
		return fmt.Errorf("rpc.call_timeout_ms must be >= 0")
	}
	if r.HandshakeTimeoutMs <= 0 {
		return fmt.Errorf("rpc.handshake_timeout_ms must be > 0")
	}
	if r.ReadLimitBytes <= 0 {
		return fmt.Errorf("rpc.read_limit_bytes must be > 0")
	}
	return nil
}

func (s *SchedulerConfig) validate() error {
	if s.PriceIntervalMs <= 0 || s.AccountIntervalMs <= 0 {
		return fmt.Errorf("scheduler intervals must be > 0")
	}
	if s.FailureBackoffMinMs <= 0 {
		return fmt.Errorf("scheduler.failure_backoff_min_ms must be > 0")
	}
	if s.FailureBackoffMaxMs < s.FailureBackoffMinMs {
		return fmt.Errorf("scheduler.failure_backoff_max_ms must be >= failure_backoff_min_ms")
	}
	if s.QueueSize <= 0 {
		return fmt.Errorf("scheduler.queue_size must be > 0")
	}
	if s.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be > 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.InitialRisk < 0 || r.MaxRisk < 0 || r.DailyTarget < 0 {
		return fmt.Errorf("risk values must be >= 0")
	}
	if r.InitialRisk > r.MaxRisk {
		return fmt.Errorf("risk.initial_risk (%.2f) exceeds risk.max_risk (%.2f)", r.InitialRisk, r.MaxRisk)
	}
	return nil
}

func (o *OrderConfig) validate() error {
	switch o.OrderAction {
	case "Market Order", "Pending Order":
	default:
		return fmt.Errorf("order.order_action must be Market Order or Pending Order, got %q", o.OrderAction)
	}
	switch o.StopType {
	case "point", "price":
	default:
		return fmt.Errorf("order.stop_type must be point or price, got %q", o.StopType)
	}
	switch o.ProfitRatio {
	case "1:1", "1:2", "1:3", "1:4", "1:5":
	default:
		return fmt.Errorf("order.profit_ratio must be one of 1:1..1:5, got %q", o.ProfitRatio)
	}
	switch o.FillPolicy {
	case "Immediate or Cancel", "Fill or Kill":
	default:
		return fmt.Errorf("order.fill_policy must be Immediate or Cancel or Fill or Kill, got %q", o.FillPolicy)
	}
	return nil
}
