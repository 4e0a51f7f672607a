package config

import "strings"

const (
	defaultAppEnv              = "dev"
	defaultAppLogLevel         = "info"
	defaultAppHTTPAddr         = "127.0.0.1:9992"
	defaultConfigDB            = "config.db"
	defaultJournalDB           = "data/journal.db"
	defaultCallTimeoutMs       = 10000
	defaultHandshakeTimeoutMs  = 5000
	defaultReadLimitBytes      = 4 << 20
	defaultPriceIntervalMs     = 250
	defaultAccountIntervalMs   = 1000
	defaultFailureBackoffMinMs = 500
	defaultFailureBackoffMaxMs = 10000
	defaultQueueSize           = 64
	defaultWorkers             = 2
	defaultInitialRisk         = 5
	defaultMaxRisk             = 20
	defaultDailyTarget         = 100
	defaultOrderAction         = "Market Order"
	defaultStopType            = "point"
	defaultProfitRatio         = "1:2"
	defaultFillPolicy          = "Immediate or Cancel"
)

// Default returns a config with every default applied, as if loaded from an
// empty file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(nil)
	return &cfg
}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.RPC.applyDefaults(keys)
	c.Scheduler.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Order.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.config_db", &s.ConfigDB, defaultConfigDB),
		stringFieldDefault("store.journal_db", &s.JournalDB, defaultJournalDB),
	)
}

func (r *RPCConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		// call_timeout_ms: 0 is meaningful (no timeout), so only absent keys get the default.
		fieldDefault{
			key:   "rpc.call_timeout_ms",
			need:  func() bool { return r.CallTimeoutMs == 0 },
			apply: func() { r.CallTimeoutMs = defaultCallTimeoutMs },
		},
		intFieldDefault("rpc.handshake_timeout_ms", &r.HandshakeTimeoutMs, defaultHandshakeTimeoutMs),
		fieldDefault{
			key:   "rpc.read_limit_bytes",
			need:  func() bool { return r.ReadLimitBytes <= 0 },
			apply: func() { r.ReadLimitBytes = defaultReadLimitBytes },
		},
	)
}

func (s *SchedulerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("scheduler.price_interval_ms", &s.PriceIntervalMs, defaultPriceIntervalMs),
		intFieldDefault("scheduler.account_interval_ms", &s.AccountIntervalMs, defaultAccountIntervalMs),
		intFieldDefault("scheduler.failure_backoff_min_ms", &s.FailureBackoffMinMs, defaultFailureBackoffMinMs),
		intFieldDefault("scheduler.failure_backoff_max_ms", &s.FailureBackoffMaxMs, defaultFailureBackoffMaxMs),
		intFieldDefault("scheduler.queue_size", &s.QueueSize, defaultQueueSize),
		intFieldDefault("scheduler.workers", &s.Workers, defaultWorkers),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.initial_risk", &r.InitialRisk, defaultInitialRisk),
		floatFieldDefault("risk.max_risk", &r.MaxRisk, defaultMaxRisk),
		floatFieldDefault("risk.daily_target", &r.DailyTarget, defaultDailyTarget),
	)
}

func (o *OrderConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("order.order_action", &o.OrderAction, defaultOrderAction),
		stringFieldDefault("order.stop_type", &o.StopType, defaultStopType),
		stringFieldDefault("order.profit_ratio", &o.ProfitRatio, defaultProfitRatio),
		stringFieldDefault("order.fill_policy", &o.FillPolicy, defaultFillPolicy),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
