package config

import "strings"

// Config is the application configuration. The quoting server endpoint is not
// part of it: that lives in the endpoint store and is edited at runtime.
type Config struct {
	App       AppConfig       `toml:"app" yaml:"app"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	RPC       RPCConfig       `toml:"rpc" yaml:"rpc"`
	Scheduler SchedulerConfig `toml:"scheduler" yaml:"scheduler"`
	Risk      RiskConfig      `toml:"risk" yaml:"risk"`
	Order     OrderConfig     `toml:"order" yaml:"order"`
}

type AppConfig struct {
	Env      string `toml:"env" yaml:"env"`
	LogLevel string `toml:"log_level" yaml:"log_level"`
	LogPath  string `toml:"log_path" yaml:"log_path"`
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`
}

type StoreConfig struct {
	ConfigDB  string `toml:"config_db" yaml:"config_db"`
	JournalDB string `toml:"journal_db" yaml:"journal_db"`
}

type RPCConfig struct {
	// CallTimeoutMs bounds one full round trip; 0 disables the bound.
	CallTimeoutMs      int   `toml:"call_timeout_ms" yaml:"call_timeout_ms"`
	HandshakeTimeoutMs int   `toml:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
	ReadLimitBytes     int64 `toml:"read_limit_bytes" yaml:"read_limit_bytes"`
}

type SchedulerConfig struct {
	PriceIntervalMs     int `toml:"price_interval_ms" yaml:"price_interval_ms"`
	AccountIntervalMs   int `toml:"account_interval_ms" yaml:"account_interval_ms"`
	FailureBackoffMinMs int `toml:"failure_backoff_min_ms" yaml:"failure_backoff_min_ms"`
	FailureBackoffMaxMs int `toml:"failure_backoff_max_ms" yaml:"failure_backoff_max_ms"`
	QueueSize           int `toml:"queue_size" yaml:"queue_size"`
	Workers             int `toml:"workers" yaml:"workers"`
}

// RiskConfig seeds the risk inputs shown on first start.
type RiskConfig struct {
	InitialRisk float64 `toml:"initial_risk" yaml:"initial_risk"`
	MaxRisk     float64 `toml:"max_risk" yaml:"max_risk"`
	DailyTarget float64 `toml:"daily_target" yaml:"daily_target"`
}

// OrderConfig seeds the order form.
type OrderConfig struct {
	OrderAction string `toml:"order_action" yaml:"order_action"`
	StopType    string `toml:"stop_type" yaml:"stop_type"`
	ProfitRatio string `toml:"profit_ratio" yaml:"profit_ratio"`
	FillPolicy  string `toml:"fill_policy" yaml:"fill_policy"`
}

// keySet tracks the paths explicitly set in the config file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
