package app

import (
	"fmt"
	"strings"

	"poscalc/internal/config"
)

// startupSummary is logged once when the app starts.
func startupSummary(cfg *config.Config) string {
	sc := cfg.Scheduler
	call := "none"
	if cfg.RPC.CallTimeoutMs > 0 {
		call = fmt.Sprintf("%dms", cfg.RPC.CallTimeoutMs)
	}
	return strings.Join([]string{
		"[startup]",
		fmt.Sprintf("  http:      %s", orDash(cfg.App.HTTPAddr)),
		fmt.Sprintf("  config db: %s", cfg.Store.ConfigDB),
		fmt.Sprintf("  journal:   %s", cfg.Store.JournalDB),
		fmt.Sprintf("  polling:   price %dms, account %dms, backoff %d-%dms",
			sc.PriceIntervalMs, sc.AccountIntervalMs, sc.FailureBackoffMinMs, sc.FailureBackoffMaxMs),
		fmt.Sprintf("  tasks:     %d workers, queue %d, call timeout %s", sc.Workers, sc.QueueSize, call),
		fmt.Sprintf("  risk:      initial %.2f, max %.2f, daily target %.2f",
			cfg.Risk.InitialRisk, cfg.Risk.MaxRisk, cfg.Risk.DailyTarget),
	}, "\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
