// Package trades folds the server's trade history into display rows and a
// net profit total.
package trades

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"

	"poscalc/internal/pkg/convert"
)

type Color string

const (
	ColorBlue Color = "blue"
	ColorRed  Color = "red"
)

// Record is one server trade, kept as sent. Numeric fields stay untyped so
// they render exactly as the server wrote them.
type Record struct {
	Symbol     string `mapstructure:"symbol" json:"symbol"`
	TradeType  string `mapstructure:"trade_type" json:"trade_type"`
	Volume     any    `mapstructure:"volume" json:"volume"`
	EntryPrice any    `mapstructure:"entry_price" json:"entry_price"`
	ExitPrice  any    `mapstructure:"exit_price" json:"exit_price"`
	Profit     any    `mapstructure:"profit" json:"profit"`
	Commission any    `mapstructure:"commission" json:"commission"`
	NetProfit  any    `mapstructure:"net_profit" json:"net_profit"`
	Time       any    `mapstructure:"time" json:"time"`
}

// Row is a rendered trade tile plus its detail lines.
type Row struct {
	Record     Record   `json:"record"`
	NetProfit  float64  `json:"net_profit"`
	ProfitText string   `json:"profit_text"`
	ProfitTone Color    `json:"profit_color"`
	TypeTone   Color    `json:"type_color"`
	Title      string   `json:"title"`
	Prices     string   `json:"prices"`
	When       string   `json:"time"`
	Details    []string `json:"details"`
	Error      string   `json:"error,omitempty"`
}

// ItemError is a per-trade failure. The trade is still rendered with a zero
// net profit.
type ItemError struct {
	Index  int
	Symbol string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("Error processing trade %d (%s): %v", e.Index, e.Symbol, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Summary replaces the previous one wholesale on every recompute.
// TotalText is the exact decimal sum.
type Summary struct {
	Rows      []Row   `json:"rows"`
	Total     float64 `json:"total_net_profit"`
	TotalText string  `json:"total_text"`
}

// Aggregate keeps server order. Total is the sum of every net profit that
// parsed; the rest count as zero, carry the failure in Row.Error and are
// returned as *ItemError (one per item).
func Aggregate(items []map[string]any) (Summary, []error) {
	out := Summary{Rows: make([]Row, 0, len(items))}
	total := decimal.Zero
	var errs []error
	for i, item := range items {
		var itemErr *ItemError
		rec, err := decodeRecord(item)
		if err != nil {
			itemErr = &ItemError{Index: i, Symbol: convert.Display(item["symbol"], ""), Err: err}
		}
		net, err := parseNetProfit(rec.NetProfit)
		if err != nil && itemErr == nil {
			itemErr = &ItemError{Index: i, Symbol: rec.Symbol, Err: err}
		}
		if err != nil {
			net = decimal.Zero
		}
		total = total.Add(net)
		row := newRow(rec, net)
		if itemErr != nil {
			row.Error = itemErr.Error()
			errs = append(errs, itemErr)
		}
		out.Rows = append(out.Rows, row)
	}
	out.Total = total.InexactFloat64()
	out.TotalText = total.StringFixed(2)
	return out, errs
}

// parseNetProfit treats a missing value as "0".
func parseNetProfit(v any) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, nil
	}
	d, err := convert.ToDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("net_profit %v: %w", v, err)
	}
	return d, nil
}

func decodeRecord(item map[string]any) (Record, error) {
	var rec Record
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rec,
	})
	if err != nil {
		return rec, err
	}
	err = dec.Decode(item)
	return rec, err
}

func newRow(rec Record, net decimal.Decimal) Row {
	netF := net.InexactFloat64()
	profitTone := ColorBlue
	if net.IsNegative() {
		profitTone = ColorRed
	}
	typeTone := ColorRed
	if strings.ToLower(rec.TradeType) == "buy" {
		typeTone = ColorBlue
	}
	profitText := net.StringFixed(2)
	return Row{
		Record:     rec,
		NetProfit:  netF,
		ProfitText: profitText,
		ProfitTone: profitTone,
		TypeTone:   typeTone,
		Title:      fmt.Sprintf("%s %s %s", rec.Symbol, rec.TradeType, convert.Display(rec.Volume, "")),
		Prices:     fmt.Sprintf("%s → %s", convert.Display(rec.EntryPrice, ""), convert.Display(rec.ExitPrice, "")),
		When:       convert.Display(rec.Time, ""),
		Details: []string{
			"Symbol: " + rec.Symbol,
			"Type: " + rec.TradeType,
			"Volume: " + convert.Display(rec.Volume, ""),
			"Entry Price: " + convert.Display(rec.EntryPrice, ""),
			"Exit Price: " + convert.Display(rec.ExitPrice, ""),
			"Profit: " + convert.Display(rec.Profit, ""),
			"Net Profit: " + profitText,
			"Commission: " + convert.Display(rec.Commission, ""),
			"Time: " + convert.Display(rec.Time, ""),
		},
	}
}
