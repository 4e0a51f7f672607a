package assistant

import (
	"fmt"
	"strconv"
	"strings"

	"poscalc/internal/order"
	"poscalc/internal/session"
	"poscalc/internal/trades"
)

// View is everything the foreground renders. It is derived from one
// snapshot and never mutated afterwards.
type View struct {
	Version uint64 `json:"version"`

	SymbolOptions []string `json:"symbol_options"`
	SearchText    string   `json:"search_text"`
	Selected      string   `json:"selected"`
	SpreadText    string   `json:"spread_text"`
	BuyLabel      string   `json:"buy_label"`
	SellLabel     string   `json:"sell_label"`

	Balance     string `json:"balance"`
	Equity      string `json:"equity"`
	FreeMargin  string `json:"free_margin"`
	MarginLevel string `json:"margin_level"`

	InitialRisk float64    `json:"initial_risk"`
	MaxRisk     float64    `json:"max_risk"`
	DailyTarget float64    `json:"daily_target"`
	Slider      SliderView `json:"slider"`
	RiskText    string     `json:"risk_text"`

	Form              order.Form `json:"form"`
	EntryDisabled     bool       `json:"entry_disabled"`
	FillPolicyVisible bool       `json:"fill_policy_visible"`
	ProfitRatios      []string   `json:"profit_ratios"`

	Trades         []trades.Row `json:"trades"`
	TodayNetProfit string       `json:"today_net_profit"`
	TargetReached  bool         `json:"target_reached"`

	Result *ResultView     `json:"result,omitempty"`
	Alerts []session.Alert `json:"alerts"`
}

type SliderView struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Value float64 `json:"value"`
}

// ResultView is the calculation dialog: one "key: value" line per result
// field, in server order.
type ResultView struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Lines  []string `json:"lines"`
	Symbol string   `json:"symbol"`
	Side   string   `json:"side"`
}

func BuildView(st *session.State) View {
	v := View{
		Version:       st.Version,
		SymbolOptions: st.SymbolOptions,
		SearchText:    st.SearchText,
		Selected:      st.Selected,
		SpreadText:    spreadText(st),
		BuyLabel:      order.Buy,
		SellLabel:     order.Sell,

		Balance:     "0.0",
		Equity:      "0.0",
		FreeMargin:  "0.0",
		MarginLevel: "0.0",

		InitialRisk: st.RiskInputs.InitialRisk,
		MaxRisk:     st.RiskInputs.MaxRisk,
		DailyTarget: st.RiskInputs.DailyTarget,
		Slider: SliderView{
			Min:   st.Risk.SliderMin,
			Max:   st.Risk.SliderMax,
			Value: st.Risk.RiskPercent,
		},
		RiskText: st.Risk.Text(),

		Form:              st.Form,
		EntryDisabled:     st.Form.EntryDisabled(),
		FillPolicyVisible: st.Form.FillPolicyVisible(),
		ProfitRatios:      order.ProfitRatios,

		Trades:         st.Trades.Rows,
		TodayNetProfit: st.Trades.TotalText,
		Alerts:         st.Alerts,
	}
	if v.SymbolOptions == nil {
		v.SymbolOptions = []string{}
	}
	if v.Trades == nil {
		v.Trades = []trades.Row{}
	}
	if q := st.Quote; q != nil && q.Symbol == st.Selected {
		v.BuyLabel = order.Buy + " " + formatNumber(q.Ask)
		v.SellLabel = order.Sell + " " + formatNumber(q.Bid)
	}
	if a := st.Account; a != nil {
		v.Balance = formatNumber(a.Balance)
		v.Equity = formatNumber(a.Equity)
		v.FreeMargin = formatNumber(a.FreeMargin)
		v.MarginLevel = formatNumber(a.MarginLevel)
	}
	target := st.RiskInputs.DailyTarget
	v.TargetReached = target > 0 && st.Trades.Total >= target
	if calc := st.LastCalculation; calc != nil {
		lines := make([]string, 0, len(calc.Fields))
		for _, f := range calc.Fields {
			lines = append(lines, fmt.Sprintf("%s: %s", f.Key, f.Value))
		}
		v.Result = &ResultView{
			ID:     calc.ID,
			Title:  "Calculation Result",
			Lines:  lines,
			Symbol: calc.Symbol,
			Side:   calc.Side,
		}
	}
	return v
}

// ResultText joins the dialog lines the way they are displayed.
func (r *ResultView) ResultText() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Lines, "\n")
}

// spreadText prefers the live quote's spread over the one from symbol info.
func spreadText(st *session.State) string {
	if st.Selected == "" {
		return "Spread: -"
	}
	if q := st.Quote; q != nil && q.Spread != nil {
		return "Spread: " + formatNumber(*q.Spread)
	}
	if st.InfoSpread != nil {
		return "Spread: " + formatNumber(*st.InfoSpread)
	}
	return "Spread: -"
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
