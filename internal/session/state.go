package session

import (
	"time"

	"github.com/google/uuid"

	"poscalc/internal/order"
	"poscalc/internal/risk"
	"poscalc/internal/rpc"
	"poscalc/internal/trades"
)

// MaxAlerts bounds the pending alert list; the oldest is evicted first.
const MaxAlerts = 20

// Quote is valid only for Symbol and is cleared on deselection.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Ask       float64   `json:"ask"`
	Bid       float64   `json:"bid"`
	Spread    *float64  `json:"spread,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is replaced wholesale on every poll.
type Account struct {
	Balance     float64   `json:"balance"`
	Equity      float64   `json:"equity"`
	FreeMargin  float64   `json:"free_margin"`
	MarginLevel float64   `json:"margin_level"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RiskInputs struct {
	InitialRisk float64 `json:"initial_risk"`
	MaxRisk     float64 `json:"max_risk"`
	DailyTarget float64 `json:"daily_target"`
}

type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Calculation is the last calculate_position result shown to the user.
type Calculation struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	Fields    []rpc.Field `json:"fields"`
	CreatedAt time.Time   `json:"created_at"`
}

// State is the whole session. Only the Store goroutine mutates it; everyone
// else sees immutable copies.
type State struct {
	Version uint64 `json:"version"`

	Symbols       []string `json:"symbols"`
	SearchText    string   `json:"search_text"`
	SymbolOptions []string `json:"symbol_options"`

	Selected   string   `json:"selected"`
	InfoSpread *float64 `json:"info_spread,omitempty"`
	Quote      *Quote   `json:"quote,omitempty"`

	Account    *Account       `json:"account,omitempty"`
	RiskInputs RiskInputs     `json:"risk_inputs"`
	Risk       risk.State     `json:"risk"`
	Trades     trades.Summary `json:"trades"`

	Form            order.Form   `json:"form"`
	LastCalculation *Calculation `json:"last_calculation,omitempty"`
	Alerts          []Alert      `json:"alerts"`
}

// NewState seeds the risk slider with its defaults.
func NewState(inputs RiskInputs) *State {
	return &State{
		RiskInputs: inputs,
		Risk:       risk.Default(inputs.InitialRisk, inputs.MaxRisk),
		Trades:     trades.Summary{Rows: []trades.Row{}, TotalText: "0.00"},
		Alerts:     []Alert{},
	}
}

// Balance is zero until the first account snapshot arrives.
func (s *State) Balance() float64 {
	if s.Account == nil {
		return 0
	}
	return s.Account.Balance
}

// EngineInputs combines the risk limits with the current balance.
func (s *State) EngineInputs() risk.Inputs {
	return risk.Inputs{
		Balance:     s.Balance(),
		InitialRisk: s.RiskInputs.InitialRisk,
		MaxRisk:     s.RiskInputs.MaxRisk,
	}
}

// Select changes the selected symbol. Any quote or spread for a different
// symbol is dropped.
func (s *State) Select(symbol string) {
	if s.Selected == symbol {
		return
	}
	s.Selected = symbol
	s.Quote = nil
	s.InfoSpread = nil
}

// AddAlert appends an alert and returns it. It reports whether an older
// alert had to be evicted.
func (s *State) AddAlert(title, message string) (Alert, bool) {
	a := Alert{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
	s.Alerts = append(s.Alerts, a)
	evicted := false
	if over := len(s.Alerts) - MaxAlerts; over > 0 {
		s.Alerts = append([]Alert(nil), s.Alerts[over:]...)
		evicted = true
	}
	return a, evicted
}

func (s *State) DismissAlert(id string) bool {
	for i, a := range s.Alerts {
		if a.ID == id {
			s.Alerts = append(s.Alerts[:i:i], s.Alerts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *State) clone() *State {
	cp := *s
	cp.Symbols = cloneSlice(s.Symbols)
	cp.SymbolOptions = cloneSlice(s.SymbolOptions)
	cp.InfoSpread = clonePtr(s.InfoSpread)
	if s.Quote != nil {
		q := *s.Quote
		q.Spread = clonePtr(s.Quote.Spread)
		cp.Quote = &q
	}
	cp.Account = clonePtr(s.Account)
	cp.Trades.Rows = make([]trades.Row, len(s.Trades.Rows))
	for i, row := range s.Trades.Rows {
		row.Details = cloneSlice(row.Details)
		cp.Trades.Rows[i] = row
	}
	if s.LastCalculation != nil {
		calc := *s.LastCalculation
		calc.Fields = cloneSlice(s.LastCalculation.Fields)
		cp.LastCalculation = &calc
	}
	cp.Alerts = cloneSlice(s.Alerts)
	if cp.Alerts == nil {
		cp.Alerts = []Alert{}
	}
	return &cp
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func clonePtr[T any](in *T) *T {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}
