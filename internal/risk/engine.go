// Package risk turns balance, risk limits and the server's next-risk answer
// into the slider state shown next to the order form.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"poscalc/internal/pkg/convert"
)

// ErrZeroBalance is returned instead of dividing by a non-positive balance.
var ErrZeroBalance = errors.New("balance must be greater than zero")

const (
	DefaultSliderMin   = 0.01
	DefaultSliderMax   = 5.0
	DefaultSliderValue = 1.0
)

var hundred = decimal.NewFromInt(100)

// ValidationError reports a local input that made a recompute impossible.
// Callers keep the previous State when they get one.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("risk %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Inputs are the local values both recompute paths read.
type Inputs struct {
	Balance     float64 `json:"balance"`
	InitialRisk float64 `json:"initial_risk"`
	MaxRisk     float64 `json:"max_risk"`
}

func (in Inputs) check() error {
	if in.Balance <= 0 {
		return &ValidationError{Field: "balance", Err: ErrZeroBalance}
	}
	if in.InitialRisk < 0 {
		return &ValidationError{Field: "initial_risk", Err: fmt.Errorf("must be >= 0, got %v", in.InitialRisk)}
	}
	if in.MaxRisk < 0 {
		return &ValidationError{Field: "max_risk", Err: fmt.Errorf("must be >= 0, got %v", in.MaxRisk)}
	}
	return nil
}

// State is what the slider and the risk label render. RiskPercent never
// exceeds SliderMax.
type State struct {
	InitialRisk float64 `json:"initial_risk"`
	MaxRisk     float64 `json:"max_risk"`
	RiskPercent float64 `json:"risk_percent"`
	RiskAmount  float64 `json:"risk_amount"`
	SliderMin   float64 `json:"slider_min"`
	SliderMax   float64 `json:"slider_max"`
	// FromServer is set when the last recompute used a next-risk answer,
	// FellBack when that answer carried an error and InitialRisk was used.
	FromServer bool `json:"from_server"`
	FellBack   bool `json:"fell_back"`
}

// Default is the slider before any balance is known.
func Default(initialRisk, maxRisk float64) State {
	return State{
		InitialRisk: initialRisk,
		MaxRisk:     maxRisk,
		RiskPercent: DefaultSliderValue,
		SliderMin:   DefaultSliderMin,
		SliderMax:   DefaultSliderMax,
	}
}

// Text renders the label next to the slider.
func (s State) Text() string {
	return fmt.Sprintf("Risk: %.2f%% (%.2f$)", s.RiskPercent, s.RiskAmount)
}

// FromNextRisk applies a calculate_next_risk answer. When hasError is set the
// server value is ignored and InitialRisk is used instead. The percent is
// clamped into [DefaultSliderMin, max_risk/balance*100].
func FromNextRisk(in Inputs, nextRisk float64, hasError bool) (State, error) {
	if err := in.check(); err != nil {
		return State{}, err
	}
	balance := convert.FromFloat(in.Balance)
	maxRisk := convert.FromFloat(in.MaxRisk)

	next := convert.FromFloat(nextRisk)
	if hasError {
		next = convert.FromFloat(in.InitialRisk)
	}
	next = decimal.Min(next, maxRisk)

	percent := next.Div(balance).Mul(hundred)
	bound := maxRisk.Div(balance).Mul(hundred)
	percent = decimal.Min(percent, bound)
	// A negative or near-zero answer sits on the slider's lower stop.
	if floor := convert.FromFloat(DefaultSliderMin); percent.LessThan(floor) {
		percent = floor
		next = percent.Mul(balance).Div(hundred)
	}

	return State{
		InitialRisk: in.InitialRisk,
		MaxRisk:     in.MaxRisk,
		RiskPercent: percent.InexactFloat64(),
		RiskAmount:  next.InexactFloat64(),
		SliderMin:   DefaultSliderMin,
		SliderMax:   bound.InexactFloat64(),
		FromServer:  true,
		FellBack:    hasError,
	}, nil
}

// FromLocal recomputes the slider from local inputs only, as when the user
// edits the risk limits.
func FromLocal(in Inputs) (State, error) {
	if err := in.check(); err != nil {
		return State{}, err
	}
	balance := convert.FromFloat(in.Balance)
	initial := convert.FromFloat(in.InitialRisk).Div(balance).Mul(hundred)
	bound := convert.FromFloat(in.MaxRisk).Div(balance).Mul(hundred)
	percent := decimal.Min(initial, bound)

	return State{
		InitialRisk: in.InitialRisk,
		MaxRisk:     in.MaxRisk,
		RiskPercent: percent.InexactFloat64(),
		RiskAmount:  amountOf(percent, balance).InexactFloat64(),
		SliderMin:   DefaultSliderMin,
		SliderMax:   bound.InexactFloat64(),
	}, nil
}

// WithPercent moves the slider. The percent is clamped into
// [SliderMin, SliderMax] and the amount follows the balance. A non-positive
// balance leaves the amount at zero.
func (s State) WithPercent(percent, balance float64) State {
	p := convert.FromFloat(percent)
	lo := convert.FromFloat(s.SliderMin)
	hi := convert.FromFloat(s.SliderMax)
	if hi.LessThan(lo) {
		lo = hi
	}
	p = decimal.Max(decimal.Min(p, hi), lo)

	s.RiskPercent = p.InexactFloat64()
	s.RiskAmount = 0
	if balance > 0 {
		s.RiskAmount = amountOf(p, convert.FromFloat(balance)).InexactFloat64()
	}
	return s
}

// AmountFor is the currency risk sent with calculate_position.
func AmountFor(percent, balance float64) float64 {
	return amountOf(convert.FromFloat(percent), convert.FromFloat(balance)).InexactFloat64()
}

func amountOf(percent, balance decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred).Mul(balance)
}
