// Package order validates the order form and turns it into calculate_position
// parameters.
package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"poscalc/internal/risk"
	"poscalc/internal/rpc"
)

const (
	ActionMarket  = "Market Order"
	ActionPending = "Pending Order"

	StopPoint = "point"
	StopPrice = "price"

	FillIOC = "Immediate or Cancel"
	FillFOK = "Fill or Kill"

	Buy  = "BUY"
	Sell = "SELL"
)

// ProfitRatios are the choices offered for the take profit ratio.
var ProfitRatios = []string{"1:1", "1:2", "1:3", "1:4", "1:5"}

var ErrInvalid = errors.New("invalid order")

// Form is the order as the user filled it in.
type Form struct {
	Symbol         string `json:"symbol" validate:"required"`
	OrderAction    string `json:"order_action" validate:"oneof='Market Order' 'Pending Order'"`
	EntryValue     string `json:"entry_value"`
	StopType       string `json:"stop_type" validate:"oneof=point price"`
	StopValue      string `json:"stop_value" validate:"required"`
	ProfitRatio    string `json:"profit_ratio" validate:"oneof=1:1 1:2 1:3 1:4 1:5"`
	OpenOrder      bool   `json:"open_order"`
	FillPolicy     string `json:"fill_policy" validate:"omitempty,oneof='Immediate or Cancel' 'Fill or Kill'"`
	PositionAction string `json:"position_action" validate:"oneof=BUY SELL"`
}

// DefaultForm is the form as first shown: no symbol, no side.
func DefaultForm(orderAction, stopType, profitRatio, fillPolicy string) Form {
	return Form{
		OrderAction: orderAction,
		StopType:    stopType,
		ProfitRatio: profitRatio,
		FillPolicy:  fillPolicy,
	}
}

// EntryDisabled is true for market orders, whose entry is always empty.
func (f Form) EntryDisabled() bool {
	return f.OrderAction == ActionMarket
}

// FillPolicyVisible is true only for open orders.
func (f Form) FillPolicyVisible() bool {
	return f.OpenOrder
}

// Cleaned is the form as stored after an edit: the entry of a market
// order is cleared.
func (f Form) Cleaned() Form {
	if f.EntryDisabled() {
		f.EntryValue = ""
	}
	return f
}

// Request is a validated Form plus the sizing inputs, ready to send.
type Request struct {
	Balance        float64
	Symbol         string
	RiskPosition   float64
	StopType       string
	StopValue      string
	ProfitValue    string
	OpenOrder      bool
	PositionAction string
	EntryValue     string
	FillPolicy     string
	OrderAction    string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		f := sl.Current().Interface().(Form)
		if f.OpenOrder && strings.TrimSpace(f.FillPolicy) == "" {
			sl.ReportError(f.FillPolicy, "FillPolicy", "fill_policy", "required_with_open_order", "")
		}
	}, Form{})
	return v
}

// Assemble checks the form and derives the request. The entry value is
// dropped for market orders, the risk sent is the currency amount for
// riskPercent of balance, and only the ratio's denominator is sent.
func Assemble(form Form, balance, riskPercent float64) (Request, error) {
	form = normalize(form)
	if err := validate.Struct(form); err != nil {
		return Request{}, fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	if balance <= 0 {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalid, risk.ErrZeroBalance)
	}
	entry := form.EntryValue
	if form.OrderAction == ActionMarket {
		entry = ""
	}
	req := Request{
		Balance:        balance,
		Symbol:         form.Symbol,
		RiskPosition:   risk.AmountFor(riskPercent, balance),
		StopType:       form.StopType,
		StopValue:      form.StopValue,
		ProfitValue:    profitValue(form.ProfitRatio),
		OpenOrder:      form.OpenOrder,
		PositionAction: form.PositionAction,
		EntryValue:     entry,
		OrderAction:    form.OrderAction,
	}
	if form.OpenOrder {
		req.FillPolicy = form.FillPolicy
	}
	return req, nil
}

// Params is the calculate_position parameter map. fill_policy_value is only
// present for open orders.
func (r Request) Params() rpc.Params {
	p := rpc.Params{
		"balance":          r.Balance,
		"symbol_name":      r.Symbol,
		"risk_position":    r.RiskPosition,
		"stop_type":        r.StopType,
		"stop_value":       r.StopValue,
		"profit_value":     r.ProfitValue,
		"open_order_param": r.OpenOrder,
		"position_action":  r.PositionAction,
		"entry_value":      r.EntryValue,
		"order_action":     r.OrderAction,
	}
	if r.OpenOrder {
		p["fill_policy_value"] = r.FillPolicy
	}
	return p
}

func normalize(f Form) Form {
	f.Symbol = strings.TrimSpace(f.Symbol)
	f.EntryValue = strings.TrimSpace(f.EntryValue)
	f.StopValue = strings.TrimSpace(f.StopValue)
	f.PositionAction = strings.ToUpper(strings.TrimSpace(f.PositionAction))
	return f
}

// profitValue keeps what follows the colon: "1:2" becomes "2".
func profitValue(ratio string) string {
	if _, after, ok := strings.Cut(ratio, ":"); ok {
		return after
	}
	return ratio
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
