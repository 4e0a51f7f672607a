// Package assistant turns user intents into scheduled work and session
// mutations, and renders the session into a view model.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"poscalc/internal/logger"
	"poscalc/internal/order"
	"poscalc/internal/risk"
	"poscalc/internal/rpc"
	"poscalc/internal/scheduler"
	"poscalc/internal/session"
	"poscalc/internal/store/journal"
	"poscalc/internal/trades"
)

// AlertTitle heads every alert raised for a failed call or task.
const AlertTitle = "Error"

// Submitter is the part of the scheduler the controller needs.
type Submitter interface {
	Submit(name string, fn scheduler.TaskFunc) (string, error)
}

// Journal records calculate_position round trips.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) (journal.Entry, error)
}

type Controller struct {
	caller  rpc.Caller
	store   *session.Store
	tasks   Submitter
	journal Journal
	log     *logger.Logger
}

func NewController(caller rpc.Caller, store *session.Store, tasks Submitter, j Journal) *Controller {
	return &Controller{
		caller:  caller,
		store:   store,
		tasks:   tasks,
		journal: j,
		log:     logger.With("assistant"),
	}
}

// ReportError is the scheduler's error hook. A polling loop alerts once per
// failure streak; every other failure alerts each time.
func (c *Controller) ReportError(source string, err error) {
	var stepErr *scheduler.StepError
	if errors.As(err, &stepErr) && !stepErr.First() {
		return
	}
	c.alert(fmt.Sprintf("Error: %v", err))
}

func (c *Controller) alert(message string) {
	if err := c.store.Alert(AlertTitle, message); err != nil {
		c.log.Warnf("alert dropped (%v): %s", err, message)
	}
}

// Start queues the first symbol and account loads.
func (c *Controller) Start() error {
	if _, err := c.LoadSymbols(); err != nil {
		return err
	}
	_, err := c.tasks.Submit("load_account", func(ctx context.Context) error {
		if err := scheduler.FetchAccount(ctx, c.caller, c.store); err != nil {
			return err
		}
		return c.RefreshRisk(ctx)
	})
	return err
}

// LoadSymbols fetches the full symbol list, keeping the current search.
func (c *Controller) LoadSymbols() (string, error) {
	return c.tasks.Submit("load_symbols", func(ctx context.Context) error {
		symbols, err := c.fetchSymbols(ctx)
		if err != nil {
			return err
		}
		return c.store.Update("symbols", func(st *session.State) {
			st.Symbols = symbols
			st.SymbolOptions = filterSymbols(symbols, st.SearchText)
		})
	})
}

// SearchSymbols refetches the list and keeps the case-insensitive matches.
func (c *Controller) SearchSymbols(text string) (string, error) {
	return c.tasks.Submit("search_symbol", func(ctx context.Context) error {
		symbols, err := c.fetchSymbols(ctx)
		if err != nil {
			return err
		}
		return c.store.Update("search", func(st *session.State) {
			st.Symbols = symbols
			st.SearchText = text
			st.SymbolOptions = filterSymbols(symbols, text)
		})
	})
}

func (c *Controller) fetchSymbols(ctx context.Context) ([]string, error) {
	return rpc.DecodeSymbols(c.caller.Call(ctx, rpc.ActionGetSymbols, nil))
}

func filterSymbols(symbols []string, text string) []string {
	needle := strings.ToLower(text)
	return lo.Filter(symbols, func(s string, _ int) bool {
		return strings.Contains(strings.ToLower(s), needle)
	})
}

// SelectSymbol switches the price loop to symbol. An empty symbol deselects
// and clears the quote. The symbol info and one quote are fetched right away
// instead of waiting for the next loop tick.
func (c *Controller) SelectSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if err := c.store.Update("select", func(st *session.State) {
		st.Select(symbol)
		st.Form.Symbol = symbol
	}); err != nil {
		return "", err
	}
	if symbol == "" {
		return "", nil
	}
	return c.tasks.Submit("select_symbol", func(ctx context.Context) error {
		resp := c.caller.Call(ctx, rpc.ActionGetSymbolInfo, rpc.Params{"symbol_name": symbol})
		info, err := rpc.DecodeSymbolInfo(resp)
		if err != nil {
			c.ReportError("symbol_info", err)
		} else {
			_ = c.store.Update("symbol_info", func(st *session.State) {
				if st.Selected == symbol {
					st.InfoSpread = info.Spread
				}
			})
		}
		return scheduler.FetchQuote(ctx, c.caller, c.store, symbol)
	})
}

// SetRiskInputs stores new risk limits and recomputes the slider locally.
// Without a balance the slider keeps its current state.
func (c *Controller) SetRiskInputs(ctx context.Context, inputs session.RiskInputs) error {
	if inputs.InitialRisk < 0 || inputs.MaxRisk < 0 || inputs.DailyTarget < 0 {
		return &risk.ValidationError{Field: "risk_inputs", Err: fmt.Errorf("values must be >= 0")}
	}
	var failure error
	err := c.store.UpdateSync(ctx, "risk_inputs", func(st *session.State) {
		st.RiskInputs = inputs
		st.Risk.InitialRisk = inputs.InitialRisk
		st.Risk.MaxRisk = inputs.MaxRisk
		next, err := risk.FromLocal(st.EngineInputs())
		if err != nil {
			if !errors.Is(err, risk.ErrZeroBalance) {
				failure = err
			}
			return
		}
		st.Risk = next
	})
	if err != nil {
		return err
	}
	return failure
}

// SetRiskPercent moves the slider.
func (c *Controller) SetRiskPercent(ctx context.Context, percent float64) error {
	return c.store.UpdateSync(ctx, "risk_percent", func(st *session.State) {
		st.Risk = st.Risk.WithPercent(percent, st.Balance())
	})
}

// UpdateForm stores the order form as edited.
func (c *Controller) UpdateForm(ctx context.Context, form order.Form) error {
	return c.store.UpdateSync(ctx, "form", func(st *session.State) {
		form.Symbol = st.Selected
		st.Form = form.Cleaned()
	})
}

// CalculatePosition validates the stored form for side and queues the
// calculate_position call. Validation errors are returned immediately.
func (c *Controller) CalculatePosition(side string) (string, error) {
	snap := c.store.Snapshot()
	form := snap.Form
	form.Symbol = snap.Selected
	form.PositionAction = side
	req, err := order.Assemble(form, snap.Balance(), snap.Risk.RiskPercent)
	if err != nil {
		c.alert(err.Error())
		return "", err
	}
	return c.tasks.Submit("calculate_position", func(ctx context.Context) error {
		return c.calculate(ctx, req)
	})
}

func (c *Controller) calculate(ctx context.Context, req order.Request) error {
	params := req.Params()
	resp := c.caller.Call(ctx, rpc.ActionCalculatePosition, params)
	entry := journal.Entry{Symbol: req.Symbol, Side: req.PositionAction}
	if raw, err := json.Marshal(params); err == nil {
		entry.Params = raw
	}

	result, err := rpc.DecodePosition(resp)
	switch {
	case err != nil:
		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
	case result.HasError:
		entry.Status = journal.StatusRemoteError
		entry.Error = result.Error
		entry.Result = resp.Result
	default:
		entry.Status = journal.StatusOK
		entry.Result = resp.Result
	}
	entry = c.record(ctx, entry)

	if err != nil {
		return err
	}
	if result.HasError {
		c.alert(result.Error)
		return nil
	}
	calc := &session.Calculation{
		ID:        entry.ID,
		Symbol:    req.Symbol,
		Side:      req.PositionAction,
		Fields:    result.Fields,
		CreatedAt: time.Now(),
	}
	if err := c.store.Update("calculation", func(st *session.State) {
		st.LastCalculation = calc
	}); err != nil {
		return err
	}
	return c.RefreshRisk(ctx)
}

func (c *Controller) record(ctx context.Context, e journal.Entry) journal.Entry {
	if c.journal == nil {
		return e
	}
	stored, err := c.journal.Append(ctx, e)
	if err != nil {
		c.log.Warnf("journal append failed: %v", err)
		return e
	}
	return stored
}

// RefreshRisk asks the server for the next risk and rebuilds the slider and
// trade list from the answer. It is the account loop's follow-up step.
func (c *Controller) RefreshRisk(ctx context.Context) error {
	inputs := c.store.Snapshot().RiskInputs
	resp := c.caller.Call(ctx, rpc.ActionCalculateNextRisk, rpc.Params{
		"initial_risk_per_trade": inputs.InitialRisk,
		"max_risk_per_trade":     inputs.MaxRisk,
	})
	next, err := rpc.DecodeNextRisk(resp)
	if err != nil {
		return err
	}
	summary, itemErrs := trades.Aggregate(next.Trades)
	// Item failures stay on their rows; this runs every account tick, so only
	// failures not already shown are logged loudly.
	seen := make(map[string]bool)
	for _, row := range c.store.Snapshot().Trades.Rows {
		if row.Error != "" {
			seen[row.Error] = true
		}
	}
	for _, itemErr := range itemErrs {
		if seen[itemErr.Error()] {
			c.log.Debugf("%v", itemErr)
			continue
		}
		c.log.Warnf("%v", itemErr)
	}
	return c.store.UpdateSync(ctx, "next_risk", func(st *session.State) {
		st.Trades = summary
		state, err := risk.FromNextRisk(st.EngineInputs(), next.NextRisk, next.HasError)
		if err != nil {
			c.log.Debugf("risk refresh skipped: %v", err)
			return
		}
		st.Risk = state
	})
}

// DismissAlert closes one alert.
func (c *Controller) DismissAlert(ctx context.Context, id string) (bool, error) {
	found := false
	err := c.store.UpdateSync(ctx, "dismiss_alert", func(st *session.State) {
		found = st.DismissAlert(id)
	})
	return found, err
}

// View renders the current snapshot.
func (c *Controller) View() View {
	return BuildView(c.store.Snapshot())
}

// Subscribe forwards to the session store's refresh signal.
func (c *Controller) Subscribe() (<-chan uint64, func()) {
	return c.store.Subscribe()
}
