package assistant

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"poscalc/internal/order"
	"poscalc/internal/rpc"
	"poscalc/internal/scheduler"
	"poscalc/internal/session"
	"poscalc/internal/store/journal"
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) Call(ctx context.Context, action rpc.Action, params rpc.Params) rpc.Response {
	args := m.Called(action, params)
	return args.Get(0).(rpc.Response)
}

// inlineTasks runs each task on Submit and hands failures to onError.
type inlineTasks struct {
	onError func(string, error)
	full    bool
}

func (s *inlineTasks) Submit(name string, fn scheduler.TaskFunc) (string, error) {
	if s.full {
		return "", scheduler.ErrQueueFull
	}
	if err := fn(context.Background()); err != nil && s.onError != nil {
		s.onError(name, err)
	}
	return name, nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Append(_ context.Context, e journal.Entry) (journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e.ID = "j" + strconv.Itoa(len(j.entries))
	j.entries = append(j.entries, e)
	return e, nil
}

type fixture struct {
	caller  *mockCaller
	store   *session.Store
	tasks   *inlineTasks
	journal *memJournal
	ctrl    *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := session.NewState(session.RiskInputs{InitialRisk: 5, MaxRisk: 20, DailyTarget: 10})
	st.Form = order.DefaultForm(order.ActionMarket, order.StopPoint, "1:2", order.FillIOC)
	store := session.NewStore(st, 32)
	store.Start()
	t.Cleanup(store.Stop)

	f := &fixture{caller: &mockCaller{}, store: store, tasks: &inlineTasks{}, journal: &memJournal{}}
	f.ctrl = NewController(f.caller, store, f.tasks, f.journal)
	f.tasks.onError = f.ctrl.ReportError
	return f
}

// settle waits for queued async updates to be applied.
func (f *fixture) settle(t *testing.T) *session.State {
	t.Helper()
	require.NoError(t, f.store.UpdateSync(context.Background(), "barrier", func(*session.State) {}))
	return f.store.Snapshot()
}

func (f *fixture) setBalance(t *testing.T, balance float64) {
	t.Helper()
	require.NoError(t, f.store.UpdateSync(context.Background(), "account", func(st *session.State) {
		st.Account = &session.Account{Balance: balance}
	}))
}

func success(raw string) rpc.Response {
	return rpc.SuccessResponse([]byte(raw))
}

func TestSearchSymbolsFiltersCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.caller.On("Call", rpc.ActionGetSymbols, rpc.Params(nil)).Return(success(`["EURUSD","XAUUSD","eurgbp"]`))

	_, err := f.ctrl.SearchSymbols("eur")
	require.NoError(t, err)
	st := f.settle(t)
	assert.Equal(t, []string{"EURUSD", "eurgbp"}, st.SymbolOptions)
	assert.Equal(t, "eur", st.SearchText)

	_, err = f.ctrl.LoadSymbols()
	require.NoError(t, err)
	assert.Len(t, f.settle(t).Symbols, 3)
}

func TestSymbolLoadFailureAlerts(t *testing.T) {
	f := newFixture(t)
	f.caller.On("Call", rpc.ActionGetSymbols, rpc.Params(nil)).Return(rpc.ErrorResponse(errors.New("connection refused")))

	_, err := f.ctrl.LoadSymbols()
	require.NoError(t, err)
	st := f.settle(t)
	require.Len(t, st.Alerts, 1)
	assert.Equal(t, "Error", st.Alerts[0].Title)
	assert.Equal(t, "Error: connection refused", st.Alerts[0].Message)
}

func TestSelectSymbolFetchesInfoAndQuote(t *testing.T) {
	f := newFixture(t)
	params := rpc.Params{"symbol_name": "EURUSD"}
	f.caller.On("Call", rpc.ActionGetSymbolInfo, params).Return(success(`{"spread":1.2,"digits":5}`))
	f.caller.On("Call", rpc.ActionGetLivePrices, params).Return(success(`{"ask":1.1002,"bid":1.1}`))

	_, err := f.ctrl.SelectSymbol(" EURUSD ")
	require.NoError(t, err)
	st := f.settle(t)
	assert.Equal(t, "EURUSD", st.Selected)
	assert.Equal(t, "EURUSD", st.Form.Symbol)
	require.NotNil(t, st.Quote)

	v := BuildView(st)
	assert.Equal(t, "BUY 1.1002", v.BuyLabel)
	assert.Equal(t, "SELL 1.1", v.SellLabel)
	assert.Equal(t, "Spread: 1.2", v.SpreadText)

	_, err = f.ctrl.SelectSymbol("")
	require.NoError(t, err)
	st = f.settle(t)
	assert.Nil(t, st.Quote)
	v = BuildView(st)
	assert.Equal(t, "BUY", v.BuyLabel)
	assert.Equal(t, "Spread: -", v.SpreadText)
}

func TestRefreshRiskAppliesServerAnswer(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, 1000)
	f.caller.On("Call", rpc.ActionCalculateNextRisk, rpc.Params{"initial_risk_per_trade": 5.0, "max_risk_per_trade": 20.0}).
		Return(success(`{"next_risk":15,"trades":[{"symbol":"EURUSD","trade_type":"buy","net_profit":"7"},{"symbol":"XAUUSD","trade_type":"sell","net_profit":"4.5"}]}`))

	require.NoError(t, f.ctrl.RefreshRisk(context.Background()))
	st := f.store.Snapshot()
	assert.InDelta(t, 1.5, st.Risk.RiskPercent, 1e-9)
	assert.InDelta(t, 15.0, st.Risk.RiskAmount, 1e-9)
	assert.InDelta(t, 2.0, st.Risk.SliderMax, 1e-9)
	require.Len(t, st.Trades.Rows, 2)

	v := BuildView(st)
	assert.Equal(t, "Risk: 1.50% (15.00$)", v.RiskText)
	assert.Equal(t, "11.50", v.TodayNetProfit)
	assert.True(t, v.TargetReached)
}

func TestRefreshRiskFallbackAndItemErrors(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, 500)
	f.caller.On("Call", rpc.ActionCalculateNextRisk, mock.Anything).
		Return(success(`{"error":"no history","trades":[{"symbol":"BAD","net_profit":"x"}]}`))

	require.NoError(t, f.ctrl.RefreshRisk(context.Background()))
	st := f.settle(t)
	assert.InDelta(t, 1.0, st.Risk.RiskPercent, 1e-9)
	assert.InDelta(t, 4.0, st.Risk.SliderMax, 1e-9)
	assert.True(t, st.Risk.FellBack)
	require.Len(t, st.Trades.Rows, 1)
	assert.Contains(t, st.Trades.Rows[0].Error, "Error processing trade 0 (BAD)")
	assert.Empty(t, st.Alerts)
}

func TestRefreshRiskRepeatedBadTradeRaisesNoAlerts(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, 1000)
	f.ctrl.ReportError("price", errors.New("connection refused"))
	f.caller.On("Call", rpc.ActionCalculateNextRisk, mock.Anything).
		Return(success(`{"next_risk":10,"trades":[{"symbol":"X","trade_type":"buy","net_profit":"n/a"}]}`))

	for i := 0; i < session.MaxAlerts+5; i++ {
		require.NoError(t, f.ctrl.RefreshRisk(context.Background()))
	}
	st := f.settle(t)
	require.Len(t, st.Alerts, 1)
	assert.Equal(t, "Error: connection refused", st.Alerts[0].Message)
	require.Len(t, st.Trades.Rows, 1)
	assert.NotEmpty(t, st.Trades.Rows[0].Error)
}

func TestRefreshRiskWithoutBalanceKeepsSlider(t *testing.T) {
	f := newFixture(t)
	f.caller.On("Call", rpc.ActionCalculateNextRisk, mock.Anything).Return(success(`{"next_risk":15,"trades":[]}`))

	require.NoError(t, f.ctrl.RefreshRisk(context.Background()))
	st := f.store.Snapshot()
	assert.Equal(t, 1.0, st.Risk.RiskPercent)
	assert.Equal(t, 5.0, st.Risk.SliderMax)
}

func TestSetRiskInputsAndPercent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No balance yet: inputs are kept, slider untouched.
	require.NoError(t, f.ctrl.SetRiskInputs(ctx, session.RiskInputs{InitialRisk: 10, MaxRisk: 30, DailyTarget: 50}))
	st := f.store.Snapshot()
	assert.Equal(t, 30.0, st.RiskInputs.MaxRisk)
	assert.Equal(t, 5.0, st.Risk.SliderMax)

	f.setBalance(t, 1000)
	require.NoError(t, f.ctrl.SetRiskInputs(ctx, session.RiskInputs{InitialRisk: 10, MaxRisk: 30, DailyTarget: 50}))
	st = f.store.Snapshot()
	assert.InDelta(t, 1.0, st.Risk.RiskPercent, 1e-9)
	assert.InDelta(t, 3.0, st.Risk.SliderMax, 1e-9)

	require.NoError(t, f.ctrl.SetRiskPercent(ctx, 2.5))
	assert.Equal(t, "Risk: 2.50% (25.00$)", BuildView(f.store.Snapshot()).RiskText)

	require.NoError(t, f.ctrl.SetRiskPercent(ctx, 99))
	assert.InDelta(t, 3.0, f.store.Snapshot().Risk.RiskPercent, 1e-9)

	assert.Error(t, f.ctrl.SetRiskInputs(ctx, session.RiskInputs{InitialRisk: -1}))
}

func TestCalculatePositionSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, 2000)
	require.NoError(t, f.store.UpdateSync(ctx, "select", func(st *session.State) { st.Select("EURUSD") }))
	require.NoError(t, f.ctrl.SetRiskPercent(ctx, 1.5))

	form := order.DefaultForm(order.ActionMarket, order.StopPoint, "1:3", order.FillIOC)
	form.EntryValue = "1.0850"
	form.StopValue = "150"
	require.NoError(t, f.ctrl.UpdateForm(ctx, form))
	assert.Empty(t, f.store.Snapshot().Form.EntryValue)

	var sent rpc.Params
	f.caller.On("Call", rpc.ActionCalculatePosition, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(rpc.Params) }).
		Return(success(`{"volume":0.2,"stop_loss":"1.0700"}`))
	f.caller.On("Call", rpc.ActionCalculateNextRisk, mock.Anything).Return(success(`{"next_risk":20,"trades":[]}`))

	_, err := f.ctrl.CalculatePosition("SELL")
	require.NoError(t, err)
	st := f.settle(t)

	assert.Equal(t, "", sent["entry_value"])
	assert.InDelta(t, 30.0, sent["risk_position"].(float64), 1e-9)
	assert.Equal(t, "3", sent["profit_value"])
	assert.Equal(t, "SELL", sent["position_action"])

	v := BuildView(st)
	require.NotNil(t, v.Result)
	assert.Equal(t, []string{"volume: 0.2", "stop_loss: 1.0700"}, v.Result.Lines)
	assert.Equal(t, "volume: 0.2\nstop_loss: 1.0700", v.Result.ResultText())
	assert.InDelta(t, 1.0, st.Risk.RiskPercent, 1e-9)

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, journal.StatusOK, f.journal.entries[0].Status)
	assert.Equal(t, v.Result.ID, f.journal.entries[0].ID)
	f.caller.AssertNumberOfCalls(t, "Call", 2)
}

func TestCalculatePositionRemoteErrorAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setBalance(t, 1000)
	require.NoError(t, f.store.UpdateSync(ctx, "select", func(st *session.State) { st.Select("EURUSD") }))
	form := f.store.Snapshot().Form
	form.StopValue = "10"
	require.NoError(t, f.ctrl.UpdateForm(ctx, form))

	f.caller.On("Call", rpc.ActionCalculatePosition, mock.Anything).Return(success(`{"error":"stop loss too close"}`))
	_, err := f.ctrl.CalculatePosition("BUY")
	require.NoError(t, err)
	st := f.settle(t)

	require.Len(t, st.Alerts, 1)
	assert.Equal(t, "stop loss too close", st.Alerts[0].Message)
	assert.Nil(t, st.LastCalculation)
	assert.Equal(t, journal.StatusRemoteError, f.journal.entries[0].Status)
	f.caller.AssertNotCalled(t, "Call", rpc.ActionCalculateNextRisk, mock.Anything)
}

func TestCalculatePositionValidation(t *testing.T) {
	f := newFixture(t)
	f.setBalance(t, 1000)
	_, err := f.ctrl.CalculatePosition("BUY")
	assert.ErrorIs(t, err, order.ErrInvalid)
	st := f.settle(t)
	require.Len(t, st.Alerts, 1)
	f.caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything)
}

func TestLoopFailuresAlertOncePerStreak(t *testing.T) {
	f := newFixture(t)
	base := errors.New("connection refused")
	f.ctrl.ReportError("price", &scheduler.StepError{Loop: "price", Streak: 1, Err: base})
	f.ctrl.ReportError("price", &scheduler.StepError{Loop: "price", Streak: 2, Err: base})
	f.ctrl.ReportError("task", base)
	st := f.settle(t)
	require.Len(t, st.Alerts, 2)

	found, err := f.ctrl.DismissAlert(context.Background(), st.Alerts[0].ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, f.store.Snapshot().Alerts, 1)
}

func TestStartQueuesInitialLoads(t *testing.T) {
	f := newFixture(t)
	f.caller.On("Call", rpc.ActionGetSymbols, rpc.Params(nil)).Return(success(`["EURUSD"]`))
	f.caller.On("Call", rpc.ActionGetAccountInfo, rpc.Params(nil)).
		Return(success(`{"balance":1000,"equity":1000,"free_margin":1000,"margin_level":0}`))
	f.caller.On("Call", rpc.ActionCalculateNextRisk, mock.Anything).Return(success(`{"next_risk":5,"trades":[]}`))

	require.NoError(t, f.ctrl.Start())
	st := f.settle(t)
	assert.Equal(t, []string{"EURUSD"}, st.SymbolOptions)
	assert.Equal(t, "1000", BuildView(st).Balance)
	assert.InDelta(t, 0.5, st.Risk.RiskPercent, 1e-9)

	f.tasks.full = true
	assert.ErrorIs(t, f.ctrl.Start(), scheduler.ErrQueueFull)
}

func TestViewDefaults(t *testing.T) {
	st := session.NewState(session.RiskInputs{InitialRisk: 5, MaxRisk: 20})
	st.Form = order.DefaultForm(order.ActionMarket, order.StopPoint, "1:2", order.FillIOC)
	v := BuildView(st)
	assert.Equal(t, "BUY", v.BuyLabel)
	assert.Equal(t, "SELL", v.SellLabel)
	assert.Equal(t, "Spread: -", v.SpreadText)
	assert.Equal(t, "Risk: 1.00% (0.00$)", v.RiskText)
	assert.Equal(t, "0.0", v.Balance)
	assert.True(t, v.EntryDisabled)
	assert.False(t, v.FillPolicyVisible)
	assert.False(t, v.TargetReached)
	assert.Equal(t, "0.00", v.TodayNetProfit)
	assert.NotNil(t, v.SymbolOptions)
	assert.Nil(t, v.Result)
}
