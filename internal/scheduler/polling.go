package scheduler

import (
	"context"
	"time"

	"poscalc/internal/rpc"
	"poscalc/internal/session"
)

const (
	PriceLoopName   = "price"
	AccountLoopName = "account"
)

// PriceStep polls get_live_prices for the selected symbol. With nothing
// selected it does nothing and the loop just waits for its next tick.
func PriceStep(caller rpc.Caller, store *session.Store) StepFunc {
	return func(ctx context.Context) error {
		symbol := store.Snapshot().Selected
		if symbol == "" {
			return nil
		}
		return FetchQuote(ctx, caller, store, symbol)
	}
}

// FetchQuote runs one get_live_prices round trip. The quote is dropped if the
// selection changed while the call was in flight.
func FetchQuote(ctx context.Context, caller rpc.Caller, store *session.Store, symbol string) error {
	resp := caller.Call(ctx, rpc.ActionGetLivePrices, rpc.Params{"symbol_name": symbol})
	prices, err := rpc.DecodeLivePrices(resp)
	if err != nil {
		return err
	}
	now := time.Now()
	return store.Update("quote", func(st *session.State) {
		if st.Selected != symbol {
			return
		}
		st.Quote = &session.Quote{
			Symbol:    symbol,
			Ask:       prices.Ask,
			Bid:       prices.Bid,
			Spread:    prices.Spread,
			UpdatedAt: now,
		}
	})
}

// AccountStep polls get_account_info and, once the new snapshot is
// published, runs afterAccount (the risk refresh).
func AccountStep(caller rpc.Caller, store *session.Store, afterAccount StepFunc) StepFunc {
	return func(ctx context.Context) error {
		if err := FetchAccount(ctx, caller, store); err != nil {
			return err
		}
		if afterAccount == nil {
			return nil
		}
		return afterAccount(ctx)
	}
}

// FetchAccount replaces the account snapshot wholesale and waits until it is
// visible to readers.
func FetchAccount(ctx context.Context, caller rpc.Caller, store *session.Store) error {
	resp := caller.Call(ctx, rpc.ActionGetAccountInfo, nil)
	info, err := rpc.DecodeAccountInfo(resp)
	if err != nil {
		return err
	}
	acct := &session.Account{
		Balance:     info.Balance,
		Equity:      info.Equity,
		FreeMargin:  info.FreeMargin,
		MarginLevel: info.MarginLevel,
		UpdatedAt:   time.Now(),
	}
	return store.UpdateSync(ctx, "account", func(st *session.State) {
		st.Account = acct
	})
}
