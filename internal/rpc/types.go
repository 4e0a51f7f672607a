package rpc

import (
	"encoding/json"
	"errors"
	"strings"
)

// Action names a remote operation.
type Action string

const (
	ActionGetSymbols        Action = "get_symbols"
	ActionGetSymbolInfo     Action = "get_symbol_info"
	ActionGetLivePrices     Action = "get_live_prices"
	ActionGetAccountInfo    Action = "get_account_info"
	ActionCalculatePosition Action = "calculate_position"
	ActionCalculateNextRisk Action = "calculate_next_risk"
)

// Params is encoded as a JSON object, or null when nil.
type Params map[string]any

// Request is built per call and never reused.
type Request struct {
	Action Action `json:"action"`
	Params Params `json:"params"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Response is the only thing Call returns. Status is authoritative: Result is
// set iff success, Message iff error.
type Response struct {
	Status  Status          `json:"status"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

// Err returns nil for a success response.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "unknown error"
	}
	return errors.New(msg)
}

func ErrorResponse(err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{Status: StatusError, Message: msg}
}

func SuccessResponse(result json.RawMessage) Response {
	return Response{Status: StatusSuccess, Result: result}
}
