package rpc

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"

	"poscalc/internal/pkg/convert"
)

type SymbolInfo struct {
	Spread *float64       `mapstructure:"spread"`
	Extra  map[string]any `mapstructure:",remain"`
}

type LivePrices struct {
	Ask    float64  `mapstructure:"ask"`
	Bid    float64  `mapstructure:"bid"`
	Spread *float64 `mapstructure:"spread"`
}

type AccountInfo struct {
	Balance     float64 `mapstructure:"balance"`
	Equity      float64 `mapstructure:"equity"`
	FreeMargin  float64 `mapstructure:"free_margin"`
	MarginLevel float64 `mapstructure:"margin_level"`
}

// NextRisk is the calculate_next_risk result. HasError reports the presence
// of an error key, whatever its value.
type NextRisk struct {
	NextRisk float64          `mapstructure:"next_risk"`
	Trades   []map[string]any `mapstructure:"trades"`
	Error    string           `mapstructure:"-"`
	HasError bool             `mapstructure:"-"`
}

// Field is one key of a calculate_position result, in server order.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type PositionResult struct {
	Error    string  `json:"error,omitempty"`
	HasError bool    `json:"has_error"`
	Fields   []Field `json:"fields"`
}

func DecodeSymbols(resp Response) ([]string, error) {
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out []string
	if err := decodeValue(resp.Result, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeSymbolInfo(resp Response) (SymbolInfo, error) {
	var out SymbolInfo
	err := decodeObject(resp, &out)
	return out, err
}

func DecodeLivePrices(resp Response) (LivePrices, error) {
	var out LivePrices
	err := decodeObject(resp, &out)
	return out, err
}

func DecodeAccountInfo(resp Response) (AccountInfo, error) {
	var out AccountInfo
	err := decodeObject(resp, &out)
	return out, err
}

func DecodeNextRisk(resp Response) (NextRisk, error) {
	var out NextRisk
	if err := resp.Err(); err != nil {
		return out, err
	}
	if errField := gjson.GetBytes(resp.Result, "error"); errField.Exists() {
		out.HasError = true
		out.Error = errField.String()
		if trades := gjson.GetBytes(resp.Result, "trades"); trades.Exists() {
			var wrapped struct {
				Trades []map[string]any `json:"trades"`
			}
			if err := decodeValue(resp.Result, &wrapped); err != nil {
				return out, err
			}
			out.Trades = wrapped.Trades
		}
		return out, nil
	}
	err := decodeObject(resp, &out)
	return out, err
}

// DecodePosition keeps the key order the server used, for rendering.
func DecodePosition(resp Response) (PositionResult, error) {
	var out PositionResult
	if err := resp.Err(); err != nil {
		return out, err
	}
	root := gjson.ParseBytes(resp.Result)
	if !root.IsObject() {
		return out, fmt.Errorf("%w: calculate_position result is not an object", ErrMalformed)
	}
	root.ForEach(func(key, value gjson.Result) bool {
		if key.String() == "error" {
			out.HasError = true
			out.Error = value.String()
			return true
		}
		out.Fields = append(out.Fields, Field{Key: key.String(), Value: displayResult(value)})
		return true
	})
	return out, nil
}

func displayResult(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.String()
	case gjson.Null:
		return "-"
	default:
		return v.Raw
	}
}

func decodeObject(resp Response, out any) error {
	if err := resp.Err(); err != nil {
		return err
	}
	var raw map[string]any
	if err := decodeValue(resp.Result, &raw); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       numberHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// numberHook accepts numeric text with surrounding spaces, which
// mapstructure's weak string to float conversion rejects.
func numberHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Float64 {
		return data, nil
	}
	f, err := convert.ParseFloat(data)
	if err != nil {
		return data, nil
	}
	return f, nil
}
