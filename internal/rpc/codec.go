package rpc

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

// ErrMalformed marks a payload that arrived intact but does not match the
// protocol. It is reported like any other transport failure.
var ErrMalformed = errors.New("malformed response")

// wire keeps map keys sorted so requests are byte-stable, and decodes numbers
// as json.Number so loosely typed fields survive until mapstructure sees them.
var wire = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

func encodeRequest(req Request) ([]byte, error) {
	return wire.Marshal(req)
}

// parseEnvelope classifies a raw reply without decoding the result body.
func parseEnvelope(raw []byte) (Response, error) {
	if !gjson.ValidBytes(raw) {
		return Response{}, fmt.Errorf("%w: not valid json", ErrMalformed)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Response{}, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}
	status := root.Get("status")
	switch Status(status.String()) {
	case StatusSuccess:
		result := root.Get("result")
		if !result.Exists() {
			return Response{}, fmt.Errorf("%w: success without result", ErrMalformed)
		}
		return SuccessResponse([]byte(result.Raw)), nil
	case StatusError:
		msg := root.Get("message").String()
		if msg == "" {
			msg = "server reported an error without message"
		}
		return Response{Status: StatusError, Message: msg}, nil
	default:
		return Response{}, fmt.Errorf("%w: unknown status %q", ErrMalformed, status.String())
	}
}

func decodeValue(raw []byte, out any) error {
	if err := wire.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
