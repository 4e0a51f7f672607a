package rpc

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const numberish = `{"type": ["number", "string"]}`

// resultSchemas describes the result body of each success response. Actions
// absent from the map are passed through unchecked.
var resultSchemas = map[Action]string{
	ActionGetSymbols: `{"type": "array", "items": {"type": "string"}}`,
	ActionGetSymbolInfo: `{
		"type": "object",
		"properties": {"spread": {"type": ["number", "string", "null"]}}
	}`,
	ActionGetLivePrices: `{
		"type": "object",
		"required": ["ask", "bid"],
		"properties": {
			"ask": ` + numberish + `,
			"bid": ` + numberish + `,
			"spread": {"type": ["number", "string", "null"]}
		}
	}`,
	ActionGetAccountInfo: `{
		"type": "object",
		"required": ["balance", "equity", "free_margin", "margin_level"],
		"properties": {
			"balance": ` + numberish + `,
			"equity": ` + numberish + `,
			"free_margin": ` + numberish + `,
			"margin_level": ` + numberish + `
		}
	}`,
	ActionCalculatePosition: `{"type": "object"}`,
	ActionCalculateNextRisk: `{
		"type": "object",
		"anyOf": [{"required": ["error"]}, {"required": ["next_risk"]}],
		"properties": {
			"next_risk": ` + numberish + `,
			"trades": {"type": "array", "items": {"type": "object"}}
		}
	}`,
}

var compiledSchemas = mustCompileSchemas(resultSchemas)

func mustCompileSchemas(src map[Action]string) map[Action]*jsonschema.Schema {
	out := make(map[Action]*jsonschema.Schema, len(src))
	for action, raw := range src {
		name := string(action) + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("rpc schema %s: %v", action, err))
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("rpc schema %s: %v", action, err))
		}
		out[action] = schema
	}
	return out
}

// validateResult checks a success body against the action's schema.
func validateResult(action Action, result []byte) error {
	schema, ok := compiledSchemas[action]
	if !ok {
		return nil
	}
	var doc any
	if err := wire.Unmarshal(result, &doc); err != nil {
		return fmt.Errorf("%w: %s result: %v", ErrMalformed, action, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s result: %v", ErrMalformed, action, err)
	}
	return nil
}
