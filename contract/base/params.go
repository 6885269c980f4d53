package base

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	lbase "github.com/prismchain/prism/ledger/base"
)

// ParamType declares the expected type of one install parameter
type ParamType int

const (
	ParamString ParamType = iota
	ParamInt
	ParamBool
	ParamBytes
	ParamAddress
)

// ParamSchema maps parameter names to their declared types
type ParamSchema map[string]ParamType

// ConvertParams converts raw string parameters following the declared
// schema. Parameters without a schema entry pass through as strings,
// schema entries without a raw value are left absent.
func ConvertParams(schema ParamSchema, params map[string]string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for name, raw := range params {
		pt, ok := schema[name]
		if !ok {
			out[name] = raw
			continue
		}
		value, err := convertParam(pt, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: param %s: %v", ErrInvalidParams, name, err)
		}
		out[name] = value
	}
	return out, nil
}

func convertParam(pt ParamType, raw string) (interface{}, error) {
	switch pt {
	case ParamString:
		return raw, nil
	case ParamInt:
		body, base := raw, 10
		if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "-0x") {
			body, base = strings.Replace(raw, "0x", "", 1), 16
		}
		value, ok := new(big.Int).SetString(body, base)
		if !ok {
			return nil, fmt.Errorf("not an int: %s", raw)
		}
		return value, nil
	case ParamBool:
		switch raw {
		case "0x0", "false", "False":
			return false, nil
		case "0x1", "true", "True":
			return true, nil
		}
		return nil, fmt.Errorf("not a bool: %s", raw)
	case ParamBytes:
		if !strings.HasPrefix(raw, "0x") {
			return nil, fmt.Errorf("bytes need 0x prefix: %s", raw)
		}
		value, err := hex.DecodeString(raw[2:])
		if err != nil {
			return nil, err
		}
		return value, nil
	case ParamAddress:
		return lbase.AddressFromHex(raw)
	default:
		return nil, fmt.Errorf("unknown param type %d", int(pt))
	}
}
