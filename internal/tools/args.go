package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/user/emrchat/internal/errors"
)

// ParseArguments accepts the argument payload in any of the shapes a model
// or caller may produce: a JSON string, raw bytes, or an already decoded map.
// An empty payload means no arguments.
func ParseArguments(kind Kind, args any) (map[string]any, error) {
	switch v := args.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return parseJSONArgs(kind, []byte(v))
	case []byte:
		return parseJSONArgs(kind, v)
	case json.RawMessage:
		return parseJSONArgs(kind, v)
	}
	return nil, errors.NewInvalidToolArgumentsError(kind.String(), fmt.Sprintf("unsupported argument type %T", args), nil)
}

func parseJSONArgs(kind Kind, raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, errors.NewInvalidToolArgumentsError(kind.String(), "arguments are not a JSON object", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Validate checks args against the advertised schema for kind: required
// fields must be present and non-empty, enum fields must hold a listed value,
// and every known field must be a scalar.
func Validate(kind Kind, args map[string]any) error {
	params := Definition(kind).Parameters
	props, _ := params["properties"].(map[string]any)
	required, _ := params["required"].([]string)

	for _, name := range required {
		s, ok := scalarString(args[name])
		if !ok || strings.TrimSpace(s) == "" {
			return errors.NewInvalidToolArgumentsError(kind.String(), fmt.Sprintf("%s is required", name), nil)
		}
	}

	for name, value := range args {
		prop, known := props[name].(map[string]any)
		if !known || value == nil {
			continue
		}
		s, ok := scalarString(value)
		if !ok {
			return errors.NewInvalidToolArgumentsError(kind.String(), fmt.Sprintf("%s must be a string", name), nil)
		}
		if allowed, hasEnum := prop["enum"].([]string); hasEnum && s != "" && !slices.Contains(allowed, s) {
			return errors.NewInvalidToolArgumentsError(kind.String(),
				fmt.Sprintf("%s must be one of: %s", name, strings.Join(allowed, ", ")), nil)
		}
	}

	return nil
}

// decodeArgs validates args and decodes them into the query type for kind.
// Numbers are accepted where strings are expected so a numeric patient id
// still resolves.
func decodeArgs[T any](kind Kind, args map[string]any) (T, error) {
	var out T
	if err := Validate(kind, args); err != nil {
		return out, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return out, fmt.Errorf("failed to create argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return out, errors.NewInvalidToolArgumentsError(kind.String(), "arguments do not match the tool schema", err)
	}
	return out, nil
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return fmt.Sprintf("%v", s), true
	case int, int64:
		return fmt.Sprintf("%d", s), true
	case bool:
		return fmt.Sprintf("%t", s), true
	}
	return "", false
}
