package rpc

import (
	"fmt"
	"strconv"

	"github.com/webgrab/webgrab/models"
)

// Argument readers over the raw tool-call map. JSON numbers arrive as
// float64; string forms are accepted for numerics and booleans because
// some agent frameworks stringify every argument. Anything else is an
// INVALID_ARGUMENT naming the offending key.

func badArg(key string, value any) *models.ToolError {
	return models.NewToolError(models.ErrCodeInvalidArgument,
		fmt.Sprintf("argument %q has unusable type %T", key, value), nil).
		WithDetail("argument", key)
}

func missingArg(key string) *models.ToolError {
	return models.NewToolError(models.ErrCodeInvalidArgument, key+" is required", nil).
		WithDetail("argument", key)
}

func argString(args map[string]any, key string) (string, *models.ToolError) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", badArg(key, v)
	}
	return s, nil
}

func requireString(args map[string]any, key string) (string, *models.ToolError) {
	s, terr := argString(args, key)
	if terr != nil {
		return "", terr
	}
	if s == "" {
		return "", missingArg(key)
	}
	return s, nil
}

func argInt(args map[string]any, key string, fallback int) (int, *models.ToolError) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, badArg(key, v)
		}
		return i, nil
	default:
		return 0, badArg(key, v)
	}
}

func argFloat(args map[string]any, key string, fallback float64) (float64, *models.ToolError) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, badArg(key, v)
		}
		return f, nil
	default:
		return 0, badArg(key, v)
	}
}

func argBool(args map[string]any, key string, fallback bool) (bool, *models.ToolError) {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, badArg(key, v)
		}
		return parsed, nil
	default:
		return false, badArg(key, v)
	}
}

// argBoolPtr distinguishes "not provided" from an explicit false.
func argBoolPtr(args map[string]any, key string) (*bool, *models.ToolError) {
	if _, ok := args[key]; !ok {
		return nil, nil
	}
	b, terr := argBool(args, key, false)
	if terr != nil {
		return nil, terr
	}
	return &b, nil
}

func argFloatPtr(args map[string]any, key string) (*float64, *models.ToolError) {
	if _, ok := args[key]; !ok {
		return nil, nil
	}
	f, terr := argFloat(args, key, 0)
	if terr != nil {
		return nil, terr
	}
	return &f, nil
}

func argIntPtr(args map[string]any, key string) (*int, *models.ToolError) {
	if _, ok := args[key]; !ok {
		return nil, nil
	}
	i, terr := argInt(args, key, 0)
	if terr != nil {
		return nil, terr
	}
	return &i, nil
}

func argStringMap(args map[string]any, key string) (map[string]string, *models.ToolError) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, badArg(key, v)
	}
	out := make(map[string]string, len(raw))
	for k, rv := range raw {
		s, ok := rv.(string)
		if !ok {
			return nil, badArg(key+"."+k, rv)
		}
		out[k] = s
	}
	return out, nil
}
