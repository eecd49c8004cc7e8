// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import "strings"

// Option is a loosely-typed provider option bag. Keys are namespaced by
// concern, e.g. "listen.language" or "speak.voice.id".
type Option map[string]interface{}

// GetString returns the string at key, or def when absent or mistyped.
func (o Option) GetString(key string, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// GetBool returns the bool at key, or def when absent or mistyped.
func (o Option) GetBool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// GetInt returns the int at key, or def when absent or mistyped.
func (o Option) GetInt(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

// GetStringSlice returns the strings at key. Accepts a []string, an
// []interface{} of strings, or the "[a b c]" textual form some configuration
// sources produce.
func (o Option) GetStringSlice(key string) []string {
	v, ok := o[key]
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		trimmed := strings.Trim(val, "[]")
		if trimmed == "" {
			return nil
		}
		return strings.Fields(trimmed)
	}
	return nil
}
