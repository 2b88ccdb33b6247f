package logging

import (
	"log/slog"
	"strings"
)

const redactedValue = "[redacted]"

// secretKeys are attribute names whose values never reach a log sink. Group
// prefixes are ignored, so "catalog.token" matches "token".
var secretKeys = map[string]struct{}{
	"token":         {},
	"api_token":     {},
	"authorization": {},
	"dsn":           {},
	"password":      {},
}

func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

func redactValue(key string, value slog.Value) slog.Value {
	if isSecretKey(key) && value.Resolve().String() != "" {
		return slog.StringValue(redactedValue)
	}
	return value
}
