package check

import (
	"context"
	"fmt"
	"time"
)

// Asset is the monitored entity a check runs against. ID and Check are
// immutable for the lifetime of a scheduled pair; Name follows the config.
type Asset struct {
	ID    int
	Name  string
	Check string
}

func (a Asset) String() string {
	return fmt.Sprintf("%s (%d) %s", a.Name, a.ID, a.Check)
}

// Result maps a type name to its item records, each a flat key-value map.
type Result map[string][]map[string]any

// Config is a merged, read-only view of configuration handed to a check.
type Config map[string]any

// Func is a user-supplied check. It receives the asset, its resolved asset
// configuration (credentials, connection parameters) and the resolved check
// configuration, and returns a Result or one of the control-signal errors.
type Func func(ctx context.Context, asset Asset, assetCfg, checkCfg Config) (Result, error)

// Str returns the string value for key, or def when absent or not a string.
func (c Config) Str(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer value for key, accepting the numeric types YAML
// decoding produces, or def when absent.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func (c Config) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// Dur reads key as a number of seconds.
func (c Config) Dur(key string, def time.Duration) time.Duration {
	switch v := c[key].(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}
