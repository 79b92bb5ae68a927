// Package env reads typed configuration values from the environment.
//
// Typed readers treat a variable that is set but blank as unset, so an
// exported empty APIDEPLOY_* variable falls back to the default instead of
// failing to parse.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix is prepended to every variable read through Key.
const Prefix = "APIDEPLOY_"

// Key returns the full variable name for name, e.g. "REGION" -> "APIDEPLOY_REGION".
func Key(name string) string {
	return Prefix + name
}

func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// Override returns the value of key when it is set and not blank, current
// otherwise.
func Override(key, current string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return current
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

func Bool(key string, def bool) (bool, error) {
	if v, ok := lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

func Int(key string, def int) (int, error) {
	if v, ok := lookup(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

// Strings splits a comma separated value, dropping empty items.
func Strings(key string, def []string) []string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
