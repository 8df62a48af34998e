package config

import (
	"fmt"
	"strings"
)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []string

	if c.Addr == "" {
		errs = append(errs, Prefix+"ADDR is required")
	}
	if !strings.HasPrefix(c.RPCPath, "/") {
		errs = append(errs, fmt.Sprintf("%sRPC_PATH must start with /, got %q", Prefix, c.RPCPath))
	}
	paths := map[string]string{c.RPCPath: "RPC_PATH", c.RPCPath + "/schema": "RPC_PATH schema"}
	for _, opt := range []struct{ key, path string }{{"WS_PATH", c.WSPath}, {"METRICS_PATH", c.MetricsPath}} {
		key, path := opt.key, opt.path
		if path == "" {
			continue
		}
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Sprintf("%s%s must start with /, got %q", Prefix, key, path))
			continue
		}
		if other, ok := paths[path]; ok {
			errs = append(errs, fmt.Sprintf("%s%s %q conflicts with %s", Prefix, key, path, other))
			continue
		}
		paths[path] = key
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Sprintf("%sMAX_BODY_BYTES must be positive, got %d", Prefix, c.MaxBodyBytes))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, Prefix+"SHUTDOWN_TIMEOUT must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("%sLOG_LEVEL must be debug, info, warn or error, got %q", Prefix, c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("%sLOG_FORMAT must be text or json, got %q", Prefix, c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
