// Package config loads server configuration from the environment and .env
// files.
//
// Files are layered in order of precedence, lowest first:
//
//	.env
//	.env.<TYPEDRPC_ENV>
//	.env.local
//
// Variables set in the process environment override every file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "TYPEDRPC_"

// Config holds server settings.
type Config struct {
	// Env names the deployment, e.g. "dev" or "prod". It selects .env.<Env>.
	Env string
	// Addr is the listen address.
	Addr string
	// RPCPath serves POST requests; RPCPath + "/schema" serves the schema.
	RPCPath string
	// WSPath serves websocket connections. Empty disables websockets.
	WSPath string
	// MetricsPath serves Prometheus metrics. Empty disables metrics.
	MetricsPath string
	// MaxBodyBytes limits HTTP request bodies and websocket messages.
	MaxBodyBytes int64
	// AllowedOrigins enables CORS for these origins. "*" allows any.
	AllowedOrigins []string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is text or json.
	LogFormat string
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Default returns the configuration used for unset variables.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		RPCPath:         "/rpc",
		WSPath:          "/ws",
		MetricsPath:     "/metrics",
		MaxBodyBytes:    1 << 20,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads files (or the default layering when none are given), overlays
// the process environment, and validates the result. Missing files are
// skipped.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = DefaultFiles(os.Getenv(Prefix + "ENV"))
	}
	vars, err := readFiles(files)
	if err != nil {
		return nil, err
	}
	return Parse(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	})
}

// DefaultFiles returns the .env layering for env.
func DefaultFiles(env string) []string {
	files := []string{".env"}
	if env != "" {
		files = append(files, ".env."+env)
	}
	return append(files, ".env.local")
}

func readFiles(files []string) (map[string]string, error) {
	vars := map[string]string{}
	for _, f := range files {
		m, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}
	return vars, nil
}

// Parse builds a configuration from lookup, applies defaults and validates it.
// Keys are looked up with Prefix.
func Parse(lookup func(key string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}
	d := Default()
	cfg := &Config{
		Env:             p.str("ENV", ""),
		Addr:            p.str("ADDR", d.Addr),
		RPCPath:         p.str("RPC_PATH", d.RPCPath),
		WSPath:          p.str("WS_PATH", d.WSPath),
		MetricsPath:     p.str("METRICS_PATH", d.MetricsPath),
		MaxBodyBytes:    p.int64("MAX_BODY_BYTES", d.MaxBodyBytes),
		AllowedOrigins:  p.list("ALLOWED_ORIGINS"),
		LogLevel:        strings.ToLower(p.str("LOG_LEVEL", d.LogLevel)),
		LogFormat:       strings.ToLower(p.str("LOG_FORMAT", d.LogFormat)),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", d.ShutdownTimeout),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

// str returns the value of key, or def when it is unset. A variable set to
// the empty string is kept, so paths can be disabled.
func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(Prefix + key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int64(key string, def int64) int64 {
	v, ok := p.lookup(Prefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: invalid integer %q", Prefix, key, v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(Prefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s%s: invalid duration %q", Prefix, key, v))
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	v, _ := p.lookup(Prefix + key)
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Level returns the slog level for LogLevel.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Logger returns a logger writing to w in LogFormat at LogLevel.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
