package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mnehpets/typedrpc/endpoint"
)

// SecurityHeadersProcessor sets security headers suited to an API host and,
// when CORS is configured, handles cross-origin requests.
//
// Defaults (NewSecurityHeadersProcessor):
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Frame-Options: DENY
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cross-Origin-Resource-Policy: same-origin
//
// Preflight requests (OPTIONS with Origin and Access-Control-Request-Method)
// are answered with 204 and never reach the endpoint.
type SecurityHeadersProcessor struct {
	// HSTS configures Strict-Transport-Security. Nil disables it.
	HSTS *HSTSConfig
	// Empty strings disable the corresponding header.
	ReferrerPolicy            string
	FrameOptions              string
	ContentSecurityPolicy     string
	CrossOriginResourcePolicy string
	ContentTypeOptions        bool
	// CORS configures cross-origin access. Nil sends no CORS headers.
	CORS *CORSConfig
}

// HSTSConfig configures HTTP Strict Transport Security.
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// CORSConfig configures Cross-Origin Resource Sharing.
type CORSConfig struct {
	// AllowedOrigins lists allowed origins. "*" allows any origin, except when
	// AllowCredentials is set.
	AllowedOrigins []string
	// AllowedMethods defaults to POST, GET and OPTIONS.
	AllowedMethods []string
	// AllowedHeaders defaults to Accept and Content-Type.
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds. Default 3600.
	MaxAge int
}

// SecurityHeadersOption configures a SecurityHeadersProcessor.
type SecurityHeadersOption func(*SecurityHeadersProcessor)

// NewSecurityHeadersProcessor returns a processor with the API defaults.
func NewSecurityHeadersProcessor(opts ...SecurityHeadersOption) *SecurityHeadersProcessor {
	p := &SecurityHeadersProcessor{
		HSTS:                      &HSTSConfig{MaxAge: 31536000, IncludeSubDomains: true},
		ReferrerPolicy:            "no-referrer",
		FrameOptions:              "DENY",
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none'",
		CrossOriginResourcePolicy: "same-origin",
		ContentTypeOptions:        true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithoutHSTS disables Strict-Transport-Security, e.g. for plain HTTP
// development servers.
func WithoutHSTS() SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) { p.HSTS = nil }
}

// WithCSP sets the Content-Security-Policy header.
func WithCSP(policy string) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) { p.ContentSecurityPolicy = policy }
}

// WithCORS enables CORS. Unset methods, headers and max age get defaults.
func WithCORS(config *CORSConfig) SecurityHeadersOption {
	return func(p *SecurityHeadersProcessor) {
		if config == nil {
			p.CORS = nil
			return
		}
		c := *config
		if c.AllowedMethods == nil {
			c.AllowedMethods = []string{http.MethodPost, http.MethodGet, http.MethodOptions}
		}
		if c.AllowedHeaders == nil {
			c.AllowedHeaders = []string{"Accept", "Content-Type"}
		}
		if c.MaxAge == 0 {
			c.MaxAge = 3600
		}
		p.CORS = &c
	}
}

// WithAllowedOrigins enables CORS for origins with default settings. An empty
// list leaves CORS disabled.
func WithAllowedOrigins(origins ...string) SecurityHeadersOption {
	if len(origins) == 0 {
		return func(*SecurityHeadersProcessor) {}
	}
	return WithCORS(&CORSConfig{AllowedOrigins: origins})
}

// Process implements endpoint.Processor.
func (p *SecurityHeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if v := formatHSTS(p.HSTS); v != "" {
		h.Set("Strict-Transport-Security", v)
	}
	setIf(h, "Referrer-Policy", p.ReferrerPolicy)
	setIf(h, "X-Frame-Options", p.FrameOptions)
	setIf(h, "Content-Security-Policy", p.ContentSecurityPolicy)
	setIf(h, "Cross-Origin-Resource-Policy", p.CrossOriginResourcePolicy)
	if p.ContentTypeOptions {
		h.Set("X-Content-Type-Options", "nosniff")
	}

	if p.CORS != nil {
		if origin := r.Header.Get("Origin"); origin != "" {
			setCORSHeaders(h, r, origin, p.CORS)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				return endpoint.Error(http.StatusNoContent, "", nil)
			}
		}
	}
	return next(w, r)
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

func formatHSTS(c *HSTSConfig) string {
	if c == nil || c.MaxAge <= 0 {
		return ""
	}
	parts := []string{"max-age=" + strconv.Itoa(c.MaxAge)}
	if c.IncludeSubDomains {
		parts = append(parts, "includeSubDomains")
	}
	if c.Preload {
		parts = append(parts, "preload")
	}
	return strings.Join(parts, "; ")
}

// setCORSHeaders sets CORS headers for a request carrying an Origin header.
func setCORSHeaders(h http.Header, r *http.Request, origin string, c *CORSConfig) {
	switch {
	case slices.Contains(c.AllowedOrigins, origin):
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	case slices.Contains(c.AllowedOrigins, "*") && !c.AllowCredentials:
		// A wildcard origin must never be combined with credentials.
		h.Set("Access-Control-Allow-Origin", "*")
	default:
		return
	}
	if c.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(c.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
	}
	if r.Method == http.MethodOptions {
		if len(c.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
		}
		if len(c.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
		}
		if c.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
		}
	}
}

var _ endpoint.Processor = (*SecurityHeadersProcessor)(nil)
