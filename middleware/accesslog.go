package middleware

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mnehpets/typedrpc/endpoint"
)

// AccessLog logs one line per request at info level, or error level for 5xx
// responses. Errors returned by the chain are logged in full. A nil logger
// uses slog.Default().
func AccessLog(logger *slog.Logger) endpoint.Processor {
	return endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		err := next(sw, r)

		status := sw.status
		if err != nil {
			// The handler writes the error response after the chain returns.
			status = endpoint.StatusOf(err)
		} else if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("bytes", sw.bytes),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote", r.RemoteAddr),
		}
		if err != nil {
			// Error bodies only carry EndpointError messages; the log keeps the detail.
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		l.LogAttrs(r.Context(), level, "http request", attrs...)
		return err
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack supports websocket upgrades behind the access log.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return http.NewResponseController(w.ResponseWriter).Hijack()
}
