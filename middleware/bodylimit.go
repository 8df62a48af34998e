package middleware

import (
	"net/http"

	"github.com/mnehpets/typedrpc/endpoint"
)

// BodyLimit caps the request body at n bytes. Requests declaring a larger
// Content-Length are rejected with 413 before the endpoint runs; bodies that
// grow past the limit while being read fail decoding with 413.
func BodyLimit(n int64) endpoint.Processor {
	return endpoint.ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		if n <= 0 {
			return next(w, r)
		}
		if r.ContentLength > n {
			return endpoint.Error(http.StatusRequestEntityTooLarge, "", nil)
		}
		if r.Body != nil && r.Body != http.NoBody {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		return next(w, r)
	})
}
