package endpoint

import "net/http"

// StringRenderer writes Body with an optional status code and content type.
//
// When ContentType is empty, it defaults to "text/plain; charset=utf-8".
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

// setContentType sets the Content-Type header unless an outer processor already
// set one.
func setContentType(w http.ResponseWriter, contentType string) {
	if w.Header().Get("Content-Type") == "" {
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
	}
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	setContentType(w, sr.ContentType)
	w.WriteHeader(statusOr(sr.Status, http.StatusOK))
	if sr.Body == "" {
		return nil
	}
	_, err := w.Write([]byte(sr.Body))
	return err
}

// BytesRenderer writes an already encoded body. ContentType is always set.
type BytesRenderer struct {
	Status      int
	Body        []byte
	ContentType string
}

func (br *BytesRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	ct := br.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(statusOr(br.Status, http.StatusOK))
	if len(br.Body) == 0 {
		return nil
	}
	_, err := w.Write(br.Body)
	return err
}

// NoContentRenderer writes a status code with no body. The default is 204.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(statusOr(ncr.Status, http.StatusNoContent))
	return nil
}

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}
