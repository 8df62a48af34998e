package endpoint

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// JSONRenderer serializes Value as JSON.
//
// The value is encoded before anything is written, so an encoding failure is
// returned as an error and the handler responds with 500. HTML characters are
// not escaped. Indent, when set, pretty-prints the output.
type JSONRenderer struct {
	Status int
	Value  any
	Indent string
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if jr.Indent != "" {
		enc.SetIndent("", jr.Indent)
	}
	if err := enc.Encode(jr.Value); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOr(jr.Status, http.StatusOK))
	_, err := w.Write(buf.Bytes())
	return err
}
