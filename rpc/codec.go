package rpc

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec is a wire format for request and response envelopes.
//
// DecodeRequest returns a parse error (and no request) for payloads that are not
// well-formed, and an invalid request error, together with whatever request could
// be recovered, for well-formed payloads that are not requests.
type Codec interface {
	// Name is a short identifier, e.g. "json".
	Name() string
	// ContentType is the media type of encoded responses.
	ContentType() string
	DecodeRequest(payload []byte) (*Request, *Error)
	EncodeResponse(resp *Response) ([]byte, error)
	// Decode converts one raw argument into v, which must be a non-nil pointer.
	Decode(raw RawValue, v any) error
}

var (
	// JSON is the default codec.
	JSON Codec = jsonCodec{}
	// CBOR encodes envelopes as CBOR maps with the same keys as JSON.
	CBOR Codec = cborCodec{}
)

type jsonCodec struct{}

type jsonEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Method json.RawMessage `json:"method"`
	Params json.RawMessage `json:"params"`
}

type jsonResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) ContentType() string { return "application/json; charset=utf-8" }

func (jsonCodec) DecodeRequest(payload []byte) (*Request, *Error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || !json.Valid(payload) || isJSONNull(payload) {
		return nil, parseError()
	}
	var env jsonEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, invalidRequest("invalid request")
	}

	req := &Request{}
	if !isJSONNull(env.ID) {
		req.ID = RawValue(env.ID)
	}

	var method string
	if len(env.Method) == 0 || json.Unmarshal(env.Method, &method) != nil || strings.TrimSpace(method) == "" {
		return req, invalidRequest("method required")
	}
	req.Method = method

	if !isJSONNull(env.Params) {
		var list []json.RawMessage
		if err := json.Unmarshal(env.Params, &list); err != nil {
			req.paramsMalformed = true
		} else {
			req.Params = make([]RawValue, len(list))
			for i, p := range list {
				req.Params[i] = RawValue(p)
			}
		}
	}
	return req, nil
}

func (jsonCodec) EncodeResponse(resp *Response) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(jsonResponse{
		ID:     json.RawMessage(resp.ID),
		Result: resp.Result,
		Error:  resp.Error,
	})
	if err != nil {
		return nil, err
	}
	// json.Encoder appends a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (jsonCodec) Decode(raw RawValue, v any) error {
	return json.Unmarshal(raw, v)
}

func isJSONNull(raw []byte) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

var (
	cborDecMode = mustDecMode(cbor.DecOptions{
		// Decode untyped maps the way encoding/json does, so handlers taking
		// any or map[string]any see the same shapes for both codecs.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	})
	cborEncMode = mustEncMode(cbor.EncOptions{Sort: cbor.SortCoreDeterministic})
)

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic("rpc: cbor decode options: " + err.Error())
	}
	return dm
}

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic("rpc: cbor encode options: " + err.Error())
	}
	return em
}

type cborCodec struct{}

type cborEnvelope struct {
	ID     cbor.RawMessage `cbor:"id"`
	Method cbor.RawMessage `cbor:"method"`
	Params cbor.RawMessage `cbor:"params"`
}

type cborResponse struct {
	ID     cbor.RawMessage `cbor:"id"`
	Result any             `cbor:"result,omitempty"`
	Error  *Error          `cbor:"error,omitempty"`
}

func (cborCodec) Name() string        { return "cbor" }
func (cborCodec) ContentType() string { return "application/cbor" }

func (cborCodec) DecodeRequest(payload []byte) (*Request, *Error) {
	if len(payload) == 0 || cborDecMode.Wellformed(payload) != nil || isCBORNull(payload) {
		return nil, parseError()
	}
	var env cborEnvelope
	if err := cborDecMode.Unmarshal(payload, &env); err != nil {
		return nil, invalidRequest("invalid request")
	}

	req := &Request{}
	if !isCBORNull(env.ID) {
		req.ID = RawValue(env.ID)
	}

	var method string
	if len(env.Method) == 0 || cborDecMode.Unmarshal(env.Method, &method) != nil || strings.TrimSpace(method) == "" {
		return req, invalidRequest("method required")
	}
	req.Method = method

	if !isCBORNull(env.Params) {
		var list []cbor.RawMessage
		if err := cborDecMode.Unmarshal(env.Params, &list); err != nil {
			req.paramsMalformed = true
		} else {
			req.Params = make([]RawValue, len(list))
			for i, p := range list {
				req.Params[i] = RawValue(p)
			}
		}
	}
	return req, nil
}

func (cborCodec) EncodeResponse(resp *Response) ([]byte, error) {
	return cborEncMode.Marshal(cborResponse{
		ID:     cbor.RawMessage(resp.ID),
		Result: resp.Result,
		Error:  resp.Error,
	})
}

func (cborCodec) Decode(raw RawValue, v any) error {
	return cborDecMode.Unmarshal(raw, v)
}

// isCBORNull reports an absent value, null (0xf6) or undefined (0xf7).
func isCBORNull(raw []byte) bool {
	return len(raw) == 0 || (len(raw) == 1 && (raw[0] == 0xf6 || raw[0] == 0xf7))
}
