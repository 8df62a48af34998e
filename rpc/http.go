package rpc

import (
	"mime"
	"net/http"
	"strings"

	"github.com/mnehpets/typedrpc/endpoint"
)

// rpcParams captures the raw request body. Decoding is left to the codec, which
// reports malformed payloads as RPC errors instead of HTTP errors.
type rpcParams struct {
	Body        []byte `body:"" maxLength:"0"`
	ContentType string `header:"Content-Type"`
}

// Endpoint serves RPC requests over HTTP. Pass it to endpoint.Handler, or use
// Handler. The body limit is left to the host (see middleware.BodyLimit).
//
// The codec follows Content-Type: JSON when absent, application/json or any
// +json type; CBOR for application/cbor. Every RPC outcome is a 200 response.
func (d *Dispatcher) Endpoint(w http.ResponseWriter, r *http.Request, params rpcParams) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "RPC requires POST method", nil)
	}
	c, ok := d.codecFor(params.ContentType)
	if !ok {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json or application/cbor", nil)
	}

	ctx := WithPeer(r.Context(), Peer{
		Transport:  "http",
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header,
	})
	return &endpoint.BytesRenderer{
		Body:        d.ServeCodec(ctx, c, params.Body),
		ContentType: c.ContentType(),
	}, nil
}

// Handler returns an http.Handler for Endpoint running the given processors
// first.
func (d *Dispatcher) Handler(processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(d.Endpoint, processors...)
}

// SchemaHandler serves the registry schema as JSON.
func (d *Dispatcher) SchemaHandler(processors ...endpoint.Processor) http.Handler {
	return endpoint.Handler(func(w http.ResponseWriter, r *http.Request, p struct {
		Pretty bool `query:"pretty"`
	}) (endpoint.Renderer, error) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			return nil, endpoint.Error(http.StatusMethodNotAllowed, "", nil)
		}
		jr := &endpoint.JSONRenderer{Value: d.registry.Schema()}
		if p.Pretty {
			jr.Indent = "  "
		}
		return jr, nil
	}, processors...)
}

func (d *Dispatcher) codecFor(contentType string) (Codec, bool) {
	if strings.TrimSpace(contentType) == "" {
		return d.codec, true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, false
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return JSON, true
	case mt == "application/cbor" || strings.HasSuffix(mt, "+cbor"):
		return CBOR, true
	}
	return nil, false
}
