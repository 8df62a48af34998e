package rpc

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Peer describes where a call came from. Transports attach it with WithPeer.
type Peer struct {
	// Transport names the transport, e.g. "http" or "websocket".
	Transport  string
	RemoteAddr string
	// Header holds transport metadata such as HTTP request headers. It must
	// not be modified by handlers.
	Header http.Header
}

// Call is the metadata of one invocation. It is available to handlers through
// an injected context parameter.
type Call struct {
	// ID is unique per invocation.
	ID      string
	Method  string
	Handler string
	Started time.Time
	Peer    Peer
}

type peerKey struct{}
type callKey struct{}

// WithPeer returns a context carrying p.
func WithPeer(ctx context.Context, p Peer) context.Context {
	return context.WithValue(ctx, peerKey{}, p)
}

// PeerFromContext returns the Peer attached by the transport, if any.
func PeerFromContext(ctx context.Context) (Peer, bool) {
	p, ok := ctx.Value(peerKey{}).(Peer)
	return p, ok
}

// CallFromContext returns the Call of the current invocation.
func CallFromContext(ctx context.Context) (*Call, bool) {
	c, ok := ctx.Value(callKey{}).(*Call)
	return c, ok && c != nil
}

func newCall(ctx context.Context, handler, method string) *Call {
	c := &Call{
		ID:      uuid.NewString(),
		Method:  handler + "." + method,
		Handler: handler,
		Started: time.Now(),
	}
	c.Peer, _ = PeerFromContext(ctx)
	return c
}

func withCall(ctx context.Context, c *Call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}
