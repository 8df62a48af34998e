package rpc

// RawValue is a single value still in its wire encoding (JSON text or CBOR bytes,
// depending on the codec that produced it).
type RawValue []byte

// Request is a decoded call.
type Request struct {
	// ID is passed through to the response unchanged. It is nil when the request
	// carried no id (or an explicit null).
	ID RawValue
	// Method is the fully qualified "<Handler>.<Method>" name.
	Method string
	// Params holds the positional arguments, in order.
	Params []RawValue

	// paramsMalformed records a params member that was present but not an array.
	// It is reported as invalid params once the method has been resolved.
	paramsMalformed bool
}

func requestID(req *Request) RawValue {
	if req == nil {
		return nil
	}
	return req.ID
}
