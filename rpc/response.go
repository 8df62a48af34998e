package rpc

// Response is the envelope produced for every request.
//
// Result and Error are mutually exclusive; the constructors below are the only
// way the dispatcher builds responses.
type Response struct {
	ID     RawValue
	Result any
	Error  *Error
}

func resultResponse(id RawValue, result any) *Response {
	return &Response{ID: id, Result: result}
}

func errorResponse(id RawValue, err *Error) *Response {
	if err == nil {
		err = internalError()
	}
	return &Response{ID: id, Error: err}
}
