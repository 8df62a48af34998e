package rpc

import "context"

// bindParams matches declared parameters against the supplied raw arguments.
// Injected parameters take ctx and consume nothing. Arguments past the last
// declared parameter are ignored. Binding either completes or fails as a whole.
func bindParams(ctx context.Context, c Codec, params []ParamSpec, raw []RawValue) ([]any, *Error) {
	args := make([]any, len(params))
	next := 0
	for i, p := range params {
		switch {
		case p.Injected:
			args[i] = ctx
		case next < len(raw):
			if p.decode == nil {
				return nil, NewError(CodeInvalidParams, "invalid param: "+p.Name)
			}
			v, err := p.decode(c, raw[next])
			if err != nil {
				return nil, NewError(CodeInvalidParams, "invalid param: "+p.Name)
			}
			args[i] = v
			next++
		case p.Optional:
			args[i] = p.Default
		default:
			return nil, NewError(CodeInvalidParams, "missing param: "+p.Name)
		}
	}
	return args, nil
}
