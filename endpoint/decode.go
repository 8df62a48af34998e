package endpoint

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit is the maximum byte length of a field value when the field
// has no maxLength tag.
var defaultFieldLimit = 16 * 1024

// Unmarshal populates dst, a non-nil pointer to a struct, from the request.
//
// Supported struct tags:
//   - `path:"name"`: r.PathValue(name)
//   - `query:"name"`: URL query values
//   - `header:"Name"`: request header values
//   - `body:""`: the request body
//   - `maxLength:"n"`: maximum byte length of the value; "0" disables the limit
//
// An empty name defaults to the lowercased field name. A field without data is
// left unchanged. Body fields of type []byte or string receive the raw body;
// any other type is decoded as JSON and requires a JSON content type.
//
// A body read that fails with *http.MaxBytesError maps to 413, an oversized
// field to 400 and a malformed value to 400.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}

	t := root.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		src, ok := fieldSource(sf)
		if !ok {
			continue
		}
		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return err
		}
		values, found, err := src.fetch(r)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		for _, val := range values {
			if limit > 0 && len(val) > limit {
				return Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q: value exceeds max length %d", src.kind, src.name, limit))
			}
		}
		if err := setField(root.Field(i), values, src.kind == "body"); err != nil {
			if src.kind == "body" && !isRawType(sf.Type) && !isJSONRequest(r) {
				return Error(http.StatusUnsupportedMediaType, "", fmt.Errorf("endpoint: decode: body: %w", err))
			}
			return Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q: %w", src.kind, src.name, err))
		}
	}
	return nil
}

type source struct {
	kind string
	name string
}

var sourceTags = []string{"path", "query", "header", "body"}

func fieldSource(sf reflect.StructField) (source, bool) {
	for _, kind := range sourceTags {
		val, ok := sf.Tag.Lookup(kind)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(val, ",")
		name = strings.TrimSpace(name)
		if name == "-" {
			return source{}, false
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		return source{kind: kind, name: name}, true
	}
	return source{}, false
}

func (s source) fetch(r *http.Request) ([][]byte, bool, error) {
	switch s.kind {
	case "path":
		v := r.PathValue(s.name)
		if v == "" {
			return nil, false, nil
		}
		return [][]byte{[]byte(v)}, true, nil
	case "query":
		if r.URL == nil {
			return nil, false, nil
		}
		return asBytes(r.URL.Query()[s.name])
	case "header":
		return asBytes(r.Header[http.CanonicalHeaderKey(s.name)])
	case "body":
		if r.Body == nil || r.Body == http.NoBody {
			return nil, false, nil
		}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, false, Error(http.StatusRequestEntityTooLarge, "", err)
			}
			return nil, false, Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
		}
		return [][]byte{b}, true, nil
	}
	return nil, false, nil
}

func asBytes(values []string) ([][]byte, bool, error) {
	if len(values) == 0 {
		return nil, false, nil
	}
	out := make([][]byte, len(values))
	for i, s := range values {
		out[i] = []byte(s)
	}
	return out, true, nil
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	val, ok := sf.Tag.Lookup("maxLength")
	if !ok {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: invalid maxLength %q", val))
	}
	return n, nil
}

func isRawType(t reflect.Type) bool {
	return t.Kind() == reflect.String || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8)
}

func isJSONRequest(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

func setField(v reflect.Value, values [][]byte, body bool) error {
	if body && !isRawType(v.Type()) {
		return json.Unmarshal(values[0], v.Addr().Interface())
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8 {
		s := reflect.MakeSlice(v.Type(), len(values), len(values))
		for i, b := range values {
			if err := setScalar(s.Index(i), b); err != nil {
				return err
			}
		}
		v.Set(s)
		return nil
	}
	return setScalar(v, values[0])
}

func setScalar(v reflect.Value, b []byte) error {
	if v.Kind() != reflect.Pointer && v.Addr().Type().Implements(textUnmarshalerType) {
		return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText(b)
	}
	s := string(b)
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return setScalar(v.Elem(), b)
	case reflect.String:
		v.SetString(s)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported type %s", v.Type())
		}
		v.SetBytes(append([]byte(nil), b...))
	case reflect.Bool:
		x, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(x)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(x)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		x, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Float32, reflect.Float64:
		x, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(x)
	default:
		return fmt.Errorf("unsupported type %s", v.Type())
	}
	return nil
}
