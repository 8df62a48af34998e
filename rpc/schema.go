package rpc

import (
	"reflect"
	"strings"
	"time"
)

// Schema describes the registered handlers for client code generators.
type Schema struct {
	Handlers   []HandlerSchema   `json:"handlers"`
	Interfaces []InterfaceSchema `json:"interfaces"`
}

type HandlerSchema struct {
	Name    string         `json:"name"`
	Methods []MethodSchema `json:"methods"`
}

type MethodSchema struct {
	Name       string        `json:"name"`
	Parameters []ParamSchema `json:"parameters"`
	ReturnType string        `json:"returnType"`
}

type ParamSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
}

// InterfaceSchema describes a named struct type used by some method.
type InterfaceSchema struct {
	Name       string           `json:"name"`
	Properties []PropertySchema `json:"properties"`
}

type PropertySchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

var timeType = reflect.TypeFor[time.Time]()

// Schema describes every handler and method in registration order. Context
// parameters are not part of the wire contract and are left out.
func (r *Registry) Schema() Schema {
	b := &schemaBuilder{seen: make(map[reflect.Type]bool)}
	s := Schema{Handlers: make([]HandlerSchema, 0, len(r.order))}
	for _, h := range r.order {
		hs := HandlerSchema{Name: h.Name, Methods: make([]MethodSchema, 0, len(h.order))}
		for _, m := range h.Methods() {
			ms := MethodSchema{Name: m.Name, Parameters: []ParamSchema{}, ReturnType: b.typeName(m.Result)}
			for _, p := range m.Params {
				if p.Injected {
					continue
				}
				ms.Parameters = append(ms.Parameters, ParamSchema{
					Name:     p.Name,
					Type:     b.typeName(p.Type),
					Optional: p.Optional,
				})
			}
			hs.Methods = append(hs.Methods, ms)
		}
		s.Handlers = append(s.Handlers, hs)
	}
	s.Interfaces = b.interfaces
	if s.Interfaces == nil {
		s.Interfaces = []InterfaceSchema{}
	}
	return s
}

// TypeName returns the client type name for t. A nil type is "void".
func TypeName(t reflect.Type) string {
	b := &schemaBuilder{seen: make(map[reflect.Type]bool)}
	return b.typeName(t)
}

type schemaBuilder struct {
	seen       map[reflect.Type]bool
	interfaces []InterfaceSchema
}

func (b *schemaBuilder) typeName(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	if t == timeType {
		return "string"
	}
	switch t.Kind() {
	case reflect.Pointer:
		return b.typeName(t.Elem())
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "string"
		}
		return b.typeName(t.Elem()) + "[]"
	case reflect.Array:
		return b.typeName(t.Elem()) + "[]"
	case reflect.Struct:
		if t.Name() == "" {
			return "any"
		}
		b.addInterface(t)
		return t.Name()
	}
	return "any"
}

func (b *schemaBuilder) addInterface(t reflect.Type) {
	if b.seen[t] {
		return
	}
	b.seen[t] = true
	// Reserve the slot first so nested types are listed after their parent.
	idx := len(b.interfaces)
	b.interfaces = append(b.interfaces, InterfaceSchema{Name: t.Name()})
	props := b.properties(t, []PropertySchema{})
	b.interfaces[idx].Properties = props
}

func (b *schemaBuilder) properties(t reflect.Type, props []PropertySchema) []PropertySchema {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, skip := jsonName(f)
		if skip {
			continue
		}
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				props = b.properties(ft, props)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		props = append(props, PropertySchema{Name: name, Type: b.typeName(f.Type)})
	}
	return props
}

// jsonName returns the json tag name of f, or skip when the field is ignored.
func jsonName(f reflect.StructField) (name string, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	if tag == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(tag, ",")
	return name, false
}
