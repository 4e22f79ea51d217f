package transfer

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Object is the serialized form of a map or a registered type.
type Object map[string]any

// Set is an unordered collection of comparable values.
type Set map[any]struct{}

func NewSet(values ...any) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// TransferList records byte buffers handed over without copying. After a
// send the sender must not touch them again.
type TransferList struct {
	Buffers [][]byte
}

func (tl *TransferList) Add(b []byte) {
	if tl == nil || b == nil {
		return
	}
	tl.Buffers = append(tl.Buffers, b)
}

func (tl *TransferList) Len() int {
	if tl == nil {
		return 0
	}
	return len(tl.Buffers)
}

// RemoteError is an error that crossed a channel. Code is set when the
// original matched a registered error, and Unwrap then returns that error.
type RemoteError struct {
	Code    string
	Message string

	sentinel error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.sentinel
}

// Serialize reduces v to wire form. Byte slices are moved into tl.
func (r *Registry) Serialize(v any, tl *TransferList) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x, nil
	case []byte:
		tl.Add(x)
		return x, nil
	case error:
		return r.serializeError(x), nil
	case Set:
		return r.serializeSet(x, tl)
	case Object:
		return r.serializeMap(x, tl)
	case map[string]any:
		return r.serializeMap(x, tl)
	case []any:
		return r.serializeSlice(reflect.ValueOf(x), tl)
	}

	rv := reflect.ValueOf(v)
	if e, ok := r.lookupType(rv.Type()); ok {
		obj, err := e.enc(v, tl)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", e.name, err)
		}
		if _, reserved := obj[NameKey]; reserved {
			return nil, fmt.Errorf("%w: type %q", ErrReservedName, e.name)
		}
		obj[NameKey] = e.name
		return obj, nil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return r.serializeSlice(rv, tl)
	case reflect.Struct, reflect.Pointer, reflect.Interface, reflect.Map:
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, rv.Type())
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

func (r *Registry) serializeSlice(rv reflect.Value, tl *TransferList) (any, error) {
	out := make([]any, rv.Len())
	for i := range out {
		item, err := r.Serialize(rv.Index(i).Interface(), tl)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = item
	}
	return out, nil
}

func (r *Registry) serializeMap(m map[string]any, tl *TransferList) (any, error) {
	if _, reserved := m[NameKey]; reserved {
		return nil, ErrReservedName
	}
	out := make(Object, len(m))
	for k, v := range m {
		item, err := r.Serialize(v, tl)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = item
	}
	return out, nil
}

func (r *Registry) serializeSet(s Set, tl *TransferList) (any, error) {
	out := Object{NameKey: setName}
	i := 1
	for v := range s {
		item, err := r.Serialize(v, tl)
		if err != nil {
			return nil, err
		}
		out[strconv.Itoa(i)] = item
		i++
	}
	return out, nil
}

func (r *Registry) serializeError(err error) Object {
	o := Object{NameKey: errorName, "message": err.Error()}
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Code != "" {
		o["code"] = remote.Code
	} else if code := r.errorCode(err); code != "" {
		o["code"] = code
	}
	return o
}

// Deserialize rebuilds a value produced by Serialize.
func (r *Registry) Deserialize(v any) (any, error) {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			d, err := r.Deserialize(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = d
		}
		return out, nil
	case Object:
		return r.deserializeObject(x)
	case map[string]any:
		return r.deserializeObject(x)
	}
	return v, nil
}

func (r *Registry) deserializeObject(o Object) (any, error) {
	name, _ := o[NameKey].(string)
	switch name {
	case "":
		out := make(Object, len(o))
		for k, item := range o {
			d, err := r.Deserialize(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = d
		}
		return out, nil
	case setName:
		keys := make([]string, 0, len(o))
		for k := range o {
			if k != NameKey {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		s := make(Set, len(keys))
		for _, k := range keys {
			d, err := r.Deserialize(o[k])
			if err != nil {
				return nil, err
			}
			if d != nil && !reflect.TypeOf(d).Comparable() {
				return nil, fmt.Errorf("%w: set member %T", ErrMalformed, d)
			}
			s[d] = struct{}{}
		}
		return s, nil
	case errorName:
		msg, _ := o["message"].(string)
		code, _ := o["code"].(string)
		return &RemoteError{Code: code, Message: msg, sentinel: r.sentinel(code)}, nil
	}

	e, ok := r.lookupName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredType, name)
	}
	fields := make(Object, len(o))
	for k, item := range o {
		if k == NameKey {
			continue
		}
		d, err := r.Deserialize(item)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, k, err)
		}
		fields[k] = d
	}
	out, err := e.dec(fields)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", name, err)
	}
	return out, nil
}

// DeserializeError turns a serialized error back into an error. nil stays
// nil.
func (r *Registry) DeserializeError(v any) error {
	if v == nil {
		return nil
	}
	d, err := r.Deserialize(v)
	if err != nil {
		return err
	}
	if e, ok := d.(error); ok {
		return e
	}
	return fmt.Errorf("%w: error field holds %T", ErrMalformed, d)
}
