// Package transfer serializes payloads crossing an actor channel. Values
// are reduced to primitives, byte buffers, slices and Objects; types that
// need more must be registered with an explicit encoder and decoder.
package transfer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// NameKey is the Object key carrying the tag of a registered type.
const NameKey = "$name"

const (
	setName    = "Set"
	errorName  = "Error"
	objectName = "Object"
)

var (
	ErrUnregisteredType = errors.New("unregistered type")
	ErrUnsupportedType  = errors.New("unsupported type")
	ErrReservedName     = errors.New("$name is reserved for serialization")
	ErrDuplicateName    = errors.New("type name already registered")
	ErrMalformed        = errors.New("malformed serialized value")
)

type (
	Encoder func(v any, tl *TransferList) (Object, error)
	Decoder func(o Object) (any, error)
)

type entry struct {
	name string
	typ  reflect.Type
	enc  Encoder
	dec  Decoder
}

// Registry maps type tags to encode/decode pairs. It is built once at
// startup and shared by both ends of a channel; lookups are safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*entry
	byType map[reflect.Type]*entry
	errs   map[string]error
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
		byType: make(map[reflect.Type]*entry),
		errs:   make(map[string]error),
	}
}

// Register binds name to values of type T.
func Register[T any](r *Registry, name string, enc func(T, *TransferList) (Object, error), dec func(Object) (T, error)) error {
	typ := reflect.TypeFor[T]()
	e := &entry{
		name: name,
		typ:  typ,
		enc: func(v any, tl *TransferList) (Object, error) {
			return enc(v.(T), tl)
		},
		dec: func(o Object) (any, error) {
			return dec(o)
		},
	}
	return r.add(e)
}

// MustRegister is Register for init-time wiring.
func MustRegister[T any](r *Registry, name string, enc func(T, *TransferList) (Object, error), dec func(Object) (T, error)) {
	if err := Register(r, name, enc, dec); err != nil {
		panic(err)
	}
}

// RegisterError lets err survive a round trip: a decoded error carrying code
// matches err with errors.Is.
func (r *Registry) RegisterError(code string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[code] = err
}

func (r *Registry) add(e *entry) error {
	switch e.name {
	case "", setName, errorName, objectName:
		return fmt.Errorf("%w: %q", ErrDuplicateName, e.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[e.name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, e.name)
	}
	if prev, ok := r.byType[e.typ]; ok {
		return fmt.Errorf("%w: %s already registered as %q", ErrDuplicateName, e.typ, prev.name)
	}
	r.byName[e.name] = e
	r.byType[e.typ] = e
	return nil
}

func (r *Registry) lookupType(t reflect.Type) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	return e, ok
}

func (r *Registry) lookupName(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

func (r *Registry) errorCode(err error) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for code, target := range r.errs {
		if errors.Is(err, target) {
			return code
		}
	}
	return ""
}

func (r *Registry) sentinel(code string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errs[code]
}
