package transfer

import (
	"fmt"
	"math"
)

// Field accessors for decoders. Numbers may arrive as any Go numeric type.

func (o Object) String(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformed, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is %T, not string", ErrMalformed, key, v)
	}
	return s, nil
}

func (o Object) Int(key string) (int, error) {
	f, err := o.number(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func (o Object) Uint64(key string) (uint64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrMalformed, key)
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int:
		if n >= 0 {
			return uint64(n), nil
		}
	case int64:
		if n >= 0 {
			return uint64(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %q is %T, not unsigned", ErrMalformed, key, v)
}

func (o Object) Bool(key string) (bool, error) {
	v, ok := o[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q is %T, not bool", ErrMalformed, key, v)
	}
	return b, nil
}

// Bytes returns a byte buffer field; a missing key yields nil.
func (o Object) Bytes(key string) ([]byte, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, not bytes", ErrMalformed, key, v)
	}
	return b, nil
}

func (o Object) number(key string) (float64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", ErrMalformed, key)
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %q is not integral", ErrMalformed, key)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %q is %T, not a number", ErrMalformed, key, v)
}
