package util

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Optional marks a value that may be absent: a nullable column, a filter that
// was not given, a field a request left out.
type Optional[T any] struct {
	Val   T
	IsSet bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Val: v, IsSet: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

// FromPtr is Some(*p), or None when p is nil.
func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// MarshalJSON renders None as null.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.IsSet {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

// Scan implements sql.Scanner. SQL NULL becomes None.
func (o *Optional[T]) Scan(value any) error {
	if value == nil {
		*o = None[T]()
		return nil
	}

	var v T
	switch t := any(&v).(type) {
	case interface{ Scan(any) error }:
		if err := t.Scan(value); err != nil {
			return err
		}
	default:
		typed, ok := value.(T)
		if !ok {
			return fmt.Errorf("util: cannot scan %T into Optional[%T]", value, v)
		}
		v = typed
	}

	*o = Some(v)
	return nil
}

// Value implements driver.Valuer. None is written as NULL.
func (o Optional[T]) Value() (driver.Value, error) {
	if !o.IsSet {
		return nil, nil
	}
	if valuer, ok := any(o.Val).(driver.Valuer); ok {
		return valuer.Value()
	}
	return o.Val, nil
}
