package option

import "fmt"

// Carrier is implemented by every object exposing extensible metadata:
// transaction infos, sessions, xids, driver errors, result states.
//
// ValueOf returns the raw stored value. Callers use the typed helpers
// ValueOf and NonNullOf, which treat a value of the wrong type as absent.
type Carrier interface {
	ValueOf(key Key) (any, bool)
}

// Func adapts a lookup function to Carrier.
type Func func(key Key) (any, bool)

// ValueOf calls f.
func (f Func) ValueOf(key Key) (any, bool) {
	if f == nil {
		return nil, false
	}
	return f(key)
}

type emptyCarrier struct{}

func (emptyCarrier) ValueOf(Key) (any, bool) {
	return nil, false
}

// Empty is the carrier that never has a value. Executors pass Empty when they
// have nothing extra to report; IsEmpty detects it without a lookup.
var Empty Carrier = emptyCarrier{}

// IsEmpty reports whether c is the Empty sentinel.
func IsEmpty(c Carrier) bool {
	_, ok := c.(emptyCarrier)
	return ok
}

// ValueOf returns the value of o held by c, or false when it is absent or of
// another type.
func ValueOf[T any](c Carrier, o *Option[T]) (T, bool) {
	var zero T
	if c == nil || o == nil || IsEmpty(c) {
		return zero, false
	}
	v, ok := c.ValueOf(o)
	if !ok || v == nil {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// NonNullOf is ValueOf that reports absence as *ValueAbsentError.
func NonNullOf[T any](c Carrier, o *Option[T]) (T, error) {
	v, ok := ValueOf(c, o)
	if !ok {
		return v, &ValueAbsentError{Key: o}
	}
	return v, nil
}

// Bool returns the boolean value of o, false when absent.
func Bool(c Carrier, o *Option[bool]) bool {
	v, ok := ValueOf(c, o)
	return ok && v
}

// ValueAbsentError 必需的 option 值不存在
type ValueAbsentError struct {
	Key Key
}

func (e *ValueAbsentError) Error() string {
	return fmt.Sprintf("value of %s is absent", e.Key)
}

// Is matches any *ValueAbsentError.
func (e *ValueAbsentError) Is(target error) bool {
	_, ok := target.(*ValueAbsentError)
	return ok
}
