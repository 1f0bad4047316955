package option

import (
	"fmt"
	"reflect"

	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// Key is the untyped view of an Option. Carriers are keyed by Key so that
// one lookup function can serve options of any value type.
type Key interface {
	Name() string
	Type() reflect.Type
	String() string
}

// Option is an interned, typed capability key. Two calls of From with the
// same name and type return the same *Option, so pointer comparison is a
// valid identity check.
type Option[T any] struct {
	name string
	typ  reflect.Type
}

// From interns (name, T) in the default registry.
func From[T any](name string) (*Option[T], error) {
	return FromRegistry[T](DefaultRegistry(), name)
}

// MustFrom is like From but panics on error. It is meant for package-level
// option variables whose names are constants.
func MustFrom[T any](name string) *Option[T] {
	o, err := From[T](name)
	if err != nil {
		panic(err)
	}
	return o
}

// FromRegistry interns (name, T) in r.
func FromRegistry[T any](r *Registry, name string) (*Option[T], error) {
	if r == nil {
		return nil, errs.NewError(errs.ErrCodeNullArgument, "option registry is nil", nil)
	}
	if name == "" {
		return nil, errs.NewError(errs.ErrCodeInvalidParam, "option name must not be empty", nil)
	}

	typ := reflect.TypeFor[T]()
	key := r.intern(name, typ, func() Key {
		return &Option[T]{name: name, typ: typ}
	})

	o, ok := key.(*Option[T])
	if !ok {
		return nil, errs.Errorf(errs.ErrCodeInternal, "option %s interned as %T", key, key)
	}
	return o, nil
}

// Name returns the display name. Different options may share a name when
// their value types differ.
func (o *Option[T]) Name() string {
	return o.name
}

// Type returns the declared value type.
func (o *Option[T]) Type() reflect.Type {
	return o.typ
}

// Equal reports whether other has the same name and value type.
func (o *Option[T]) Equal(other Key) bool {
	if other == nil {
		return false
	}
	return o.name == other.Name() && o.typ == other.Type()
}

func (o *Option[T]) String() string {
	return fmt.Sprintf("Option[%s:%s]", o.name, o.typ)
}

// Conforms reports whether value may be stored under key.
func Conforms(key Key, value any) bool {
	if key == nil || value == nil {
		return false
	}
	return reflect.TypeOf(value).AssignableTo(key.Type())
}
