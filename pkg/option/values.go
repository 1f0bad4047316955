package option

import (
	"github.com/kasuganosora/sqlsession/pkg/errs"
)

// Values is an immutable map carrier. Builders produce one on Build and never
// hand out the map they mutated.
type Values map[Key]any

// ValueOf implements Carrier.
func (v Values) ValueOf(key Key) (any, bool) {
	value, ok := v[key]
	return value, ok
}

// Len 返回值的数量
func (v Values) Len() int {
	return len(v)
}

// Carrier returns Empty for an empty map, v otherwise.
func (v Values) Carrier() Carrier {
	if len(v) == 0 {
		return Empty
	}
	return v
}

// ValuesBuilder collects option values. Not safe for concurrent use.
type ValuesBuilder struct {
	values Values
	err    error
}

// NewValuesBuilder 创建 Values 构建器
func NewValuesBuilder() *ValuesBuilder {
	return &ValuesBuilder{}
}

// Set stores value under key. A value that does not conform to the key's
// declared type is remembered as an error and reported by Build.
func (b *ValuesBuilder) Set(key Key, value any) *ValuesBuilder {
	if b.err != nil {
		return b
	}
	if key == nil {
		b.err = errs.NewError(errs.ErrCodeNullArgument, "option key is nil", nil)
		return b
	}
	if value == nil {
		delete(b.values, key)
		return b
	}
	if !Conforms(key, value) {
		b.err = errs.Errorf(errs.ErrCodeInvalidParam, "value %T does not conform to %s", value, key)
		return b
	}
	if b.values == nil {
		b.values = make(Values)
	}
	b.values[key] = value
	return b
}

// Has reports whether key has been set.
func (b *ValuesBuilder) Has(key Key) bool {
	_, ok := b.values[key]
	return ok
}

// Err returns the first error recorded by Set.
func (b *ValuesBuilder) Err() error {
	return b.err
}

// Build returns a copy of the collected values.
func (b *ValuesBuilder) Build() (Values, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make(Values, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out, nil
}

// Merge copies every entry of v that is not yet set into b. Used when a new
// state is derived from an existing snapshot.
func (b *ValuesBuilder) Merge(v Values) *ValuesBuilder {
	for k, value := range v {
		if !b.Has(k) {
			b.Set(k, value)
		}
	}
	return b
}

type overlay struct {
	top  Values
	base Carrier
}

func (o overlay) ValueOf(key Key) (any, bool) {
	if v, ok := o.top[key]; ok {
		return v, true
	}
	return o.base.ValueOf(key)
}

// Overlay returns a carrier answering from top first and base second. Used to
// derive a new state snapshot from one whose carrier cannot be enumerated.
func Overlay(base Carrier, top Values) Carrier {
	if len(top) == 0 {
		if base == nil {
			return Empty
		}
		return base
	}
	if base == nil || IsEmpty(base) {
		return top
	}
	return overlay{top: top, base: base}
}
