package option

import (
	"reflect"
	"sort"
	"sync"
)

var (
	// 全局 option 注册表单例
	defaultRegistry *Registry
	registryOnce    sync.Once
)

// DefaultRegistry 获取进程级 option 注册表
func DefaultRegistry() *Registry {
	registryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Registry interns options for the lifetime of the process. It only grows.
type Registry struct {
	options sync.Map // name -> Key
	// 同名不同类型的 option 单独存放，不与调用方给出的名称冲突
	composites sync.Map // name#type -> Key
}

// NewRegistry 创建 option 注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// intern returns the Key registered for (name, typ), creating it on first use.
// A name already taken by another type is kept in a separate composite
// keyspace, so no caller-supplied name can reach it.
func (r *Registry) intern(name string, typ reflect.Type, create func() Key) Key {
	if v, ok := r.options.Load(name); ok {
		if key := v.(Key); key.Type() == typ {
			return key
		}
		return r.internComposite(name, typ, create)
	}

	v, _ := r.options.LoadOrStore(name, create())
	if key := v.(Key); key.Type() == typ {
		return key
	}
	return r.internComposite(name, typ, create)
}

func (r *Registry) internComposite(name string, typ reflect.Type, create func() Key) Key {
	composite := name + "#" + typeName(typ)
	if v, ok := r.composites.Load(composite); ok {
		return v.(Key)
	}
	v, _ := r.composites.LoadOrStore(composite, create())
	return v.(Key)
}

func typeName(typ reflect.Type) string {
	if typ.PkgPath() == "" {
		return typ.String()
	}
	return typ.PkgPath() + "." + typ.Name()
}

// Len 返回已注册的 option 数量
func (r *Registry) Len() int {
	n := 0
	count := func(_, _ any) bool {
		n++
		return true
	}
	r.options.Range(count)
	r.composites.Range(count)
	return n
}

// Keys returns every registered option ordered by name, then type.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0)
	collect := func(_, v any) bool {
		keys = append(keys, v.(Key))
		return true
	}
	r.options.Range(collect)
	r.composites.Range(collect)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name() != keys[j].Name() {
			return keys[i].Name() < keys[j].Name()
		}
		return keys[i].Type().String() < keys[j].Type().String()
	})
	return keys
}
