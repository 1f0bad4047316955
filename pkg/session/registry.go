package session

import (
	"sort"
	"sync"
)

var (
	// 全局工厂名称注册表单例
	globalNameRegistry *NameRegistry
	nameRegistryOnce   sync.Once
)

// GetGlobalNameRegistry 获取进程级工厂名称注册表
func GetGlobalNameRegistry() *NameRegistry {
	nameRegistryOnce.Do(func() {
		globalNameRegistry = NewNameRegistry()
	})
	return globalNameRegistry
}

// NameRegistry is the set of claimed factory names. Claims are atomic and
// lock-free for callers.
type NameRegistry struct {
	names sync.Map // name -> owner
}

// NewNameRegistry 创建名称注册表，测试中用于隔离全局状态
func NewNameRegistry() *NameRegistry {
	return &NameRegistry{}
}

// Claim inserts name if absent and reports whether owner now holds it.
func (r *NameRegistry) Claim(name string, owner any) bool {
	_, loaded := r.names.LoadOrStore(name, owner)
	return !loaded
}

// Release gives name back, only if owner is the one holding it.
func (r *NameRegistry) Release(name string, owner any) bool {
	return r.names.CompareAndDelete(name, owner)
}

// Contains 名称是否已被占用
func (r *NameRegistry) Contains(name string) bool {
	_, ok := r.names.Load(name)
	return ok
}

// Names 返回已占用的名称，按字典序排序
func (r *NameRegistry) Names() []string {
	var names []string
	r.names.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}
