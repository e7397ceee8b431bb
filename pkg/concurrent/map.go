package concurrent

import (
	"iter"
	"sync"
	"sync/atomic"
)

// Map 并发安全的泛型 map，带长度计数
// 元数据目录（世界 / 可交易物品）在热路径上只读，适合 sync.Map
type Map[K comparable, V any] struct {
	length atomic.Int64
	data   sync.Map
}

// Len 当前元素数量
func (m *Map[K, V]) Len() int64 {
	return m.length.Load()
}

// Load 读取 key，ok 表示是否存在
func (m *Map[K, V]) Load(key K) (V, bool) {
	value, ok := m.data.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

// Has 判断 key 是否存在
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.data.Load(key)
	return ok
}

// Store 写入 key，新 key 计入长度
func (m *Map[K, V]) Store(key K, value V) {
	if _, loaded := m.data.Swap(key, value); !loaded {
		m.length.Add(1)
	}
}

// LoadOrStore 已存在时返回旧值（loaded=true），否则写入
func (m *Map[K, V]) LoadOrStore(key K, value V) (V, bool) {
	actual, loaded := m.data.LoadOrStore(key, value)
	if !loaded {
		m.length.Add(1)
	}
	return actual.(V), loaded
}

// Delete 删除 key
func (m *Map[K, V]) Delete(key K) {
	if _, loaded := m.data.LoadAndDelete(key); loaded {
		m.length.Add(-1)
	}
}

// Clear 清空
func (m *Map[K, V]) Clear() {
	m.data.Clear()
	m.length.Store(0)
}

// Range 遍历，f 返回 false 时停止
// 遍历期间的并发写入可能被看到，也可能看不到
func (m *Map[K, V]) Range(f func(K, V) bool) {
	m.data.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

// All 返回 key/value 迭代器
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.data.Range(func(key, value any) bool {
			return yield(key.(K), value.(V))
		})
	}
}

// Keys 返回当前所有 key 的快照
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	m.data.Range(func(key, _ any) bool {
		keys = append(keys, key.(K))
		return true
	})
	return keys
}

// Sync 用 src 覆盖当前内容：写入 src 全部条目，删除 src 中不存在的 key
// 用于元数据整表重载，读者在过程中不会看到空 map
func (m *Map[K, V]) Sync(src map[K]V) {
	for k, v := range src {
		m.Store(k, v)
	}
	m.data.Range(func(key, _ any) bool {
		if _, ok := src[key.(K)]; !ok {
			m.Delete(key.(K))
		}
		return true
	})
}
