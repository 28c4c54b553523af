// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeutil

import (
	"sync"

	"go.uber.org/atomic"
)

// ConcurrentMap 是带类型参数的并发 map，底层实现为 sync.Map，
// 并自行维护长度计数以支持 O(1) 的 Len()。
type ConcurrentMap[K comparable, V any] struct {
	inner sync.Map
	size  atomic.Int64
}

func NewConcurrentMap[K comparable, V any]() *ConcurrentMap[K, V] {
	return &ConcurrentMap[K, V]{}
}

// Insert 写入键值对，已存在时覆盖。
func (m *ConcurrentMap[K, V]) Insert(key K, value V) {
	_, loaded := m.inner.Swap(key, value)
	if !loaded {
		m.size.Inc()
	}
}

func (m *ConcurrentMap[K, V]) Get(key K) (V, bool) {
	var zero V
	value, ok := m.inner.Load(key)
	if !ok {
		return zero, false
	}
	return value.(V), true
}

// GetOrInsert 返回已有值；键不存在时写入给定值并返回。
// 第二个返回值表示键此前是否已存在。
func (m *ConcurrentMap[K, V]) GetOrInsert(key K, value V) (V, bool) {
	stored, loaded := m.inner.LoadOrStore(key, value)
	if !loaded {
		m.size.Inc()
	}
	return stored.(V), loaded
}

// GetAndRemove 返回并删除键对应的值。
// 键不存在时返回零值与 false。
func (m *ConcurrentMap[K, V]) GetAndRemove(key K) (V, bool) {
	var zero V
	value, loaded := m.inner.LoadAndDelete(key)
	if !loaded {
		return zero, false
	}
	m.size.Dec()
	return value.(V), true
}

// Remove 删除键。
// 键不存在时忽略。
func (m *ConcurrentMap[K, V]) Remove(key K) {
	if _, loaded := m.inner.LoadAndDelete(key); loaded {
		m.size.Dec()
	}
}

func (m *ConcurrentMap[K, V]) Contain(key K) bool {
	_, ok := m.inner.Load(key)
	return ok
}

// Range 遍历所有键值对，回调返回 false 时提前终止。
func (m *ConcurrentMap[K, V]) Range(f func(key K, value V) bool) {
	m.inner.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

// Keys 返回所有键的切片，顺序不确定。
func (m *ConcurrentMap[K, V]) Keys() []K {
	keys := make([]K, 0, m.Len())
	m.inner.Range(func(key, value any) bool {
		keys = append(keys, key.(K))
		return true
	})
	return keys
}

// Values 返回所有值的切片，顺序不确定。
func (m *ConcurrentMap[K, V]) Values() []V {
	values := make([]V, 0, m.Len())
	m.inner.Range(func(key, value any) bool {
		values = append(values, value.(V))
		return true
	})
	return values
}

func (m *ConcurrentMap[K, V]) Len() int {
	return int(m.size.Load())
}
