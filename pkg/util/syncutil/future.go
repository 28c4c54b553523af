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

package syncutil

// Future 是一个只能被设置一次的异步值。
type Future[T any] struct {
	ch    chan struct{}
	value T
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{
		ch: make(chan struct{}),
	}
}

// Set 设置值并唤醒所有等待方。
// 重复调用会 panic。
func (f *Future[T]) Set(value T) {
	f.value = value
	close(f.ch)
}

// Get 阻塞等待值被设置并返回。
func (f *Future[T]) Get() T {
	<-f.ch
	return f.value
}

// Done 返回完成信号，供 select 组合使用。
func (f *Future[T]) Done() <-chan struct{} {
	return f.ch
}

// Ready 返回值是否已被设置。
func (f *Future[T]) Ready() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}
