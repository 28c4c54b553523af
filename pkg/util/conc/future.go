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

package conc

import (
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// future 是 Future 的无类型视图，供 AwaitAll 聚合使用。
type future interface {
	Done() <-chan struct{}
	OK() bool
	Err() error
}

// Future 代表一次异步执行的结果。
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		ch: make(chan struct{}),
	}
}

// Await 阻塞等待执行完成，返回结果与错误。
func (future *Future[T]) Await() (T, error) {
	<-future.ch
	return future.value, future.err
}

// Value 阻塞等待执行完成并返回结果，
// 调用方需自行保证任务不会失败，否则应使用 Await。
func (future *Future[T]) Value() T {
	<-future.ch
	return future.value
}

// OK 表示任务是否成功执行。
func (future *Future[T]) OK() bool {
	<-future.ch
	return future.err == nil
}

func (future *Future[T]) Err() error {
	<-future.ch
	return future.err
}

// Done 返回任务完成信号，供 select 组合使用。
func (future *Future[T]) Done() <-chan struct{} {
	return future.ch
}

// Go 在独立协程中执行 fn，返回其 Future。
func Go[T any](fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		defer close(future.ch)
		res, err := fn()
		if err != nil {
			future.err = err
		} else {
			future.value = res
		}
	}()
	return future
}

// AwaitAll 等待所有 Future 完成并聚合错误。
func AwaitAll[T future](futures ...T) error {
	var err error
	for i := range futures {
		<-futures[i].Done()
		if !futures[i].OK() {
			err = merr.Combine(err, futures[i].Err())
		}
	}

	return err
}
