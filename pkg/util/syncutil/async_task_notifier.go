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

import "context"

// AsyncTaskNotifier 协调后台任务的取消与结束：
// 持有方通过 Cancel 通知任务退出，任务通过 Finish 上报结果。
type AsyncTaskNotifier[T any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	future *Future[T]
}

func NewAsyncTaskNotifier[T any]() *AsyncTaskNotifier[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncTaskNotifier[T]{
		ctx:    ctx,
		cancel: cancel,
		future: NewFuture[T](),
	}
}

// Context 返回任务应当监听的上下文。
func (n *AsyncTaskNotifier[T]) Context() context.Context {
	return n.ctx
}

// Cancel 通知任务退出，不等待其结束。
func (n *AsyncTaskNotifier[T]) Cancel() {
	n.cancel()
}

// Finish 由任务调用，上报结果并标记结束。
// 只能调用一次。
func (n *AsyncTaskNotifier[T]) Finish(result T) {
	n.future.Set(result)
}

// FinishChan 返回任务结束信号。
func (n *AsyncTaskNotifier[T]) FinishChan() <-chan struct{} {
	return n.future.Done()
}

// BlockUntilFinish 阻塞直到任务调用 Finish。
func (n *AsyncTaskNotifier[T]) BlockUntilFinish() {
	<-n.future.Done()
}

// BlockAndGetResult 阻塞直到任务结束并返回其结果。
func (n *AsyncTaskNotifier[T]) BlockAndGetResult() T {
	return n.future.Get()
}
