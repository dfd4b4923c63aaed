/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package queue provides a growable ring buffer. It is not safe for
// concurrent use; callers guard it with their own lock.
package queue

// Queue 环形队列，容量不足时自动扩容
type Queue[T any] struct {
	data  []T // 存储数据的切片
	head  int // 队首的索引
	count int // 队列中元素的个数
}

// New 创建一个初始容量为 size 的队列
func New[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{data: make([]T, size)}
}

// IsEmpty 判断队列是否为空
func (q *Queue[T]) IsEmpty() bool {
	return q.count == 0
}

// Len 返回队列中元素的个数
func (q *Queue[T]) Len() int {
	return q.count
}

// Push 向队尾添加一个元素
func (q *Queue[T]) Push(x T) {
	if q.count == len(q.data) {
		q.grow()
	}
	q.data[(q.head+q.count)%len(q.data)] = x
	q.count++
}

// Pop 从队首删除一个元素，并返回它
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	x := q.data[q.head]
	q.data[q.head] = zero // 释放引用
	q.head = (q.head + 1) % len(q.data)
	q.count--
	return x, true
}

// Front 返回队首元素，不出队
func (q *Queue[T]) Front() (T, bool) {
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.data[q.head], true
}

// Back 返回队尾元素，不出队
func (q *Queue[T]) Back() (T, bool) {
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.data[(q.head+q.count-1)%len(q.data)], true
}

// At returns the i-th element counted from the head.
func (q *Queue[T]) At(i int) T {
	if i < 0 || i >= q.count {
		panic("queue: index out of range")
	}
	return q.data[(q.head+i)%len(q.data)]
}

// PopAll 返回并删除队列中的所有元素
func (q *Queue[T]) PopAll() []T {
	if q.count == 0 {
		return nil
	}
	out := make([]T, q.count)
	for i := range out {
		out[i] = q.At(i)
	}
	q.Reset()
	return out
}

// Reset 清空队列中的所有元素，保留已分配的空间
func (q *Queue[T]) Reset() {
	var zero T
	for i := range q.data {
		q.data[i] = zero
	}
	q.head = 0
	q.count = 0
}

func (q *Queue[T]) grow() {
	data := make([]T, len(q.data)*2)
	for i := 0; i < q.count; i++ {
		data[i] = q.data[(q.head+i)%len(q.data)]
	}
	q.data = data
	q.head = 0
}
