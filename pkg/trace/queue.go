// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import "sync"

// Queue is the unbounded multi-producer FIFO hand-off point between closing
// spans and the exporter drain loop. Enqueue never blocks beyond a brief
// buffer append and never fails from the producer's perspective. Drain is
// intended for a single consumer.
type Queue struct {
	mtx    sync.Mutex
	datums []*Datum
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a closed Datum. Nil datums are discarded.
func (q *Queue) Enqueue(d *Datum) {
	if d == nil {
		return
	}
	q.mtx.Lock()
	q.datums = append(q.datums, d)
	q.mtx.Unlock()
}

// Drain removes and returns all queued datums in arrival order. It returns
// nil when the queue is empty.
func (q *Queue) Drain() []*Datum {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if len(q.datums) == 0 {
		return nil
	}
	out := q.datums
	q.datums = nil
	return out
}

// Len returns the number of queued datums.
func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.datums)
}
