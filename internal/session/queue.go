// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package session

// outputQueue buffers raw output chunks that arrive before any terminal
// sink is attached. Chunks are kept whole and in arrival order; the queue
// is bounded by total bytes and discards the oldest chunks on overflow so
// a never-attached consumer cannot grow memory without bound.
type outputQueue struct {
	chunks [][]byte
	bytes  int
	limit  int
}

// DefaultQueueLimit bounds the pending output queue to 1 MiB of chunks.
const DefaultQueueLimit = 1 << 20

// newOutputQueue returns a queue bounded to limit bytes.
func newOutputQueue(limit int) *outputQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &outputQueue{limit: limit}
}

// push appends a copy of chunk, evicting oldest chunks when the byte limit
// is exceeded. Eviction never reorders what remains.
func (q *outputQueue) push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	dup := make([]byte, len(chunk))
	copy(dup, chunk)
	q.chunks = append(q.chunks, dup)
	q.bytes += len(dup)
	for q.bytes > q.limit && len(q.chunks) > 1 {
		q.bytes -= len(q.chunks[0])
		q.chunks[0] = nil
		q.chunks = q.chunks[1:]
	}
}

// drain hands every buffered chunk to fn in arrival order, exactly once,
// and empties the queue.
func (q *outputQueue) drain(fn func([]byte)) {
	for _, chunk := range q.chunks {
		fn(chunk)
	}
	q.chunks = nil
	q.bytes = 0
}

// clear drops everything buffered.
func (q *outputQueue) clear() {
	q.chunks = nil
	q.bytes = 0
}

// size returns the number of buffered chunks.
func (q *outputQueue) size() int {
	return len(q.chunks)
}
