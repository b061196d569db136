// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestQueueDrainsInArrivalOrder(t *testing.T) {
	q := newOutputQueue(0)
	q.push([]byte("one"))
	q.push([]byte("two"))
	q.push([]byte("three"))

	var got []string
	q.drain(func(chunk []byte) { got = append(got, string(chunk)) })

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("drained %d chunks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQueueDrainsExactlyOnce(t *testing.T) {
	q := newOutputQueue(0)
	q.push([]byte("data"))

	count := 0
	q.drain(func([]byte) { count++ })
	q.drain(func([]byte) { count++ })

	if count != 1 {
		t.Errorf("chunk delivered %d times, want 1", count)
	}
	if q.size() != 0 {
		t.Errorf("size after drain = %d, want 0", q.size())
	}
}

func TestQueueCopiesPushedChunks(t *testing.T) {
	q := newOutputQueue(0)
	buf := []byte("original")
	q.push(buf)
	copy(buf, "mutated!")

	q.drain(func(chunk []byte) {
		if string(chunk) != "original" {
			t.Errorf("drained %q, want copy unaffected by caller mutation", chunk)
		}
	})
}

func TestQueueEvictsOldestOnOverflow(t *testing.T) {
	q := newOutputQueue(10)
	q.push([]byte("aaaa"))
	q.push([]byte("bbbb"))
	q.push([]byte("cccc")) // 12 bytes total, "aaaa" must go

	var got []string
	q.drain(func(chunk []byte) { got = append(got, string(chunk)) })
	if len(got) != 2 || got[0] != "bbbb" || got[1] != "cccc" {
		t.Errorf("drained %v, want [bbbb cccc]", got)
	}
}

func TestQueueKeepsOversizedSingleChunk(t *testing.T) {
	q := newOutputQueue(4)
	q.push([]byte("oversized chunk"))

	if q.size() != 1 {
		t.Errorf("size = %d, want the single oversized chunk kept", q.size())
	}
}

func TestQueueIgnoresEmptyChunks(t *testing.T) {
	q := newOutputQueue(0)
	q.push(nil)
	q.push([]byte{})
	if q.size() != 0 {
		t.Errorf("size = %d, want 0 after empty pushes", q.size())
	}
}

func TestQueueOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("drain preserves concatenated byte order", prop.ForAll(
		func(chunks [][]byte) bool {
			q := newOutputQueue(1 << 24)
			var want bytes.Buffer
			for _, c := range chunks {
				q.push(c)
				want.Write(c)
			}
			var got bytes.Buffer
			q.drain(func(chunk []byte) { got.Write(chunk) })
			return bytes.Equal(got.Bytes(), want.Bytes())
		},
		gen.SliceOf(gen.SliceOf(gen.UInt8())),
	))

	properties.TestingRun(t)
}
