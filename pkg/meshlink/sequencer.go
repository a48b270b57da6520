// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import "sync/atomic"

// Sequencer hands out 16-bit command ids. The counter wraps from 65535 to 0.
// It is safe for concurrent use; no two calls to Next return the same id
// until the counter wraps.
type Sequencer struct {
	next atomic.Uint32
}

// NewSequencer creates a sequencer whose first id is start
func NewSequencer(start uint16) *Sequencer {
	s := &Sequencer{}
	s.next.Store(uint32(start))
	return s
}

// Next returns the current id and advances the counter
func (s *Sequencer) Next() uint16 {
	for {
		cur := s.next.Load()
		if s.next.CompareAndSwap(cur, (cur+1)&0xFFFF) {
			return uint16(cur)
		}
	}
}

// Peek returns the id the next call to Next will return
func (s *Sequencer) Peek() uint16 {
	return uint16(s.next.Load())
}
