// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ring

import "sync/atomic"

// Fences tracks completion sequence numbers for one ring.  The emitted
// sequence increases with each submission; the processed sequence is
// advanced from interrupt context when the engine writes the sequence
// back.  A sequence observed as signaled never regresses.
type Fences struct {
	emitted   uint32
	processed uint32
}

// NextSeq allocates the next fence sequence number.  Sequences start at
// 1 so a freshly zeroed writeback slot reads as "nothing signaled".
func (f *Fences) NextSeq() uint32 {
	return atomic.AddUint32(&f.emitted, 1)
}

func (f *Fences) Emitted() uint32   { return atomic.LoadUint32(&f.emitted) }
func (f *Fences) Processed() uint32 { return atomic.LoadUint32(&f.processed) }

// Process records a sequence observed in the writeback slot.  Stale or
// wrapped-behind values are ignored so the processed sequence only
// moves forward.
func (f *Fences) Process(seq uint32) {
	for {
		old := atomic.LoadUint32(&f.processed)
		// Signed distance handles 32 bit wrap.
		if int32(seq-old) <= 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&f.processed, old, seq) {
			return
		}
	}
}

// Done reports whether the fence with sequence seq has signaled.
func (f *Fences) Done(seq uint32) bool {
	return int32(atomic.LoadUint32(&f.processed)-seq) >= 0
}
