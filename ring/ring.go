// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Single producer/single consumer command ring shared with an engine
// that consumes entries asynchronously.  Software owns the write
// pointer; hardware owns the read pointer and is reached through Mover.
package ring

import (
	"errors"
	"fmt"
)

var ErrFull = errors.New("ring: insufficient space")

// Mover commits pointer state to the hardware consumer.
type Mover interface {
	// Current hardware read pointer, in words.
	Rptr() uint32
	// Commit software write pointer to hardware.
	SetWptr(v uint32)
}

// Ring is a fixed capacity circular buffer of 32 bit words.  Writes are
// scoped: Lock reserves space, Write stages words, Commit advances the
// consumer visible write pointer in one step.  The consumer never
// observes a partially written command.
type Ring struct {
	mover Mover
	words []uint32
	addr  uint64
	mask  uint32

	// Software write pointer.  Mirrors hardware only at Commit.
	wptr uint32

	nLocked  uint32
	nStaged  uint32
	isLocked bool
}

func New(words []uint32, deviceAddr uint64, m Mover) *Ring {
	n := uint32(len(words))
	if n == 0 || n&(n-1) != 0 {
		panic(fmt.Errorf("ring: size %d not a power of 2", n))
	}
	return &Ring{mover: m, words: words, addr: deviceAddr, mask: n - 1}
}

func (r *Ring) Len() uint32           { return uint32(len(r.words)) }
func (r *Ring) DeviceAddress() uint64 { return r.addr }
func (r *Ring) Wptr() uint32          { return r.wptr }

// SetWptr re-synchronizes the software pointer with hardware, e.g. after
// the engine is restarted with a zeroed read pointer.
func (r *Ring) SetWptr(v uint32) { r.wptr = v & r.mask }

// Free space in words.  One slot is kept open so a full ring is
// distinguishable from an empty one.
func (r *Ring) free() uint32 {
	rptr := r.mover.Rptr() & r.mask
	return (rptr - r.wptr - 1) & r.mask
}

// Lock reserves n words.  Fails fast when the consumer has not freed
// enough space; waiting for space is the submitter's policy.
func (r *Ring) Lock(n uint32) error {
	if r.isLocked {
		panic("ring: nested lock")
	}
	if n > r.free() {
		return fmt.Errorf("%w: want %d words, free %d", ErrFull, n, r.free())
	}
	r.nLocked = n
	r.nStaged = 0
	r.isLocked = true
	return nil
}

// Write stages one word into the reservation.
func (r *Ring) Write(v uint32) {
	if !r.isLocked {
		panic("ring: write outside lock")
	}
	if r.nStaged >= r.nLocked {
		panic(fmt.Errorf("ring: write overruns reservation of %d words", r.nLocked))
	}
	r.words[(r.wptr+r.nStaged)&r.mask] = v
	r.nStaged++
}

// Commit publishes all staged words by advancing the hardware visible
// write pointer once.
func (r *Ring) Commit() {
	if !r.isLocked {
		panic("ring: commit outside lock")
	}
	r.wptr = (r.wptr + r.nStaged) & r.mask
	r.isLocked = false
	r.nLocked = 0
	r.nStaged = 0
	r.mover.SetWptr(r.wptr)
}

// Abort drops staged words without advancing the write pointer; the
// consumer never sees them.
func (r *Ring) Abort() {
	r.isLocked = false
	r.nLocked = 0
	r.nStaged = 0
}
