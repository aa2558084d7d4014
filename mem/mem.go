// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Device memory management: page granular allocation of buffers that are
// visible to both the host and the decode engine.
package mem

import (
	"fmt"
	"unsafe"
)

// Device page granularity.  Offsets and sizes programmed into the engine's
// memory controller are multiples of this.
const (
	Log2PageSize = 12
	PageSize     = 1 << Log2PageSize
)

// Round x up to page granularity.
func PageAlign(x uint) uint { return (x + PageSize - 1) &^ (PageSize - 1) }

// Buffer is host backing plus the address the device uses to reach it.
type Buffer struct {
	addr uint64
	b    []byte
}

func (b *Buffer) DeviceAddress() uint64 { return b.addr }
func (b *Buffer) Bytes() []byte         { return b.b }
func (b *Buffer) Len() uint             { return uint(len(b.b)) }

// Words views the buffer as 32 bit words.
func (b *Buffer) Words() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b.b[0])), len(b.b)/4)
}

// Heap hands out page aligned buffers from one contiguous device
// visible region.  Buffers live until the heap is reset; the engine's
// working set (firmware, ring, writeback) is allocated once per
// software init and not recycled piecemeal.
type Heap struct {
	base uint64
	mem  []byte
	next uint
}

func NewHeap(deviceAddr uint64, backing []byte) *Heap {
	if deviceAddr&(PageSize-1) != 0 {
		panic(fmt.Errorf("mem: heap device address 0x%x not page aligned", deviceAddr))
	}
	return &Heap{base: deviceAddr, mem: backing}
}

func (h *Heap) Alloc(size uint) (b Buffer, err error) {
	n := PageAlign(size)
	if h.next+n > uint(len(h.mem)) {
		err = fmt.Errorf("mem: heap full: need %d have %d", n, uint(len(h.mem))-h.next)
		return
	}
	b = Buffer{
		addr: h.base + uint64(h.next),
		b:    h.mem[h.next : h.next+n : h.next+n],
	}
	h.next += n
	return
}

// Reset discards all allocations.  Callers must drop outstanding buffers.
func (h *Heap) Reset() { h.next = 0 }

func (h *Heap) Free() uint { return uint(len(h.mem)) - h.next }
