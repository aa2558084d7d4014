// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Memory mapped register read/write.
package hw

import (
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"
)

// Must point to readable memory since compiler may perform
// read probes (nil checks) as part of memory addressing.
var (
	RegsBasePointer = basePointer()
	RegsBaseAddress = uintptr(RegsBasePointer)
)

const regsMapBytes = 1 << 20

func basePointer() unsafe.Pointer {
	// Large enough for any 32 bit register file we overlay.
	x, err := syscall.Mmap(0, 0, regsMapBytes, syscall.PROT_READ,
		syscall.MAP_PRIVATE|syscall.MAP_ANON|syscall.MAP_NORESERVE)
	if err != nil {
		panic(err)
	}
	return unsafe.Pointer(&x[0])
}

// True when the host stores multi-byte values big endian.
var BigEndian = isBigEndian()

func isBigEndian() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 0
}

// Generic 32 bit register; used only to derive offsets via struct overlay
// at RegsBasePointer.
type Reg32 uint32

func (r *Reg32) Offset() uint {
	return uint(uintptr(unsafe.Pointer(r)) - RegsBaseAddress)
}

func LoadUint32(b []byte, o uint) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[o])))
}

func StoreUint32(b []byte, o uint, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[o])), v)
}

// Bus moves 32 bit values to and from a device register window and
// supplies the blocking delay primitive used by reset/boot sequencing.
// A device's registers are single writer; callers serialize access.
type Bus interface {
	Read32(offset uint) uint32
	Write32(offset uint, v uint32)
	Delay(d time.Duration)
}

// MappedBus is a Bus over an mmaped register window (/dev/mem or a
// pci resource file).
type MappedBus struct {
	mem []byte
}

func NewMappedBus(mem []byte) *MappedBus { return &MappedBus{mem: mem} }

func (b *MappedBus) Read32(o uint) uint32     { return LoadUint32(b.mem, o) }
func (b *MappedBus) Write32(o uint, v uint32) { StoreUint32(b.mem, o, v) }
func (b *MappedBus) Delay(d time.Duration)    { time.Sleep(d) }

// MapBytes mmaps size bytes at offset of the named resource file,
// read/write shared.
func MapBytes(path string, offset int64, size uint) (mem []byte, err error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_SYNC, 0)
	if err != nil {
		return
	}
	defer syscall.Close(fd)
	return syscall.Mmap(fd, offset, int(size),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

// Map returns a bus over a mapping of the named resource file.
func Map(path string, offset int64, size uint) (b *MappedBus, err error) {
	mem, err := MapBytes(path, offset, size)
	if err != nil {
		return
	}
	b = NewMappedBus(mem)
	return
}

func (b *MappedBus) Close() error { return syscall.Munmap(b.mem) }
