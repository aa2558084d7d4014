// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uvd

import (
	"errors"
	"fmt"
	"io"

	"github.com/platinasystems/log"

	"github.com/SharkBa1t/uvd/fw"
	"github.com/SharkBa1t/uvd/hw"
	"github.com/SharkBa1t/uvd/irq"
	"github.com/SharkBa1t/uvd/mem"
	"github.com/SharkBa1t/uvd/ring"
)

var (
	ErrTimeout        = errors.New("uvd: timeout")
	ErrNotResponding  = errors.New("uvd: engine not responding")
	ErrTestFailed     = errors.New("uvd: self test failed")
	ErrNotImplemented = errors.New("uvd: not implemented")
)

// Block is the lifecycle surface the owning device driver drives.
// The backing implementation is selected per hardware generation at
// configuration time; there is no runtime probing here.
type Block interface {
	EarlyInit() error
	SwInit() error
	SwFini() error
	HwInit() error
	HwFini() error
	Suspend() error
	Resume() error
	IsIdle() bool
	WaitForIdle() error
	SoftReset() error
	SetClockgatingState(gate bool) error
	SetPowergatingState(gate bool) error
	PrintRegs(w io.Writer)
}

type Config struct {
	// Firmware image file or url.
	Firmware string

	// Bound on firmware open attempts; opens past the first are
	// retried with backoff for transient fetch errors.
	FirmwareTries int

	// Ring capacity in 32 bit words; power of 2.
	RingWords uint32

	// Bound, in 1 usec polls, on idle/readback waits.
	UsecTimeout uint

	// Trap id delivered by the interrupt controller for this engine.
	TrapID uint
}

const (
	defaultRingWords   = 4096
	defaultUsecTimeout = 100000
	defaultTrapID      = 124
)

func (cf *Config) setDefaults() {
	if cf.FirmwareTries == 0 {
		cf.FirmwareTries = 1
	}
	if cf.RingWords == 0 {
		cf.RingWords = defaultRingWords
	}
	if cf.UsecTimeout == 0 {
		cf.UsecTimeout = defaultUsecTimeout
	}
	if cf.TrapID == 0 {
		cf.TrapID = defaultTrapID
	}
}

// Per generation hooks; the common dev carries everything else.
type dever interface {
	get() *dev
	name() string
	// Integrated parts keep the firmware image resident across
	// suspend; discrete parts lose it with the rails.
	isFused() bool
}

type dev struct {
	d    dever
	bus  hw.Bus
	regs *regs
	cf   Config

	heap *mem.Heap
	irqs *irq.Map
	trap *irq.Source

	fw     *fw.Image
	fwBuf  mem.Buffer
	wbBuf  mem.Buffer
	rbBuf  mem.Buffer
	ring   *ring.Ring
	fences ring.Fences

	swReady   bool
	ringReady bool
}

func (d *dev) get() *dev { return d }

// Discrete generation.
type dev_tonga struct {
	dev
}

func (d *dev_tonga) name() string { return "tonga" }
func (d *dev_tonga) isFused() bool { return false }

// Integrated (fused) generation.
type dev_carrizo struct {
	dev
}

func (d *dev_carrizo) name() string { return "carrizo" }
func (d *dev_carrizo) isFused() bool { return true }

func newDev(dr dever, bus hw.Bus, heap *mem.Heap, irqs *irq.Map, cf Config) Block {
	d := dr.get()
	d.d = dr
	d.bus = bus
	d.heap = heap
	d.irqs = irqs
	d.cf = cf
	d.cf.setDefaults()
	return dr.(Block)
}

func NewTonga(bus hw.Bus, heap *mem.Heap, irqs *irq.Map, cf Config) Block {
	return newDev(&dev_tonga{}, bus, heap, irqs, cf)
}

func NewCarrizo(bus hw.Bus, heap *mem.Heap, irqs *irq.Map, cf Config) Block {
	return newDev(&dev_carrizo{}, bus, heap, irqs, cf)
}

func (d *dev) EarlyInit() error {
	d.regs = getRegs()
	d.trap = d.irqSource()
	return nil
}

// SwInit registers the trap source, loads firmware, and carves the
// engine's working set (vcpu cache, fence writeback, ring) out of the
// heap.  Any failure unwinds; nothing is left half ready.
func (d *dev) SwInit() (err error) {
	if err = d.irqs.AddID(d.cf.TrapID, d.trap); err != nil {
		return
	}
	defer func() {
		if err != nil {
			d.irqs.DelID(d.cf.TrapID)
		}
	}()

	if d.fw, err = fw.OpenRetry(d.cf.Firmware, d.cf.FirmwareTries); err != nil {
		return
	}
	log.Print("notice: uvd: firmware ", d.fw)

	// Cache bar spans firmware image plus vcpu stack and heap.
	n := firmware_offset + mem.PageAlign(uint(len(d.fw.Data))+4) +
		vcpu_stack_size + vcpu_heap_size
	if d.fwBuf, err = d.heap.Alloc(n); err != nil {
		return
	}
	d.uploadFirmware()

	if d.wbBuf, err = d.heap.Alloc(mem.PageSize); err != nil {
		return
	}

	if d.rbBuf, err = d.heap.Alloc(uint(d.cf.RingWords) * 4); err != nil {
		return
	}
	d.ring = ring.New(d.rbBuf.Words()[:d.cf.RingWords], d.rbBuf.DeviceAddress(), d)

	d.swReady = true
	return
}

func (d *dev) uploadFirmware() {
	copy(d.fwBuf.Bytes()[firmware_offset:], d.fw.Data)
}

func (d *dev) SwFini() error {
	if !d.swReady {
		return nil
	}
	d.irqs.DelID(d.cf.TrapID)
	d.ring = nil
	d.fwBuf, d.wbBuf, d.rbBuf = mem.Buffer{}, mem.Buffer{}, mem.Buffer{}
	d.fw = nil
	d.swReady = false
	return nil
}

// HwInit boots the engine and proves the ring pipeline before any
// decode work is accepted.
func (d *dev) HwInit() (err error) {
	if err = d.start(); err != nil {
		return
	}
	d.ringReady = true

	if err = d.TestRing(); err != nil {
		d.ringReady = false
		return
	}

	if err = d.initSemaTimeouts(); err != nil {
		d.ringReady = false
		return
	}

	log.Print("notice: uvd: initialized successfully")
	return
}

// Stale semaphore timeout state from a previous session could fault the
// first wait; program the thresholds and clear pending status.
func (d *dev) initSemaTimeouts() error {
	r := d.regs
	if err := d.ring.Lock(10); err != nil {
		return fmt.Errorf("uvd: ring lock: %w", err)
	}
	d.ring.Write(pkt0(&r.sema_wait_fault_timeout_cntl, 0))
	d.ring.Write(0xFFFFF)
	d.ring.Write(pkt0(&r.sema_wait_incomplete_timeout_cntl, 0))
	d.ring.Write(0xFFFFF)
	d.ring.Write(pkt0(&r.sema_signal_incomplete_timeout_cntl, 0))
	d.ring.Write(0xFFFFF)
	d.ring.Write(pkt0(&r.sema_timeout_status, 0))
	d.ring.Write(0x8)
	d.ring.Write(pkt0(&r.sema_cntl, 0))
	d.ring.Write(3)
	d.ring.Commit()
	return nil
}

func (d *dev) HwFini() error {
	d.stop()
	d.ringReady = false
	return nil
}

func (d *dev) Suspend() error {
	if !d.d.isFused() {
		d.quiesceFirmware()
	}
	return d.HwFini()
}

func (d *dev) Resume() error {
	if !d.d.isFused() {
		d.uploadFirmware()
	}
	return d.HwInit()
}

// Discrete parts lose the vcpu cache contents with power; nothing to
// save since the image is re-uploaded from the host copy on resume.
func (d *dev) quiesceFirmware() {
	b := d.fwBuf.Bytes()
	for i := range b {
		b[i] = 0
	}
}

func (d *dev) IsIdle() bool {
	return d.regs.srbm_status.get(d)&srbm_status_uvd_busy == 0
}

func (d *dev) WaitForIdle() error {
	for i := uint(0); i < d.cf.UsecTimeout; i++ {
		if d.IsIdle() {
			return nil
		}
		d.delay(poll_idle)
	}
	return fmt.Errorf("%w: engine busy after %d polls", ErrTimeout, d.cf.UsecTimeout)
}

func (d *dev) SoftReset() error {
	d.stop()

	d.regs.srbm_soft_reset.modify(d, srbm_soft_reset_uvd, srbm_soft_reset_uvd)
	d.delay(settle_block_reset)

	// start clears the block level reset again.
	return d.start()
}

func (d *dev) SetClockgatingState(gate bool) error {
	return nil
}

// SetPowergatingState only idles or reboots the engine; the actual rail
// gating is policy owned by the power manager.
func (d *dev) SetPowergatingState(gate bool) error {
	if gate {
		d.stop()
		return nil
	}
	return d.start()
}

// Ring mover: hardware read pointer, committed write pointer.
func (d *dev) Rptr() uint32     { return d.regs.rbc_rb_rptr.get(d) }
func (d *dev) SetWptr(v uint32) { d.regs.rbc_rb_wptr.set(d, v) }
