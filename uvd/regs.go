// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Driver for the UVD video decode engine.
package uvd

import (
	"time"
	"unsafe"

	"github.com/SharkBa1t/uvd/hw"
)

type reg hw.Reg32

func (r *reg) offset() uint { return uint(uintptr(unsafe.Pointer(r)) - hw.RegsBaseAddress) }

// Register dword address, as decoded by the vcpu from ring packets.
func (r *reg) address() uint32 { return uint32(r.offset()) >> 2 }

func (r *reg) get(d *dev) uint32    { return d.bus.Read32(r.offset()) }
func (r *reg) set(d *dev, v uint32) { d.bus.Write32(r.offset(), v) }

func (r *reg) or(d *dev, v uint32) (x uint32) {
	x = r.get(d) | v
	r.set(d, x)
	return
}

func (r *reg) andnot(d *dev, v uint32) (x uint32) {
	x = r.get(d) &^ v
	r.set(d, x)
	return
}

// Replace only the bits in mask.
func (r *reg) modify(d *dev, v, mask uint32) (x uint32) {
	x = (r.get(d) &^ mask) | (v & mask)
	r.set(d, x)
	return
}

// 64 bit device address split over consecutive low/high registers.
type addr [2]reg

func (a *addr) set(d *dev, v uint64) {
	a[0].set(d, uint32(v))
	a[1].set(d, uint32(v>>32))
}

func (d *dev) delay(t time.Duration) { d.bus.Delay(t) }

// Type 0 ring packet header: write count+1 words to register at dword
// address a.
func pkt0(r *reg, count uint32) uint32 { return r.address() | count<<16 }

type regs struct {
	_ [0x394 * 4]byte

	// [19] uvd busy
	srbm_status reg

	_ [(0x398 - 0x395) * 4]byte

	// [18] hold uvd in reset
	srbm_soft_reset reg

	_ [(0x3bc0 - 0x399) * 4]byte

	// [19:0] semaphore address bits 22:3
	sema_addr_low reg
	// [19:0] semaphore address bits 42:23
	sema_addr_high reg
	// [0] wait vs signal
	// [7] semaphore command valid
	sema_cmd reg

	// General purpose command interface to the vcpu.
	// cmd 0 stages data0/data1, cmd 2 signals the fence trap.
	gpcom_vcpu_cmd   reg
	gpcom_vcpu_data0 reg
	gpcom_vcpu_data1 reg

	engine_cntl reg

	_ [(0x3bd3 - 0x3bc7) * 4]byte

	udec_addr_config     reg
	udec_db_addr_config  reg
	udec_dbw_addr_config reg

	_ [(0x3d00 - 0x3bd6) * 4]byte

	// [0] semaphore enable
	// [1] semaphore wait enable
	sema_cntl reg

	_ [(0x3d26 - 0x3d01) * 4]byte

	lmi_ext40_addr reg

	_ [(0x3d28 - 0x3d27) * 4]byte

	ctx_index reg
	ctx_data  reg

	// One gate bit per internal clock domain; 0 disables gating.
	cgc_gate reg

	_ [(0x3d2c - 0x3d2b) * 4]byte

	cgc_ctrl reg

	_ [(0x3d3d - 0x3d2d) * 4]byte

	// [8] stall memory controller and register bus
	lmi_ctrl2 reg

	_ [(0x3d40 - 0x3d3e) * 4]byte

	// [1] vcpu interrupt enable
	// [2] system interrupt enable
	mastint_en reg

	_ [(0x3d58 - 0x3d41) * 4]byte

	lmi_rbc_rb_bar     addr
	lmi_rbc_ib_bar     addr
	lmi_vcpu_cache_bar addr

	_ [(0x3d65 - 0x3d5e) * 4]byte

	lmi_addr_ext reg

	// [7:0] write clean timer
	// [8] write clean timer enable
	// [9] crc reset
	// [13] mask mc urgent
	// [20] data coherency enable
	// [21] vcpu data coherency enable
	lmi_ctrl reg

	_ [(0x3d6d - 0x3d67) * 4]byte

	// 8-in-32 byte swap controls for ring/ib fetch; 0 on little
	// endian hosts.
	lmi_swap_cntl reg

	_ [(0x3d6f - 0x3d6e) * 4]byte

	mp_swap_cntl reg

	_ [(0x3d79 - 0x3d70) * 4]byte

	mpc_set_muxa0 reg
	mpc_set_muxa1 reg
	mpc_set_muxb0 reg
	mpc_set_muxb1 reg
	mpc_set_mux   reg
	mpc_set_alu   reg

	_ [(0x3d82 - 0x3d7f) * 4]byte

	// Firmware cache, execution stack and heap regions of the vcpu
	// address space.  Offsets are in 8 byte units from the cache bar.
	vcpu_cache_offset0 reg
	vcpu_cache_size0   reg
	vcpu_cache_offset1 reg
	vcpu_cache_size1   reg
	vcpu_cache_offset2 reg
	vcpu_cache_size2   reg

	_ [(0x3d98 - 0x3d88) * 4]byte

	// [9] vcpu clock enable
	vcpu_cntl reg

	_ [(0x3da0 - 0x3d99) * 4]byte

	// Per subblock reset bits; see soft_reset_* below.
	soft_reset reg

	_ [(0x3da2 - 0x3da1) * 4]byte

	// Indirect buffer length in words; fetch starts on write.
	rbc_ib_size reg

	_ [(0x3da4 - 0x3da3) * 4]byte

	rbc_rb_rptr      reg
	rbc_rb_wptr      reg
	rbc_rb_wptr_cntl reg

	_ [(0x3da9 - 0x3da7) * 4]byte

	// [4:0] ring size as log2 bytes
	// [12:8] fetch block size as log2 words
	// [16] no fetch
	// [20] wptr polling enable
	// [24] no rptr writeback update
	// [28] rptr register write enable
	rbc_rb_cntl      reg
	rbc_rb_rptr_addr reg

	_ [(0x3daf - 0x3dab) * 4]byte

	// [1] vcpu booted and idle
	// [2] busy status, cleared by host after boot
	status reg

	// [3] semaphore timeout pending, write 1 to clear
	sema_timeout_status                 reg
	sema_wait_incomplete_timeout_cntl   reg
	sema_wait_fault_timeout_cntl        reg
	sema_signal_incomplete_timeout_cntl reg

	_ [(0x3dbd - 0x3db4) * 4]byte

	// Scratch register echoed by the vcpu; carries the fence sequence
	// in fence packets and doubles as the ring connectivity probe.
	context_id reg

	_ [(0x3dc0 - 0x3dbe) * 4]byte

	// [2] deep power gating enable
	power_status reg
}

const (
	soft_reset_rbc     = 1 << 0
	soft_reset_lbsi    = 1 << 1
	soft_reset_lmi     = 1 << 2
	soft_reset_vcpu    = 1 << 3
	soft_reset_udec    = 1 << 4
	soft_reset_csm     = 1 << 5
	soft_reset_cxw     = 1 << 6
	soft_reset_tap     = 1 << 7
	soft_reset_lmi_umc = 1 << 13
)

const (
	srbm_soft_reset_uvd  = 1 << 18
	srbm_status_uvd_busy = 1 << 19
)

const (
	rb_no_fetch     = 1 << 16
	rb_wptr_poll_en = 1 << 20
	rb_no_update    = 1 << 24
	rb_rptr_wr_en   = 1 << 28
	rb_blksz_shift  = 8
	// Value forcing the ring controller into its idle state.
	rb_cntl_idle = 0x11010101
)

func getRegs() *regs { return (*regs)(hw.RegsBasePointer) }
