// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uvd

import (
	"fmt"
	"time"

	"github.com/platinasystems/log"

	"github.com/SharkBa1t/uvd/hw"
	"github.com/SharkBa1t/uvd/mem"
)

// Memory controller layout of the vcpu cache bar: firmware image at a
// fixed offset, then execution stack, then heap.
const (
	firmware_offset = 256
	vcpu_stack_size = 200 << 10
	vcpu_heap_size  = 256 << 10
)

// Reset/boot timing is a hardware contract; these are not tunables.
const (
	settle_bridge_stall = 1 * time.Millisecond
	settle_block_reset  = 5 * time.Millisecond
	settle_vcpu_boot    = 10 * time.Millisecond

	boot_poll       = 10 * time.Millisecond
	n_boot_polls    = 100
	n_boot_attempts = 10

	poll_idle = 1 * time.Microsecond
)

// mcResume programs the vcpu's view of the cache bar: three contiguous
// regions whose offsets are written in 8 byte units.
func (d *dev) mcResume() {
	r := d.regs

	r.lmi_vcpu_cache_bar.set(d, d.fwBuf.DeviceAddress())

	offset := uint(firmware_offset)
	size := mem.PageAlign(uint(len(d.fw.Data)) + 4)
	r.vcpu_cache_offset0.set(d, uint32(offset>>3))
	r.vcpu_cache_size0.set(d, uint32(size))

	offset += size
	size = vcpu_stack_size
	r.vcpu_cache_offset1.set(d, uint32(offset>>3))
	r.vcpu_cache_size1.set(d, uint32(size))

	offset += size
	size = vcpu_heap_size
	r.vcpu_cache_offset2.set(d, uint32(offset>>3))
	r.vcpu_cache_size2.set(d, uint32(size))
}

// start brings the engine from powered-but-idle to accepting ring
// commands.  The order of resets, settles and enables below is the
// bring-up sequence required by the hardware; do not reorder.
func (d *dev) start() error {
	r := d.regs

	// Disable deep power gating while we drive the block directly.
	r.power_status.modify(d, 0, 1<<2)

	lmi_swap_cntl := uint32(0)
	mp_swap_cntl := uint32(0)

	d.mcResume()

	// Disable clock gating.
	r.cgc_gate.set(d, 0)

	// Disable vcpu interrupt until the engine is up.
	r.mastint_en.modify(d, 0, 1<<1)

	// Stall memory controller and register bus before touching resets.
	r.lmi_ctrl2.modify(d, 1<<8, 1<<8)
	d.delay(settle_bridge_stall)

	// Put all reset capable subblocks into reset at once.
	r.soft_reset.set(d, soft_reset_lmi|soft_reset_vcpu|soft_reset_lbsi|
		soft_reset_rbc|soft_reset_csm|soft_reset_cxw|soft_reset_tap|
		soft_reset_lmi_umc)
	d.delay(settle_block_reset)

	// Release the block level reset in the surrounding system block.
	r.srbm_soft_reset.modify(d, 0, srbm_soft_reset_uvd)
	d.delay(settle_block_reset)

	// Memory controller: write clean timer 0x40 with enable, crc
	// reset, mask mc urgent, data coherency for both clients.
	r.lmi_ctrl.set(d, 0x40|1<<8|1<<13|1<<21|1<<9|1<<20)

	if hw.BigEndian {
		// Swap 8 in 32 for ring and indirect buffer fetch.
		lmi_swap_cntl = 0xa
		mp_swap_cntl = 0
	}
	r.lmi_swap_cntl.set(d, lmi_swap_cntl)
	r.mp_swap_cntl.set(d, mp_swap_cntl)

	r.mpc_set_muxa0.set(d, 0x40c2040)
	r.mpc_set_muxa1.set(d, 0x0)
	r.mpc_set_muxb0.set(d, 0x40c2040)
	r.mpc_set_muxb1.set(d, 0x0)
	r.mpc_set_alu.set(d, 0)
	r.mpc_set_mux.set(d, 0x88)

	// Everything out of reset except the vcpu.
	r.soft_reset.set(d, soft_reset_vcpu)
	d.delay(settle_block_reset)

	// Enable vcpu clock.
	r.vcpu_cntl.set(d, 1<<9)

	// Unstall memory controller and register bus.
	r.lmi_ctrl2.modify(d, 0, 1<<8)

	// Releasing the vcpu reset boots the firmware.
	r.soft_reset.set(d, 0)
	d.delay(settle_vcpu_boot)

	if err := d.waitBooted(); err != nil {
		return err
	}

	// Enable master interrupts.
	r.mastint_en.modify(d, 3<<1, 3<<1)

	// Clear the busy status bit left over from boot.
	r.status.modify(d, 0, 2<<1)

	// Ring size field is log2 of the ring's size in bytes.
	rb_bufsz := log2(4 * d.ring.Len())
	tmp := rb_bufsz | 1<<rb_blksz_shift
	tmp |= rb_no_fetch
	tmp |= rb_no_update
	tmp |= rb_rptr_wr_en
	// Force the ring controller into idle state.
	r.rbc_rb_cntl.set(d, tmp)

	// No write pointer delay.
	r.rbc_rb_wptr_cntl.set(d, 0)

	// Read pointer writeback address.
	r.rbc_rb_rptr_addr.set(d, uint32(d.ring.DeviceAddress()>>32)>>2)

	// Ring base.
	r.lmi_rbc_rb_bar.set(d, d.ring.DeviceAddress())

	// Zero the hardware read pointer and mirror it into the software
	// write pointer so producer and consumer agree on an empty ring.
	r.rbc_rb_rptr.set(d, 0)
	d.ring.SetWptr(r.rbc_rb_rptr.get(d))
	r.rbc_rb_wptr.set(d, d.ring.Wptr())

	// Let the vcpu start fetching ring entries.
	r.rbc_rb_cntl.modify(d, 0, rb_no_fetch)

	return nil
}

// waitBooted polls the status register for the booted bit, resetting
// and rebooting the vcpu between bounded attempts.  A part that never
// comes up is reported, not retried forever.
func (d *dev) waitBooted() error {
	r := d.regs

	var status uint32
	for i := 0; i < n_boot_attempts; i++ {
		for j := 0; j < n_boot_polls; j++ {
			status = r.status.get(d)
			if status&2 != 0 {
				return nil
			}
			d.delay(boot_poll)
		}

		log.Printf("err", "uvd: not responding (attempt %d, status 0x%x), resetting vcpu", i+1, status)
		r.soft_reset.modify(d, soft_reset_vcpu, soft_reset_vcpu)
		d.delay(settle_vcpu_boot)
		r.soft_reset.modify(d, 0, soft_reset_vcpu)
		d.delay(settle_vcpu_boot)
	}

	log.Print("err", "uvd: not responding, giving up")
	return fmt.Errorf("%w: status 0x%x after %d boot attempts",
		ErrNotResponding, status, n_boot_attempts)
}

// stop idles the ring controller and holds the vcpu in reset.  Safe to
// call on an already stopped engine.
func (d *dev) stop() {
	r := d.regs

	// Force the ring controller into idle state.
	r.rbc_rb_cntl.set(d, rb_cntl_idle)

	// Stall memory controller and register bus before resetting vcpu.
	r.lmi_ctrl2.modify(d, 1<<8, 1<<8)
	d.delay(settle_bridge_stall)

	// Put vcpu into reset.
	r.soft_reset.set(d, soft_reset_vcpu)
	d.delay(settle_block_reset)

	// Disable vcpu clock.
	r.vcpu_cntl.set(d, 0)

	// Unstall memory controller and register bus.
	r.lmi_ctrl2.modify(d, 0, 1<<8)
}

func log2(v uint32) (l uint32) {
	for v > 1 {
		v >>= 1
		l++
	}
	return
}
