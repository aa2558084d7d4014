// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uvd

import (
	"fmt"

	"github.com/platinasystems/log"

	"github.com/SharkBa1t/uvd/mem"
)

// Ring commands are (register header, value) word pairs; the vcpu
// decodes by register address, not position.

// EmitFence writes a fence and trap command.  The sequence and
// writeback address are staged with command 0, cleared, then signaled
// with command 2.  The stage/clear/signal shape orders the trap against
// the vcpu's internal command queue; do not collapse it.
func (d *dev) EmitFence() (seq uint32, err error) {
	if !d.ringReady {
		err = fmt.Errorf("uvd: ring not ready")
		return
	}
	r := d.regs
	seq = d.fences.NextSeq()
	addr := d.wbBuf.DeviceAddress()

	if err = d.ring.Lock(14); err != nil {
		return
	}
	d.ring.Write(pkt0(&r.context_id, 0))
	d.ring.Write(seq)
	d.ring.Write(pkt0(&r.gpcom_vcpu_data0, 0))
	d.ring.Write(uint32(addr))
	d.ring.Write(pkt0(&r.gpcom_vcpu_data1, 0))
	d.ring.Write(uint32(addr>>32) & 0xff)
	d.ring.Write(pkt0(&r.gpcom_vcpu_cmd, 0))
	d.ring.Write(0)

	d.ring.Write(pkt0(&r.gpcom_vcpu_data0, 0))
	d.ring.Write(0)
	d.ring.Write(pkt0(&r.gpcom_vcpu_data1, 0))
	d.ring.Write(0)
	d.ring.Write(pkt0(&r.gpcom_vcpu_cmd, 0))
	d.ring.Write(2)
	d.ring.Commit()
	return
}

// EmitSemaphore writes a semaphore wait or signal command for the
// given device address.
func (d *dev) EmitSemaphore(addr uint64, wait bool) error {
	if !d.ringReady {
		return fmt.Errorf("uvd: ring not ready")
	}
	r := d.regs
	cmd := uint32(0x80)
	if wait {
		cmd |= 1
	}

	if err := d.ring.Lock(6); err != nil {
		return err
	}
	d.ring.Write(pkt0(&r.sema_addr_low, 0))
	d.ring.Write(uint32(addr>>3) & 0x000FFFFF)
	d.ring.Write(pkt0(&r.sema_addr_high, 0))
	d.ring.Write(uint32(addr>>23) & 0x000FFFFF)
	d.ring.Write(pkt0(&r.sema_cmd, 0))
	d.ring.Write(cmd)
	d.ring.Commit()
	return nil
}

// EmitIB points the vcpu at an indirect buffer of lengthWords command
// words.
func (d *dev) EmitIB(ib *mem.Buffer, lengthWords uint32) error {
	if !d.ringReady {
		return fmt.Errorf("uvd: ring not ready")
	}
	r := d.regs

	if err := d.ring.Lock(6); err != nil {
		return err
	}
	d.ring.Write(pkt0(&r.lmi_rbc_ib_bar[0], 0))
	d.ring.Write(uint32(ib.DeviceAddress()))
	d.ring.Write(pkt0(&r.lmi_rbc_ib_bar[1], 0))
	d.ring.Write(uint32(ib.DeviceAddress() >> 32))
	d.ring.Write(pkt0(&r.rbc_ib_size, 0))
	d.ring.Write(lengthWords)
	d.ring.Commit()
	return nil
}

// WaitFence polls until the fence with sequence seq signals or the
// device timeout elapses.  Completion is interrupt driven but the
// writeback slot is also read here so a missed trap does not wedge the
// caller.
func (d *dev) WaitFence(seq uint32) error {
	for i := uint(0); i < d.cf.UsecTimeout; i++ {
		d.processFences()
		if d.fences.Done(seq) {
			return nil
		}
		d.delay(poll_idle)
	}
	return fmt.Errorf("%w: fence 0x%x not signaled (processed 0x%x)",
		ErrTimeout, seq, d.fences.Processed())
}

// TestRing proves the ring pipeline delivers writes to hardware in
// order: a sentinel lands in the scratch register via a direct write,
// a different one must land through the ring path.
func (d *dev) TestRing() error {
	r := d.regs

	r.context_id.set(d, 0xCAFEDEAD)

	if err := d.ring.Lock(3); err != nil {
		return fmt.Errorf("uvd: ring test lock: %w", err)
	}
	d.ring.Write(pkt0(&r.context_id, 0))
	d.ring.Write(0xDEADBEEF)
	d.ring.Commit()

	var tmp uint32
	for i := uint(0); i < d.cf.UsecTimeout; i++ {
		tmp = r.context_id.get(d)
		if tmp == 0xDEADBEEF {
			log.Printf("notice: uvd: ring test succeeded in %d usecs", i)
			return nil
		}
		d.delay(poll_idle)
	}
	return fmt.Errorf("%w: ring test read 0x%08x, want 0xDEADBEEF",
		ErrTestFailed, tmp)
}

// SessionMsgs builds the create/destroy decode session messages used
// by the indirect buffer self test.  Message construction is owned by
// the generic decode layer, not this driver.
type SessionMsgs interface {
	CreateMsg(handle uint32) (ib *mem.Buffer, lengthWords uint32, err error)
	DestroyMsg(handle uint32) (ib *mem.Buffer, lengthWords uint32, err error)
}

// TestIB runs a create/destroy session pair through the indirect
// buffer path and waits for its fence.
func (d *dev) TestIB(msgs SessionMsgs) error {
	ib, n, err := msgs.CreateMsg(1)
	if err != nil {
		return fmt.Errorf("uvd: create msg: %w", err)
	}
	if err = d.EmitIB(ib, n); err != nil {
		return err
	}

	if ib, n, err = msgs.DestroyMsg(1); err != nil {
		return fmt.Errorf("uvd: destroy msg: %w", err)
	}
	if err = d.EmitIB(ib, n); err != nil {
		return err
	}
	seq, err := d.EmitFence()
	if err != nil {
		return err
	}

	if err = d.WaitFence(seq); err != nil {
		return fmt.Errorf("uvd: ib test: %w", err)
	}
	log.Print("notice: uvd: ib test succeeded")
	return nil
}
