// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uvd

import (
	"github.com/platinasystems/log"

	"github.com/SharkBa1t/uvd/hw"
	"github.com/SharkBa1t/uvd/irq"
	"github.com/SharkBa1t/uvd/ring"
)

// One trap type; the payload carries nothing the fence writeback does
// not already say.
const n_trap_types = 1

func (d *dev) irqSource() *irq.Source {
	return &irq.Source{
		NTypes:  n_trap_types,
		Process: d.processTrap,
		Set:     d.setInterruptState,
	}
}

func (d *dev) processTrap(e irq.Entry) error {
	log.Print("uvd: trap")
	d.processFences()
	return nil
}

// processFences advances the completion tracker from the writeback
// slot the fence packets target.
func (d *dev) processFences() {
	if d.wbBuf.Len() == 0 {
		return
	}
	d.fences.Process(hw.LoadUint32(d.wbBuf.Bytes(), 0))
}

// Fences exposes the completion tracker to submitters waiting out of
// band.
func (d *dev) Fences() *ring.Fences { return &d.fences }

// setInterruptState would mask or unmask the trap at the interrupt
// controller.  Masking policy lives with the owning driver and the
// hardware hookup is not wired yet; failing loudly beats pretending the
// mask changed.
func (d *dev) setInterruptState(typ uint, s irq.State) error {
	return ErrNotImplemented
}
