// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build debug
// +build debug

package uvd

import (
	"fmt"
	"unsafe"

	"github.com/SharkBa1t/uvd/hw"
)

func check(tag string, p unsafe.Pointer, expect uint) {
	got := uint(uintptr(p)-hw.RegsBaseAddress) >> 2
	if got != expect {
		panic(fmt.Errorf("uvd: %s at dword 0x%x, want 0x%x", tag, got, expect))
	}
}

// Validate register map against the hardware register file.
func init() {
	r := getRegs()
	check("srbm_status", unsafe.Pointer(&r.srbm_status), 0x394)
	check("srbm_soft_reset", unsafe.Pointer(&r.srbm_soft_reset), 0x398)
	check("sema_addr_low", unsafe.Pointer(&r.sema_addr_low), 0x3bc0)
	check("engine_cntl", unsafe.Pointer(&r.engine_cntl), 0x3bc6)
	check("udec_addr_config", unsafe.Pointer(&r.udec_addr_config), 0x3bd3)
	check("sema_cntl", unsafe.Pointer(&r.sema_cntl), 0x3d00)
	check("lmi_ext40_addr", unsafe.Pointer(&r.lmi_ext40_addr), 0x3d26)
	check("cgc_gate", unsafe.Pointer(&r.cgc_gate), 0x3d2a)
	check("lmi_ctrl2", unsafe.Pointer(&r.lmi_ctrl2), 0x3d3d)
	check("mastint_en", unsafe.Pointer(&r.mastint_en), 0x3d40)
	check("lmi_rbc_rb_bar", unsafe.Pointer(&r.lmi_rbc_rb_bar), 0x3d58)
	check("lmi_ctrl", unsafe.Pointer(&r.lmi_ctrl), 0x3d66)
	check("mpc_set_muxa0", unsafe.Pointer(&r.mpc_set_muxa0), 0x3d79)
	check("vcpu_cache_offset0", unsafe.Pointer(&r.vcpu_cache_offset0), 0x3d82)
	check("vcpu_cntl", unsafe.Pointer(&r.vcpu_cntl), 0x3d98)
	check("soft_reset", unsafe.Pointer(&r.soft_reset), 0x3da0)
	check("rbc_rb_rptr", unsafe.Pointer(&r.rbc_rb_rptr), 0x3da4)
	check("rbc_rb_cntl", unsafe.Pointer(&r.rbc_rb_cntl), 0x3da9)
	check("status", unsafe.Pointer(&r.status), 0x3daf)
	check("context_id", unsafe.Pointer(&r.context_id), 0x3dbd)
	check("power_status", unsafe.Pointer(&r.power_status), 0x3dc0)
}
