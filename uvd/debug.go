// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uvd

import (
	"fmt"
	"io"
)

// Register dump rows, in hardware order.
func (d *dev) regDump() []struct {
	name string
	r    *reg
} {
	r := d.regs
	return []struct {
		name string
		r    *reg
	}{
		{"UVD_SEMA_ADDR_LOW", &r.sema_addr_low},
		{"UVD_SEMA_ADDR_HIGH", &r.sema_addr_high},
		{"UVD_SEMA_CMD", &r.sema_cmd},
		{"UVD_GPCOM_VCPU_CMD", &r.gpcom_vcpu_cmd},
		{"UVD_GPCOM_VCPU_DATA0", &r.gpcom_vcpu_data0},
		{"UVD_GPCOM_VCPU_DATA1", &r.gpcom_vcpu_data1},
		{"UVD_ENGINE_CNTL", &r.engine_cntl},
		{"UVD_UDEC_ADDR_CONFIG", &r.udec_addr_config},
		{"UVD_UDEC_DB_ADDR_CONFIG", &r.udec_db_addr_config},
		{"UVD_UDEC_DBW_ADDR_CONFIG", &r.udec_dbw_addr_config},
		{"UVD_SEMA_CNTL", &r.sema_cntl},
		{"UVD_LMI_EXT40_ADDR", &r.lmi_ext40_addr},
		{"UVD_CTX_INDEX", &r.ctx_index},
		{"UVD_CTX_DATA", &r.ctx_data},
		{"UVD_CGC_GATE", &r.cgc_gate},
		{"UVD_CGC_CTRL", &r.cgc_ctrl},
		{"UVD_LMI_CTRL2", &r.lmi_ctrl2},
		{"UVD_MASTINT_EN", &r.mastint_en},
		{"UVD_LMI_ADDR_EXT", &r.lmi_addr_ext},
		{"UVD_LMI_CTRL", &r.lmi_ctrl},
		{"UVD_LMI_SWAP_CNTL", &r.lmi_swap_cntl},
		{"UVD_MP_SWAP_CNTL", &r.mp_swap_cntl},
		{"UVD_MPC_SET_MUXA0", &r.mpc_set_muxa0},
		{"UVD_MPC_SET_MUXA1", &r.mpc_set_muxa1},
		{"UVD_MPC_SET_MUXB0", &r.mpc_set_muxb0},
		{"UVD_MPC_SET_MUXB1", &r.mpc_set_muxb1},
		{"UVD_MPC_SET_MUX", &r.mpc_set_mux},
		{"UVD_MPC_SET_ALU", &r.mpc_set_alu},
		{"UVD_VCPU_CACHE_OFFSET0", &r.vcpu_cache_offset0},
		{"UVD_VCPU_CACHE_SIZE0", &r.vcpu_cache_size0},
		{"UVD_VCPU_CACHE_OFFSET1", &r.vcpu_cache_offset1},
		{"UVD_VCPU_CACHE_SIZE1", &r.vcpu_cache_size1},
		{"UVD_VCPU_CACHE_OFFSET2", &r.vcpu_cache_offset2},
		{"UVD_VCPU_CACHE_SIZE2", &r.vcpu_cache_size2},
		{"UVD_VCPU_CNTL", &r.vcpu_cntl},
		{"UVD_SOFT_RESET", &r.soft_reset},
		{"UVD_RBC_IB_SIZE", &r.rbc_ib_size},
		{"UVD_RBC_RB_RPTR", &r.rbc_rb_rptr},
		{"UVD_RBC_RB_WPTR", &r.rbc_rb_wptr},
		{"UVD_RBC_RB_WPTR_CNTL", &r.rbc_rb_wptr_cntl},
		{"UVD_RBC_RB_CNTL", &r.rbc_rb_cntl},
		{"UVD_STATUS", &r.status},
		{"UVD_SEMA_TIMEOUT_STATUS", &r.sema_timeout_status},
		{"UVD_SEMA_WAIT_INCOMPLETE_TIMEOUT_CNTL", &r.sema_wait_incomplete_timeout_cntl},
		{"UVD_SEMA_WAIT_FAULT_TIMEOUT_CNTL", &r.sema_wait_fault_timeout_cntl},
		{"UVD_SEMA_SIGNAL_INCOMPLETE_TIMEOUT_CNTL", &r.sema_signal_incomplete_timeout_cntl},
		{"UVD_CONTEXT_ID", &r.context_id},
	}
}

// PrintRegs writes a read-only dump of the engine's registers for
// operator debugging.
func (d *dev) PrintRegs(w io.Writer) {
	fmt.Fprintf(w, "UVD (%s) registers\n", d.d.name())
	for _, x := range d.regDump() {
		fmt.Fprintf(w, "  %s=0x%08X\n", x.name, x.r.get(d))
	}
}
