// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hw

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/platinasystems/fdt"
)

// WindowFromFdt finds the register window of the node with the given
// compatible string in a flattened device tree.  Integrated parts
// describe the engine there instead of a discoverable bus.
func WindowFromFdt(dtb []byte, compatible string) (base uint64, size uint, err error) {
	t := &fdt.Tree{Debug: false, IsLittleEndian: false}
	t.Parse(dtb)

	found := false
	t.EachProperty("compatible", "", func(n *fdt.Node, name string, value string) {
		if !strings.Contains(value, compatible) {
			return
		}
		reg, ok := n.Properties["reg"]
		if !ok || found {
			return
		}
		// address-cells/size-cells of 2 each.
		if len(reg) < 16 {
			return
		}
		base = binary.BigEndian.Uint64(reg[0:])
		size = uint(binary.BigEndian.Uint64(reg[8:]))
		found = true
	})
	if !found {
		err = fmt.Errorf("hw: no node compatible with %q", compatible)
	}
	return
}
