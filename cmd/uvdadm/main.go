// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Uvdadm is a bring-up and diagnostic tool for the UVD decode engine.
//
//	uvdadm [-fused] -dev FILE [-base OFF] [-dtb FILE]
//		[-mem FILE] [-membase ADDR] [-fw PATH]
//		status | test | reset | fetch URL...
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"github.com/SharkBa1t/uvd/fw"
	"github.com/SharkBa1t/uvd/hw"
	"github.com/SharkBa1t/uvd/irq"
	"github.com/SharkBa1t/uvd/mem"
	"github.com/SharkBa1t/uvd/uvd"
)

// Register window size; covers the whole overlay.
const windowBytes = 0x10000

const compatible = "amd,uvd-6.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "uvdadm: ", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flag, args := flags.New(args, "-fused")
	parm, args := parms.New(args, "-dev", "-base", "-dtb", "-mem",
		"-membase", "-fw")
	if len(args) == 0 {
		return fmt.Errorf("missing command: status|test|reset|fetch")
	}

	if args[0] == "fetch" {
		if len(args) < 2 {
			return fmt.Errorf("fetch: URL missing")
		}
		return fw.Fetch(args[1:]...)
	}

	d, err := open(flag, parm)
	if err != nil {
		return err
	}

	switch args[0] {
	case "status":
		if isatty.IsTerminal(os.Stdout.Fd()) {
			fmt.Println("==>", parm.ByName["-dev"])
		}
		d.PrintRegs(os.Stdout)
		return nil
	case "test":
		if err = d.SwInit(); err != nil {
			return err
		}
		defer d.SwFini()
		if err = d.HwInit(); err != nil {
			return err
		}
		defer d.HwFini()
		fmt.Println("ring test passed")
		return nil
	case "reset":
		if err = d.SwInit(); err != nil {
			return err
		}
		defer d.SwFini()
		if err = d.SoftReset(); err != nil {
			return err
		}
		defer d.HwFini()
		fmt.Println("engine reset")
		return nil
	}
	return fmt.Errorf("%s: unknown command", args[0])
}

func open(flag *flags.Flags, parm *parms.Parms) (uvd.Block, error) {
	dev := parm.ByName["-dev"]
	if len(dev) == 0 {
		return nil, fmt.Errorf("-dev: missing")
	}

	base := int64(0)
	if s := parm.ByName["-base"]; len(s) > 0 {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("-base: %v", err)
		}
		base = int64(v)
	}
	if s := parm.ByName["-dtb"]; len(s) > 0 {
		b, err := ioutil.ReadFile(s)
		if err != nil {
			return nil, err
		}
		winBase, _, err := hw.WindowFromFdt(b, compatible)
		if err != nil {
			return nil, err
		}
		base = int64(winBase)
	}

	bus, err := hw.Map(dev, base, windowBytes)
	if err != nil {
		return nil, err
	}

	var heap *mem.Heap
	if s := parm.ByName["-mem"]; len(s) > 0 {
		membase := uint64(0)
		if ms := parm.ByName["-membase"]; len(ms) > 0 {
			if membase, err = strconv.ParseUint(ms, 0, 64); err != nil {
				return nil, fmt.Errorf("-membase: %v", err)
			}
		}
		backing, err := hw.MapBytes(s, 0, 8<<20)
		if err != nil {
			return nil, err
		}
		heap = mem.NewHeap(membase, backing)
	} else {
		heap = mem.NewHeap(0, make([]byte, 8<<20))
	}

	cf := uvd.Config{Firmware: parm.ByName["-fw"]}
	irqs := &irq.Map{}

	var d uvd.Block
	if flag.ByName["-fused"] {
		d = uvd.NewCarrizo(bus, heap, irqs, cf)
	} else {
		d = uvd.NewTonga(bus, heap, irqs, cf)
	}
	if err = d.EarlyInit(); err != nil {
		return nil, err
	}
	return d, nil
}
