// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Uvdd supervises one UVD decode engine and publishes its state to
// redis.  Operators hset uvd.reset to force a soft reset through the
// daemon's rpc socket.
//
//	uvdd [-fused] -dev FILE [-base OFF] [-mem FILE] [-membase ADDR] -fw PATH
package main

import (
	"fmt"
	"net/rpc"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"
	"github.com/platinasystems/redis/rpc/args"
	"github.com/platinasystems/redis/rpc/reply"

	"github.com/SharkBa1t/uvd/hw"
	"github.com/SharkBa1t/uvd/irq"
	"github.com/SharkBa1t/uvd/mem"
	"github.com/SharkBa1t/uvd/uvd"
)

const windowBytes = 0x10000

type daemon struct {
	Info
}

type Info struct {
	mutex sync.Mutex
	rpc   *atsock.RpcServer
	pub   *publisher.Publisher
	stop  chan struct{}
	lasts map[string]string

	d uvd.Block
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "uvdd: ", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		log.Print("notice: uvdd: running in foreground")
	}

	flag, argv := flags.New(argv, "-fused")
	parm, argv := parms.New(argv, "-dev", "-base", "-mem", "-membase", "-fw")
	if len(argv) > 0 {
		return fmt.Errorf("%v: unexpected", argv)
	}

	d, err := open(flag, parm)
	if err != nil {
		return err
	}
	c := &daemon{}
	c.Info.d = d

	if err = d.SwInit(); err != nil {
		return err
	}
	defer d.SwFini()
	if err = d.HwInit(); err != nil {
		return err
	}
	defer d.HwFini()

	if err = redis.IsReady(); err != nil {
		return err
	}

	c.stop = make(chan struct{})
	c.lasts = make(map[string]string)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		close(c.stop)
	}()

	if c.pub, err = publisher.New(); err != nil {
		return err
	}

	if c.rpc, err = atsock.NewRpcServer("uvdd"); err != nil {
		return err
	}
	rpc.Register(&c.Info)
	if err = redis.Assign(redis.DefaultHash+":uvd.", "uvdd", "Info"); err != nil {
		return err
	}

	t := time.NewTicker(1 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return nil
		case <-t.C:
			c.update()
		}
	}
}

func (i *Info) update() {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	state := "ready"
	if !i.d.IsIdle() {
		state = "busy"
	}
	i.publish("uvd.state", state)
}

func (i *Info) publish(key, value string) {
	if i.lasts[key] != value {
		i.pub.Print(key, ": ", value)
		i.lasts[key] = value
	}
}

// Hset services operator writes against the uvd hash.
func (i *Info) Hset(a args.Hset, r *reply.Hset) error {
	switch a.Field {
	case "uvd.reset":
		i.mutex.Lock()
		defer i.mutex.Unlock()
		if err := i.d.SoftReset(); err != nil {
			return err
		}
		log.Print("notice: uvdd: engine reset by operator")
		*r = 1
		return nil
	case "uvd.powergate":
		gate, err := strconv.ParseBool(string(a.Value))
		if err != nil {
			return err
		}
		i.mutex.Lock()
		defer i.mutex.Unlock()
		if err = i.d.SetPowergatingState(gate); err != nil {
			return err
		}
		*r = 1
		return nil
	}
	return fmt.Errorf("cannot hset: %s", a.Field)
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

	// The firmware may be served from a provisioning host that is
	// still coming up when the daemon starts.
	cf := uvd.Config{Firmware: parm.ByName["-fw"], FirmwareTries: 5}
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
