// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uvd

import (
	"encoding/binary"
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/SharkBa1t/uvd/hw"
	"github.com/SharkBa1t/uvd/irq"
	"github.com/SharkBa1t/uvd/mem"
)

// testBus is a register file in host memory with a model of the vcpu
// on the consumer side: ring entries written through the committed
// write pointer are decoded and applied to the register file, and
// fence commands land in the writeback buffer.  Delays accumulate
// instead of sleeping so timing bounded sequences run instantly.
type testBus struct {
	mem []uint32
	d   *dev

	slept time.Duration

	// Boot model: the status register reports the booted bit after
	// this many reads; < 0 means the vcpu never comes up.
	bootAfter   int
	statusReads int

	// Count of 0 -> 1 transitions of the vcpu soft reset bit.
	resetPulses   int
	lastSoftReset uint32

	noConsume bool
	rptr      uint32

	fenceSeq uint32
}

func (b *testBus) Read32(o uint) uint32 {
	v := b.mem[o>>2]
	if o == getRegs().status.offset() {
		b.statusReads++
		if b.bootAfter >= 0 && b.statusReads > b.bootAfter {
			v |= 2
		} else {
			v &^= 2
		}
	}
	return v
}

func (b *testBus) Write32(o uint, v uint32) {
	b.mem[o>>2] = v
	r := getRegs()
	switch o {
	case r.soft_reset.offset():
		if v&soft_reset_vcpu != 0 && b.lastSoftReset&soft_reset_vcpu == 0 {
			b.resetPulses++
		}
		b.lastSoftReset = v
	case r.rbc_rb_wptr.offset():
		if !b.noConsume {
			b.consume(v)
		}
	}
}

func (b *testBus) Delay(d time.Duration) { b.slept += d }

// consume decodes (register header, value) pairs up to the committed
// write pointer, the way the engine fetches the ring.
func (b *testBus) consume(wptr uint32) {
	if b.d == nil || b.d.ring == nil {
		return
	}
	r := getRegs()
	words := b.d.rbBuf.Words()[:b.d.cf.RingWords]
	mask := b.d.cf.RingWords - 1
	for b.rptr != wptr {
		hdr := words[b.rptr&mask]
		val := words[(b.rptr+1)&mask]
		b.rptr = (b.rptr + 2) & mask

		dword := hdr & 0xFFFF
		b.mem[dword] = val
		switch dword {
		case r.gpcom_vcpu_cmd.address():
			switch val {
			case 0:
				b.fenceSeq = b.mem[r.context_id.address()]
			case 2:
				hw.StoreUint32(b.d.wbBuf.Bytes(), 0, b.fenceSeq)
			}
		}
	}
	b.mem[r.rbc_rb_rptr.address()] = b.rptr
}

func testFirmware(t *testing.T, version uint32, n int) string {
	b := make([]byte, 16+n)
	binary.LittleEndian.PutUint32(b[0:], uint32(len(b)))
	binary.LittleEndian.PutUint32(b[4:], 16)
	binary.LittleEndian.PutUint32(b[8:], version)
	binary.LittleEndian.PutUint32(b[12:], 16)
	for i := 0; i < n; i++ {
		b[16+i] = byte(i)
	}
	name := filepath.Join(t.TempDir(), "uvd.bin")
	if err := ioutil.WriteFile(name, b, 0644); err != nil {
		t.Fatal(err)
	}
	return name
}

func newTestDev(t *testing.T, fwBytes int) (*dev, *testBus) {
	bus := &testBus{mem: make([]uint32, 0x4000)}
	heap := mem.NewHeap(0x80000000, make([]byte, 8<<20))
	dr := &dev_tonga{}
	newDev(dr, bus, heap, &irq.Map{}, Config{
		Firmware:    testFirmware(t, 0x40002b, fwBytes),
		RingWords:   64,
		UsecTimeout: 64,
	})
	d := dr.get()
	bus.d = d
	if err := d.EarlyInit(); err != nil {
		t.Fatal(err)
	}
	return d, bus
}

func TestStartNotResponding(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	bus.bootAfter = -1
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()

	err := d.start()
	if !errors.Is(err, ErrNotResponding) {
		t.Fatalf("start with dead vcpu: got %v, want ErrNotResponding", err)
	}
	if got, want := bus.statusReads, n_boot_attempts*n_boot_polls; got != want {
		t.Errorf("%d status polls, want %d", got, want)
	}
	// One pulse from the initial subblock reset, one per boot attempt.
	if got, want := bus.resetPulses, 1+n_boot_attempts; got != want {
		t.Errorf("%d vcpu reset pulses, want %d", got, want)
	}
	if bus.slept == 0 {
		t.Error("no settle delays during bring-up")
	}
}

func TestStartThirdAttempt(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	// Booted bit appears on the first poll of the third attempt.
	bus.bootAfter = 2 * n_boot_polls
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()

	if err := d.start(); err != nil {
		t.Fatal(err)
	}
	// One pulse from the initial subblock reset, two retry pulses.
	if got, want := bus.resetPulses, 3; got != want {
		t.Errorf("%d vcpu reset pulses, want %d", got, want)
	}
}

func TestHwInit(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	r := getRegs()
	// Ring test sentinel went through the ring path.
	if got := bus.mem[r.context_id.address()]; got != 0xDEADBEEF {
		t.Errorf("context_id 0x%08x, want 0xDEADBEEF", got)
	}
	// Vcpu clock on, interrupts enabled, fetch enabled.
	if got := bus.mem[r.vcpu_cntl.address()]; got != 1<<9 {
		t.Errorf("vcpu_cntl 0x%x, want 0x%x", got, 1<<9)
	}
	if got := bus.mem[r.mastint_en.address()]; got&(3<<1) != 3<<1 {
		t.Errorf("mastint_en 0x%x, interrupts not enabled", got)
	}
	if got := bus.mem[r.rbc_rb_cntl.address()]; got&rb_no_fetch != 0 {
		t.Errorf("rbc_rb_cntl 0x%x, fetch still disabled", got)
	}
	// 64 word ring is 256 bytes; the size field is log2 of bytes.
	if got := bus.mem[r.rbc_rb_cntl.address()] & 0x1f; got != 8 {
		t.Errorf("rbc_rb_cntl size field %d, want 8", got)
	}
	// Semaphore timeouts programmed through the ring.
	for _, x := range []struct {
		name string
		r    *reg
		want uint32
	}{
		{"sema_wait_fault_timeout_cntl", &r.sema_wait_fault_timeout_cntl, 0xFFFFF},
		{"sema_wait_incomplete_timeout_cntl", &r.sema_wait_incomplete_timeout_cntl, 0xFFFFF},
		{"sema_signal_incomplete_timeout_cntl", &r.sema_signal_incomplete_timeout_cntl, 0xFFFFF},
		{"sema_cntl", &r.sema_cntl, 3},
	} {
		if got := bus.mem[x.r.address()]; got != x.want {
			t.Errorf("%s 0x%x, want 0x%x", x.name, got, x.want)
		}
	}
}

func TestCacheLayout(t *testing.T) {
	d, bus := newTestDev(t, 100000)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.start(); err != nil {
		t.Fatal(err)
	}

	r := getRegs()
	size0 := uint32(102400) // 100000 + 4 page aligned
	for _, x := range []struct {
		name string
		r    *reg
		want uint32
	}{
		{"vcpu_cache_offset0", &r.vcpu_cache_offset0, firmware_offset >> 3},
		{"vcpu_cache_size0", &r.vcpu_cache_size0, size0},
		{"vcpu_cache_offset1", &r.vcpu_cache_offset1, (firmware_offset + size0) >> 3},
		{"vcpu_cache_size1", &r.vcpu_cache_size1, vcpu_stack_size},
		{"vcpu_cache_offset2", &r.vcpu_cache_offset2, (firmware_offset + size0 + vcpu_stack_size) >> 3},
		{"vcpu_cache_size2", &r.vcpu_cache_size2, vcpu_heap_size},
	} {
		if got := bus.mem[x.r.address()]; got != x.want {
			t.Errorf("%s 0x%x, want 0x%x", x.name, got, x.want)
		}
	}
	if got, want := bus.mem[r.lmi_vcpu_cache_bar[0].address()], uint32(d.fwBuf.DeviceAddress()); got != want {
		t.Errorf("cache bar low 0x%x, want 0x%x", got, want)
	}
	// Firmware lands at its fixed offset in the cache region.
	b := d.fwBuf.Bytes()
	for i := 0; i < 16; i++ {
		if b[firmware_offset+i] != byte(i) {
			t.Fatalf("firmware byte %d is 0x%x, want 0x%x", i, b[firmware_offset+i], byte(i))
		}
	}
}

func TestFencePath(t *testing.T) {
	d, _ := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	seq, err := d.EmitFence()
	if err != nil {
		t.Fatal(err)
	}
	if err = d.WaitFence(seq); err != nil {
		t.Fatal(err)
	}
	if got := d.Fences().Processed(); got != seq {
		t.Errorf("processed 0x%x, want 0x%x", got, seq)
	}

	// Fences signal in submission order.
	s1, err := d.EmitFence()
	if err != nil {
		t.Fatal(err)
	}
	s2, err := d.EmitFence()
	if err != nil {
		t.Fatal(err)
	}
	if err = d.WaitFence(s2); err != nil {
		t.Fatal(err)
	}
	if !d.Fences().Done(s1) {
		t.Error("earlier fence not done after later fence signaled")
	}
}

func TestTrapDispatch(t *testing.T) {
	d, _ := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	// The engine has written the sequence back but nothing has read
	// the slot yet; the trap path must pick it up.
	seq, err := d.EmitFence()
	if err != nil {
		t.Fatal(err)
	}
	if d.Fences().Done(seq) {
		t.Fatal("fence done before trap dispatch")
	}
	if err = d.irqs.Dispatch(irq.Entry{SrcID: d.cf.TrapID}); err != nil {
		t.Fatal(err)
	}
	if !d.Fences().Done(seq) {
		t.Error("fence not done after trap dispatch")
	}
}

func TestSemaphoreEncoding(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	r := getRegs()
	const addr = uint64(0x123456789A8)
	if err := d.EmitSemaphore(addr, true); err != nil {
		t.Fatal(err)
	}
	for _, x := range []struct {
		name string
		r    *reg
		want uint32
	}{
		{"sema_addr_low", &r.sema_addr_low, 0xCF135},
		{"sema_addr_high", &r.sema_addr_high, 0x2468A},
		{"sema_cmd", &r.sema_cmd, 0x81},
	} {
		if got := bus.mem[x.r.address()]; got != x.want {
			t.Errorf("%s 0x%x, want 0x%x", x.name, got, x.want)
		}
	}

	if err := d.EmitSemaphore(addr, false); err != nil {
		t.Fatal(err)
	}
	if got := bus.mem[r.sema_cmd.address()]; got != 0x80 {
		t.Errorf("signal sema_cmd 0x%x, want 0x80", got)
	}
}

func TestIBEncoding(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	ib, err := d.heap.Alloc(mem.PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if err = d.EmitIB(&ib, 32); err != nil {
		t.Fatal(err)
	}

	r := getRegs()
	if got, want := bus.mem[r.lmi_rbc_ib_bar[0].address()], uint32(ib.DeviceAddress()); got != want {
		t.Errorf("ib bar low 0x%x, want 0x%x", got, want)
	}
	if got, want := bus.mem[r.lmi_rbc_ib_bar[1].address()], uint32(ib.DeviceAddress()>>32); got != want {
		t.Errorf("ib bar high 0x%x, want 0x%x", got, want)
	}
	if got := bus.mem[r.rbc_ib_size.address()]; got != 32 {
		t.Errorf("ib size %d, want 32", got)
	}
}

func TestFenceEncoding(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	// Leave the staged words in place instead of consuming them.
	bus.noConsume = true
	start := d.ring.Wptr()
	seq, err := d.EmitFence()
	if err != nil {
		t.Fatal(err)
	}

	r := getRegs()
	lo := uint32(d.wbBuf.DeviceAddress())
	hi := uint32(d.wbBuf.DeviceAddress()>>32) & 0xff
	want := []uint32{
		pkt0(&r.context_id, 0), seq,
		pkt0(&r.gpcom_vcpu_data0, 0), lo,
		pkt0(&r.gpcom_vcpu_data1, 0), hi,
		pkt0(&r.gpcom_vcpu_cmd, 0), 0,
		pkt0(&r.gpcom_vcpu_data0, 0), 0,
		pkt0(&r.gpcom_vcpu_data1, 0), 0,
		pkt0(&r.gpcom_vcpu_cmd, 0), 2,
	}
	words := d.rbBuf.Words()[:d.cf.RingWords]
	mask := d.cf.RingWords - 1
	for i, w := range want {
		if got := words[(start+uint32(i))&mask]; got != w {
			t.Errorf("fence word %d is 0x%08x, want 0x%08x", i, got, w)
		}
	}
	if got, want := d.ring.Wptr(), (start+uint32(len(want)))&mask; got != want {
		t.Errorf("wptr %d after fence, want %d", got, want)
	}
}

func TestStopIdempotent(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}

	if err := d.HwFini(); err != nil {
		t.Fatal(err)
	}
	if err := d.HwFini(); err != nil {
		t.Fatal(err)
	}
	r := getRegs()
	if got := bus.mem[r.rbc_rb_cntl.address()]; got != rb_cntl_idle {
		t.Errorf("rbc_rb_cntl 0x%08x after stop, want 0x%08x", got, uint32(rb_cntl_idle))
	}
	if got := bus.mem[r.vcpu_cntl.address()]; got != 0 {
		t.Errorf("vcpu_cntl 0x%x after stop, want 0", got)
	}
	if got := bus.mem[r.soft_reset.address()]; got&soft_reset_vcpu == 0 {
		t.Error("vcpu not held in reset after stop")
	}
}

func TestEmitBeforeHwInit(t *testing.T) {
	d, _ := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()

	if _, err := d.EmitFence(); err == nil {
		t.Error("EmitFence before hardware init: expected error")
	}
	if err := d.EmitSemaphore(0x1000, true); err == nil {
		t.Error("EmitSemaphore before hardware init: expected error")
	}
}

func TestSuspendResume(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}

	if err := d.Suspend(); err != nil {
		t.Fatal(err)
	}
	// Discrete part: host side firmware image is quiesced.
	b := d.fwBuf.Bytes()
	for i := 0; i < 16; i++ {
		if b[firmware_offset+i] != 0 {
			t.Fatalf("firmware byte %d not quiesced", i)
		}
	}
	r := getRegs()
	if got := bus.mem[r.vcpu_cntl.address()]; got != 0 {
		t.Errorf("vcpu_cntl 0x%x after suspend, want 0", got)
	}

	if err := d.Resume(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()
	for i := 0; i < 16; i++ {
		if b[firmware_offset+i] != byte(i) {
			t.Fatalf("firmware byte %d not restored", i)
		}
	}
	if got := bus.mem[r.vcpu_cntl.address()]; got != 1<<9 {
		t.Errorf("vcpu_cntl 0x%x after resume, want 0x%x", got, 1<<9)
	}
}

func TestSoftReset(t *testing.T) {
	d, bus := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	if err := d.SoftReset(); err != nil {
		t.Fatal(err)
	}
	r := getRegs()
	// Block reset released again by the restart.
	if got := bus.mem[r.srbm_soft_reset.address()]; got&srbm_soft_reset_uvd != 0 {
		t.Errorf("srbm_soft_reset 0x%x still holds the block in reset", got)
	}
	if got := bus.mem[r.vcpu_cntl.address()]; got != 1<<9 {
		t.Errorf("vcpu_cntl 0x%x after soft reset, want 0x%x", got, 1<<9)
	}
}

func TestIdle(t *testing.T) {
	d, bus := newTestDev(t, 1024)

	r := getRegs()
	if !d.IsIdle() {
		t.Error("idle engine reported busy")
	}
	bus.mem[r.srbm_status.address()] = srbm_status_uvd_busy
	if d.IsIdle() {
		t.Error("busy engine reported idle")
	}
	if err := d.WaitForIdle(); !errors.Is(err, ErrTimeout) {
		t.Errorf("WaitForIdle on stuck engine: got %v, want ErrTimeout", err)
	}
	bus.mem[r.srbm_status.address()] = 0
	if err := d.WaitForIdle(); err != nil {
		t.Fatal(err)
	}
}

func TestSwInitUnwind(t *testing.T) {
	d, _ := newTestDev(t, 1024)
	d.cf.Firmware = filepath.Join(t.TempDir(), "missing.bin")

	if err := d.SwInit(); err == nil {
		t.Fatal("SwInit with missing firmware: expected error")
	}
	// Failed init must release the trap id.
	if err := d.irqs.AddID(d.cf.TrapID, d.trap); err != nil {
		t.Errorf("trap id still registered after failed SwInit: %v", err)
	}
}

func TestIBSelfTest(t *testing.T) {
	d, _ := newTestDev(t, 1024)
	if err := d.SwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.SwFini()
	if err := d.HwInit(); err != nil {
		t.Fatal(err)
	}
	defer d.HwFini()

	if err := d.TestIB(testMsgs{d}); err != nil {
		t.Fatal(err)
	}
}

type testMsgs struct{ d *dev }

func (m testMsgs) CreateMsg(handle uint32) (*mem.Buffer, uint32, error) {
	b, err := m.d.heap.Alloc(mem.PageSize)
	return &b, 16, err
}

func (m testMsgs) DestroyMsg(handle uint32) (*mem.Buffer, uint32, error) {
	b, err := m.d.heap.Alloc(mem.PageSize)
	return &b, 8, err
}
