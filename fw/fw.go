// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Decode engine firmware images.
package fw

import (
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/url"
)

// Image container header, all little endian 32 bit words:
//	[0] total image size in bytes, header included
//	[1] header size in bytes
//	[2] microcode version
//	[3] microcode byte offset from start of image
const headerBytes = 16

type Image struct {
	// Microcode as uploaded to the engine's cache region.
	Data []byte

	Version uint32
}

func (m *Image) String() string {
	return fmt.Sprintf("version 0x%x, %d bytes", m.Version, len(m.Data))
}

func parse(b []byte) (m *Image, err error) {
	if len(b) < headerBytes {
		err = fmt.Errorf("fw: short image: %d bytes", len(b))
		return
	}
	size := binary.LittleEndian.Uint32(b[0:])
	hdr := binary.LittleEndian.Uint32(b[4:])
	version := binary.LittleEndian.Uint32(b[8:])
	off := binary.LittleEndian.Uint32(b[12:])
	if uint(size) != uint(len(b)) {
		err = fmt.Errorf("fw: image size %d != header size %d", len(b), size)
		return
	}
	if hdr < headerBytes || off < hdr || off > size {
		err = fmt.Errorf("fw: bad header: header %d bytes, ucode at %d of %d", hdr, off, size)
		return
	}
	m = &Image{Data: b[off:], Version: version}
	return
}

// Open reads and validates a firmware image from a file or url.
func Open(name string) (m *Image, err error) {
	r, err := url.Open(name)
	if err != nil {
		return
	}
	defer r.Close()
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return
	}
	return parse(b)
}

// OpenRetry is Open with bounded retries for transient fetch errors,
// e.g. firmware served from a provisioning host that is still coming up.
func OpenRetry(name string, tries int) (m *Image, err error) {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    1 * time.Second,
		Factor: 2,
		Jitter: false,
	}
	if tries < 1 {
		tries = 1
	}
	for i := 0; i < tries; i++ {
		if m, err = Open(name); err == nil {
			return
		}
		if i+1 < tries {
			time.Sleep(b.Duration())
		}
	}
	return
}
