// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fw

import (
	"fmt"
	"time"

	"github.com/cavaliercoder/grab"
)

// Fetch downloads firmware images into the working directory.
func Fetch(urls ...string) (err error) {
	if len(urls) == 0 {
		return fmt.Errorf("fw: no urls")
	}

	client := grab.NewClient()
	client.UserAgent = "uvd firmware fetch"

	reqs := make([]*grab.Request, 0)
	for _, u := range urls {
		req, rerr := grab.NewRequest(u)
		if rerr != nil {
			return rerr
		}
		reqs = append(reqs, req)
	}

	respch := client.DoBatch(1, reqs...)
	for resp := range respch {
		if resp == nil {
			continue
		}
		for !resp.IsComplete() {
			time.Sleep(200 * time.Millisecond)
		}
		if resp.Error != nil {
			err = fmt.Errorf("fw: %s: %v", resp.Filename, resp.Error)
		}
	}
	return
}
