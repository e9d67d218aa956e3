// Copyright 2026 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Readiness tracks whether the output sink can be written to. The sink
// calls Open and Close from its lifecycle callbacks, the orchestrator waits
// for it before running anything.
type Readiness struct {
	mu    sync.Mutex
	ready bool
}

func (r *Readiness) Open() {
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

func (r *Readiness) Close() {
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
}

func (r *Readiness) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

const (
	ReadyAttempts = 50
	ReadyInterval = 100 * time.Millisecond
)

var ErrSinkNotReady = errors.New("unable to open the output terminal")

// Wait polls the readiness flag up to attempts times, interval apart.
func (r *Readiness) Wait(ctx context.Context, attempts int, interval time.Duration) error {
	for i := 0; ; i++ {
		if r.Ready() {
			return nil
		}
		if i >= attempts {
			return ErrSinkNotReady
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
