// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Intervals controls the host loop timing
type Intervals struct {
	Update time.Duration // controller Update period, must be shorter than the deadman
	Status time.Duration // MOTOR_STATUS period, 0 disables periodic status
}

// Run owns the host until ctx is cancelled or r fails. A reader goroutine
// forwards chunks from r; this goroutine dispatches them and runs the
// update ticker. Both motors are emergency-stopped on return. Close r to
// release the reader if it is blocked.
func (h *Host) Run(ctx context.Context, r io.Reader, iv Intervals) error {
	if iv.Update <= 0 {
		return fmt.Errorf("update interval must be positive, got %s", iv.Update)
	}

	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	update := time.NewTicker(iv.Update)
	defer update.Stop()

	var status <-chan time.Time
	if iv.Status > 0 {
		t := time.NewTicker(iv.Status)
		defer t.Stop()
		status = t.C
	}

	if err := h.PublishConfig(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			h.logf("Shutting down, stopping motors")
			return h.Stop()

		case chunk := <-chunks:
			if err := h.Feed(chunk); err != nil {
				return errors.Join(err, h.Stop())
			}

		case err := <-readErr:
			// drain what arrived before the error
			var feedErr error
			for len(chunks) > 0 && feedErr == nil {
				feedErr = h.Feed(<-chunks)
			}
			h.logf("Command source closed: %v", err)
			stopErr := h.Stop()
			if errors.Is(err, io.EOF) {
				return errors.Join(feedErr, stopErr)
			}
			return errors.Join(fmt.Errorf("read failed: %w", err), feedErr, stopErr)

		case <-update.C:
			if err := h.Tick(); err != nil {
				return errors.Join(err, h.Stop())
			}

		case <-status:
			if err := h.PublishStatus(); err != nil {
				return errors.Join(err, h.Stop())
			}
		}
	}
}
