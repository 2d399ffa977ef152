// Copyright 2024 The CycloneTCP-Go Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package faketime provides a fake clock that implements tcpip.Clock and
// only advances when told to. It drives the time-based transitions of the
// neighbor discovery core deterministically in tests: advance the clock,
// then run the maintenance sweep.
package faketime

import (
	"sync"
	"time"

	"github.com/dpjacques/clockwork"

	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip"
)

// ManualClock implements tcpip.Clock and only advances manually with the
// Advance method.
//
// The core under test is sweep-driven and reads the clock directly, so
// Advance does not have to synchronize with timer callbacks; functions
// scheduled with AfterFunc run asynchronously once their deadline passes.
type ManualClock struct {
	mu    sync.Mutex
	clock clockwork.FakeClock
}

var _ tcpip.Clock = (*ManualClock)(nil)

// NewManualClock creates a new ManualClock instance.
func NewManualClock() *ManualClock {
	return &ManualClock{
		clock: clockwork.NewFakeClock(),
	}
}

// NowNanoseconds implements tcpip.Clock.NowNanoseconds.
func (mc *ManualClock) NowNanoseconds() int64 {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.clock.Now().UnixNano()
}

// NowMonotonic implements tcpip.Clock.NowMonotonic.
func (mc *ManualClock) NowMonotonic() int64 {
	return mc.NowNanoseconds()
}

// AfterFunc implements tcpip.Clock.AfterFunc.
func (mc *ManualClock) AfterFunc(d time.Duration, f func()) tcpip.Timer {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return &manualTimer{
		timer: mc.clock.AfterFunc(d, f),
	}
}

// Advance moves the clock forward by d, firing any timers scheduled to
// expire within that window.
func (mc *ManualClock) Advance(d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.clock.Advance(d)
}

type manualTimer struct {
	timer clockwork.Timer
}

var _ tcpip.Timer = (*manualTimer)(nil)

// Reset implements tcpip.Timer.Reset.
func (t *manualTimer) Reset(d time.Duration) {
	t.timer.Reset(d)
}

// Stop implements tcpip.Timer.Stop.
func (t *manualTimer) Stop() bool {
	return t.timer.Stop()
}
