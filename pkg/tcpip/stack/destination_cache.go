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

package stack

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip"
)

// DefaultDestinationCacheSize is the number of entries a DestinationCache
// holds when no size is configured.
const DefaultDestinationCacheSize = 32

// DestinationEntry caches routing facts learned for one destination
// address.
type DestinationEntry struct {
	// Addr is the destination address and the cache key. The unspecified
	// address marks a free slot.
	Addr tcpip.Address

	// NextHop is the neighbor packets for Addr are sent through. It equals
	// Addr for on-link destinations.
	NextHop tcpip.Address

	// PathMTU is the path MTU discovered toward Addr, zero if unknown.
	PathMTU uint32

	// UpdatedAt is the monotonic time, in nanoseconds, the entry was created
	// or last used.
	UpdatedAt int64
}

// DestinationCacheOptions configures a DestinationCache.
type DestinationCacheOptions struct {
	// Size is the fixed number of entry slots.
	Size int

	// Clock provides time; defaults to tcpip.StdClock.
	Clock tcpip.Clock

	// Logger receives debug instrumentation; defaults to a no-op logger.
	Logger *zap.Logger
}

// DestinationCache maps destination addresses to next-hop facts. It is a
// fixed-capacity table recycled purely by oldest-timestamp eviction; unlike
// the neighbor cache there is no state machine and no static exemption.
type DestinationCache struct {
	clock  tcpip.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries []DestinationEntry
}

// NewDestinationCache creates a DestinationCache.
func NewDestinationCache(opts DestinationCacheOptions) *DestinationCache {
	if opts.Size <= 0 {
		opts.Size = DefaultDestinationCacheSize
	}
	if opts.Clock == nil {
		opts.Clock = &tcpip.StdClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &DestinationCache{
		clock:   opts.Clock,
		logger:  opts.Logger,
		entries: make([]DestinationEntry, opts.Size),
	}
}

// findLocked returns the index of the entry for addr, or -1.
//
// d.mu must be locked.
func (d *DestinationCache) findLocked(addr tcpip.Address) int {
	for i := range d.entries {
		if !d.entries[i].Addr.Unspecified() && d.entries[i].Addr == addr {
			return i
		}
	}
	return -1
}

// Get returns the cached facts for addr and refreshes its use time.
func (d *DestinationCache) Get(addr tcpip.Address) (DestinationEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.findLocked(addr)
	if i < 0 {
		return DestinationEntry{}, false
	}
	d.entries[i].UpdatedAt = d.clock.NowMonotonic()
	return d.entries[i], true
}

// Put inserts or updates the entry for addr. When the table is full the
// entry with the oldest use time is evicted, whatever it holds.
func (d *DestinationCache) Put(addr, nextHop tcpip.Address, pathMTU uint32) {
	if addr.Unspecified() {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.NowMonotonic()

	if i := d.findLocked(addr); i >= 0 {
		d.entries[i].NextHop = nextHop
		d.entries[i].PathMTU = pathMTU
		d.entries[i].UpdatedAt = now
		return
	}

	victim := 0
	for i := range d.entries {
		if d.entries[i].Addr.Unspecified() {
			victim = i
			break
		}
		if d.entries[i].UpdatedAt < d.entries[victim].UpdatedAt {
			victim = i
		}
	}
	if !d.entries[victim].Addr.Unspecified() {
		d.logger.Debug("evicting destination",
			zap.Stringer("addr", d.entries[victim].Addr))
	}
	d.entries[victim] = DestinationEntry{
		Addr:      addr,
		NextHop:   nextHop,
		PathMTU:   pathMTU,
		UpdatedAt: now,
	}
}

// SetPathMTU updates the path MTU for addr if it is cached. Returns true on
// update.
func (d *DestinationCache) SetPathMTU(addr tcpip.Address, pathMTU uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.findLocked(addr)
	if i < 0 {
		return false
	}
	d.entries[i].PathMTU = pathMTU
	d.entries[i].UpdatedAt = d.clock.NowMonotonic()
	return true
}

// Remove drops the entry for addr. Returns true if one was cached.
func (d *DestinationCache) Remove(addr tcpip.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.findLocked(addr)
	if i < 0 {
		return false
	}
	d.entries[i] = DestinationEntry{}
	return true
}

// Clear drops every entry unconditionally.
func (d *DestinationCache) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.entries {
		d.entries[i] = DestinationEntry{}
	}
}

// Entries returns a snapshot of every in-use entry.
func (d *DestinationCache) Entries() []DestinationEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]DestinationEntry, 0, len(d.entries))
	for i := range d.entries {
		if !d.entries[i].Addr.Unspecified() {
			entries = append(entries, d.entries[i])
		}
	}
	return entries
}
