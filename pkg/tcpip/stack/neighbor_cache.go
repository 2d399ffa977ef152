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

// Package stack implements the address-resolution and neighbor-reachability
// core of an IPv6 network stack: a fixed-capacity neighbor cache running
// Neighbor Unreachability Detection (RFC 4861), per-entry queues of packets
// awaiting resolution, and a fixed-capacity destination cache.
//
// The core is sweep-driven: no timers are armed internally. The surrounding
// stack calls Tick periodically; every time-based transition happens there.
// All operations complete in time bounded by the fixed table sizes and never
// block, which suits cooperative embedded scheduling.
package stack

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip"
)

const (
	// DefaultNeighborCacheSize is the number of entries a NeighborCache holds
	// when no size is configured.
	DefaultNeighborCacheSize = 32

	// DefaultMaxPendingPackets is the per-entry bound on packets queued
	// awaiting address resolution when no bound is configured.
	DefaultMaxPendingPackets = 4
)

// NeighborCacheStats holds the counters exported by a NeighborCache.
type NeighborCacheStats struct {
	// PacketsQueued is the number of packets accepted into pending queues.
	PacketsQueued *tcpip.StatCounter

	// PacketsSent is the number of queued packets handed to the link writer
	// after successful resolution.
	PacketsSent *tcpip.StatCounter

	// PacketsDropped is the number of queued packets released without being
	// transmitted, including those handed to the error handler.
	PacketsDropped *tcpip.StatCounter

	// QueueOverflows is the number of packets shed because a pending queue
	// was full.
	QueueOverflows *tcpip.StatCounter

	// ProbesSent is the number of neighbor solicitations requested, multicast
	// and unicast combined.
	ProbesSent *tcpip.StatCounter

	// FailedResolutions is the number of entries that reached their
	// solicitation limit, in either Incomplete or Probe.
	FailedResolutions *tcpip.StatCounter

	// Evictions is the number of in-use entries recycled to make room for a
	// new neighbor.
	Evictions *tcpip.StatCounter
}

func makeNeighborCacheStats() NeighborCacheStats {
	return NeighborCacheStats{
		PacketsQueued:     new(tcpip.StatCounter),
		PacketsSent:       new(tcpip.StatCounter),
		PacketsDropped:    new(tcpip.StatCounter),
		QueueOverflows:    new(tcpip.StatCounter),
		ProbesSent:        new(tcpip.StatCounter),
		FailedResolutions: new(tcpip.StatCounter),
		Evictions:         new(tcpip.StatCounter),
	}
}

// NeighborCacheOptions configures a NeighborCache. LinkRes and LinkWriter
// are required; everything else has a usable default.
type NeighborCacheOptions struct {
	// Size is the fixed number of entry slots.
	Size int

	// MaxPendingPackets bounds each entry's queue of packets awaiting
	// resolution.
	MaxPendingPackets int

	// NUDConfigs seeds the NUD configuration; invalid values are replaced
	// with defaults.
	NUDConfigs NUDConfigurations

	// Clock provides time; defaults to tcpip.StdClock.
	Clock tcpip.Clock

	// Rand is the source for the randomized reachable time; defaults to a
	// time-seeded source.
	Rand *rand.Rand

	// LinkRes sends neighbor solicitations. Required.
	LinkRes LinkAddressResolver

	// LinkWriter transmits queued packets once resolution succeeds. Required.
	LinkWriter LinkWriter

	// ErrorHandler, if set, receives forwarded packets whose resolution
	// failed so an ICMPv6 error can be returned to their origin.
	ErrorHandler NetworkErrorHandler

	// NDPEndpoint, if set, is told when a neighbor stops being a usable next
	// hop.
	NDPEndpoint NDPEndpoint

	// NUDDisp, if set, observes entry add/change/remove events.
	NUDDisp NUDDispatcher

	// Logger receives debug instrumentation; defaults to a no-op logger.
	Logger *zap.Logger
}

// NeighborCache maps on-link IPv6 addresses to link-layer addresses and
// tracks their reachability. Entries live in a fixed arena of slots scanned
// linearly; a slot whose state is Unknown is free. At most one in-use entry
// exists per address.
//
// A single mutex serializes every operation, including the sweep. Nothing
// here blocks, and no goroutines or timers are created.
type NeighborCache struct {
	clock        tcpip.Clock
	state        *NUDState
	linkRes      LinkAddressResolver
	linkWriter   LinkWriter
	errorHandler NetworkErrorHandler
	ndpEP        NDPEndpoint
	nudDisp      NUDDispatcher
	logger       *zap.Logger
	stats        NeighborCacheStats

	maxPendingPackets int

	mu      sync.Mutex
	entries []neighborEntry
}

// NewNeighborCache creates a NeighborCache. It panics if a required
// collaborator is missing.
func NewNeighborCache(opts NeighborCacheOptions) *NeighborCache {
	if opts.LinkRes == nil {
		panic("stack: NeighborCacheOptions.LinkRes is required")
	}
	if opts.LinkWriter == nil {
		panic("stack: NeighborCacheOptions.LinkWriter is required")
	}
	if opts.Size <= 0 {
		opts.Size = DefaultNeighborCacheSize
	}
	if opts.MaxPendingPackets <= 0 {
		opts.MaxPendingPackets = DefaultMaxPendingPackets
	}
	if opts.Clock == nil {
		opts.Clock = &tcpip.StdClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &NeighborCache{
		clock:             opts.Clock,
		state:             NewNUDState(opts.NUDConfigs, opts.Clock, opts.Rand),
		linkRes:           opts.LinkRes,
		linkWriter:        opts.LinkWriter,
		errorHandler:      opts.ErrorHandler,
		ndpEP:             opts.NDPEndpoint,
		nudDisp:           opts.NUDDisp,
		logger:            opts.Logger,
		stats:             makeNeighborCacheStats(),
		maxPendingPackets: opts.MaxPendingPackets,
		entries:           make([]neighborEntry, opts.Size),
	}
}

// Stats returns the cache's counters.
func (n *NeighborCache) Stats() *NeighborCacheStats {
	return &n.stats
}

// Config returns the NUD configuration.
func (n *NeighborCache) Config() NUDConfigurations {
	return n.state.Config()
}

// SetConfig changes the NUD configuration. Invalid values are replaced with
// defaults.
func (n *NeighborCache) SetConfig(config NUDConfigurations) {
	n.state.SetConfig(config)
}

// findEntryLocked returns the in-use entry for addr, or nil. At most one
// entry per address can be in use.
//
// n.mu must be locked.
func (n *NeighborCache) findEntryLocked(addr tcpip.Address) *neighborEntry {
	for i := range n.entries {
		e := &n.entries[i]
		if e.neigh.State != Unknown && e.neigh.Addr == addr {
			return e
		}
	}
	return nil
}

// getOrCreateEntryLocked returns the entry for addr, claiming a slot for it
// if none exists. With no free slot, a victim is recycled with this
// precedence: Static entries are never selected; a Stale entry is preferred
// over any non-Stale one; ties go to the oldest transition time. The
// victim's queue is flushed before reuse.
//
// Returns nil only if every slot is Static.
//
// n.mu must be locked.
func (n *NeighborCache) getOrCreateEntryLocked(addr tcpip.Address) *neighborEntry {
	var victim *neighborEntry
	for i := range n.entries {
		e := &n.entries[i]
		switch e.neigh.State {
		case Unknown:
			// A free slot beats any eviction, and entries are keyed uniquely,
			// so the scan for addr can still stop only at the end.
			if victim == nil || victim.neigh.State != Unknown {
				victim = e
			}
		case Static:
			// Never evicted, but still a match candidate.
			if e.neigh.Addr == addr {
				return e
			}
		default:
			if e.neigh.Addr == addr {
				return e
			}
			if victim == nil {
				victim = e
				continue
			}
			if victim.neigh.State == Unknown {
				continue
			}
			victimStale := victim.neigh.State == Stale
			entryStale := e.neigh.State == Stale
			if entryStale != victimStale {
				if entryStale {
					victim = e
				}
				continue
			}
			if e.neigh.UpdatedAt < victim.neigh.UpdatedAt {
				victim = e
			}
		}
	}

	if victim == nil {
		return nil
	}
	if victim.neigh.State != Unknown {
		n.logger.Debug("evicting neighbor",
			zapAddr(victim.neigh.Addr),
			zapState("state", victim.neigh.State))
		n.stats.Evictions.Increment()
		n.flushQueueLocked(victim)
		n.removeEntryLocked(victim)
	}
	victim.neigh.Addr = addr
	return victim
}

// removeEntryLocked returns an entry's slot to the free pool. The pending
// queue must already have been flushed or drained.
//
// n.mu must be locked.
func (n *NeighborCache) removeEntryLocked(e *neighborEntry) {
	if !e.pending.isEmpty() {
		panic(fmt.Sprintf("removing neighbor %s with a non-empty pending queue", e.neigh.Addr))
	}
	n.dispatchRemoveEventLocked(e)
	*e = neighborEntry{}
}

// Resolve looks up the link-layer address to use for addr before
// transmission.
//
// If the address is resolved (or statically mapped) the link address is
// returned and pkt, which may be nil, remains owned by the caller for
// immediate transmission; sending to a Stale neighbor promotes the entry to
// Delay. Otherwise resolution is started or joined, pkt is consumed (queued
// behind the resolution, shedding the oldest queued packet on overflow) and
// ErrWouldBlock is returned. ErrNoBufferSpace is returned, and pkt released,
// when every slot is Static.
func (n *NeighborCache) Resolve(addr tcpip.Address, pkt *PacketBuffer) (tcpip.LinkAddress, *tcpip.Error) {
	if len(addr) == 0 {
		return "", tcpip.ErrBadAddress
	}
	if linkAddr, ok := n.linkRes.ResolveStaticAddress(addr); ok {
		return linkAddr, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	e := n.getOrCreateEntryLocked(addr)
	if e == nil {
		if pkt != nil {
			pkt.Release()
			n.stats.PacketsDropped.Increment()
		}
		return "", tcpip.ErrNoBufferSpace
	}

	switch e.neigh.State {
	case Reachable, Delay, Probe, Static:
		return e.neigh.LinkAddr, nil

	case Stale:
		n.handlePacketQueuedLocked(e) // Stale -> Delay
		return e.neigh.LinkAddr, nil

	case Unknown:
		n.handlePacketQueuedLocked(e) // begins multicast resolution
		n.enqueueLocked(e, pkt)
		return "", tcpip.ErrWouldBlock

	case Incomplete:
		n.enqueueLocked(e, pkt)
		return "", tcpip.ErrWouldBlock

	default:
		panic(fmt.Sprintf("invalid cache entry state: %s", e.neigh.State))
	}
}

// enqueueLocked appends pkt to e's pending queue, taking ownership. The
// entry must be Incomplete.
//
// n.mu must be locked.
func (n *NeighborCache) enqueueLocked(e *neighborEntry, pkt *PacketBuffer) {
	if pkt == nil {
		return
	}
	if dropped := e.pending.enqueue(pkt, n.maxPendingPackets); dropped != nil {
		dropped.Release()
		n.stats.QueueOverflows.Increment()
		n.stats.PacketsDropped.Increment()
	}
	n.stats.PacketsQueued.Increment()
}

// sendSolicitationLocked requests a neighbor solicitation for e, multicast
// to the solicited-node group or unicast to the cached link address.
//
// n.mu must be locked.
func (n *NeighborCache) sendSolicitationLocked(e *neighborEntry, multicast bool) {
	remoteLinkAddr := e.neigh.LinkAddr
	if multicast {
		remoteLinkAddr = ""
	}
	n.stats.ProbesSent.Increment()
	if err := n.linkRes.LinkAddressRequest(e.neigh.Addr, remoteLinkAddr); err != nil {
		// A failed send does not abort the attempt; the sweep retries until
		// the solicitation budget runs out.
		n.logger.Warn("neighbor solicitation not sent",
			zapAddr(e.neigh.Addr),
			zap.String("err", err.String()))
	}
}

// Tick runs one pass of the periodic maintenance sweep: it visits every slot
// exactly once, in table order, and applies the state's timeout action. The
// surrounding stack is expected to call Tick from its periodic task.
func (n *NeighborCache) Tick() {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.NowMonotonic()
	config := n.state.Config()

	for i := range n.entries {
		e := &n.entries[i]
		switch e.neigh.State {
		case Unknown, Stale, Static:
			// Unknown is a free slot; Stale ages lazily, the send path
			// promotes it; Static never ages.

		case Incomplete:
			if !e.expired(now) {
				continue
			}
			e.probes++
			if e.probes >= config.MaxMulticastProbes {
				// "If no Neighbor Advertisement is received after
				// MAX_MULTICAST_SOLICIT solicitations, address resolution has
				// failed. The sender MUST return ICMP destination unreachable
				// indications with code 3 (Address Unreachable) for each
				// packet queued awaiting address resolution."
				// - RFC 4861 section 7.2.2
				n.stats.FailedResolutions.Increment()
				n.logger.Debug("address resolution failed", zapAddr(e.neigh.Addr))
				n.flushQueueLocked(e)
				n.removeEntryLocked(e)
				continue
			}
			n.sendSolicitationLocked(e, true /* multicast */)
			n.dispatchChangeEventLocked(e, Incomplete)
			n.setStateLocked(e, Incomplete)

		case Reachable:
			if !e.expired(now) {
				continue
			}
			n.dispatchChangeEventLocked(e, Stale)
			n.setStateLocked(e, Stale)

		case Delay:
			if !e.expired(now) {
				continue
			}
			e.probes = 0
			n.dispatchChangeEventLocked(e, Probe)
			n.setStateLocked(e, Probe)
			n.sendSolicitationLocked(e, false /* multicast */)

		case Probe:
			if !e.expired(now) {
				continue
			}
			e.probes++
			if e.probes >= config.MaxUnicastProbes {
				addr := e.neigh.Addr
				n.stats.FailedResolutions.Increment()
				n.logger.Debug("neighbor unreachable", zapAddr(addr))
				n.flushQueueLocked(e)
				n.removeEntryLocked(e)
				if n.ndpEP != nil {
					// Routing must pick a new next hop for destinations that
					// were using this neighbor.
					n.ndpEP.InvalidateNextHop(addr)
				}
				continue
			}
			n.sendSolicitationLocked(e, false /* multicast */)
			n.dispatchChangeEventLocked(e, Probe)
			n.setStateLocked(e, Probe)

		default:
			panic(fmt.Sprintf("invalid cache entry state: %s", e.neigh.State))
		}
	}
}

// HandleProbe processes an incoming neighbor probe whose source link-layer
// address is remoteLinkAddr, creating a Stale entry for previously unknown
// neighbors. Validation of the probe is the caller's responsibility.
func (n *NeighborCache) HandleProbe(addr tcpip.Address, remoteLinkAddr tcpip.LinkAddress) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e := n.getOrCreateEntryLocked(addr)
	if e == nil {
		return
	}
	n.handleProbeLocked(e, remoteLinkAddr)
}

// HandleConfirmation processes an incoming, already-validated neighbor
// confirmation. Confirmations for addresses the cache never initiated
// communication with are silently discarded, as required by RFC 4861
// section 7.2.5.
func (n *NeighborCache) HandleConfirmation(addr tcpip.Address, linkAddr tcpip.LinkAddress, flags ReachabilityConfirmationFlags) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if e := n.findEntryLocked(addr); e != nil {
		n.handleConfirmationLocked(e, linkAddr, flags)
	}
}

// HandleUpperLevelConfirmation processes a reachability confirmation from an
// upper-level protocol (e.g. a TCP acknowledgement for recently sent data).
func (n *NeighborCache) HandleUpperLevelConfirmation(addr tcpip.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if e := n.findEntryLocked(addr); e != nil {
		n.handleUpperLevelConfirmationLocked(e)
	}
}

// AddStaticEntry adds a statically configured mapping from addr to linkAddr.
// An existing dynamic entry for addr is superseded; if it was resolving, its
// queue is drained using the configured link address.
func (n *NeighborCache) AddStaticEntry(addr tcpip.Address, linkAddr tcpip.LinkAddress) {
	n.mu.Lock()
	defer n.mu.Unlock()

	e := n.findEntryLocked(addr)
	if e == nil {
		e = n.getOrCreateEntryLocked(addr)
		if e == nil {
			n.logger.Warn("static neighbor not added, every slot is static", zapAddr(addr))
			return
		}
		e.neigh.LinkAddr = linkAddr
		n.dispatchAddEventLocked(e, Static)
		n.setStateLocked(e, Static)
		return
	}

	if e.neigh.State == Static {
		if e.neigh.LinkAddr != linkAddr {
			e.neigh.LinkAddr = linkAddr
			n.dispatchChangeEventLocked(e, Static)
		}
		return
	}

	e.neigh.LinkAddr = linkAddr
	n.sendQueuedLocked(e)
	n.dispatchChangeEventLocked(e, Static)
	n.setStateLocked(e, Static)
}

// RemoveEntry removes the entry for addr, including Static entries. Returns
// true if an entry was found and removed.
func (n *NeighborCache) RemoveEntry(addr tcpip.Address) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	e := n.findEntryLocked(addr)
	if e == nil {
		return false
	}
	n.flushQueueLocked(e)
	n.removeEntryLocked(e)
	return true
}

// Clear forces every non-Static entry back to the free state, flushing any
// pending queues. Static entries are left untouched.
func (n *NeighborCache) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range n.entries {
		e := &n.entries[i]
		if e.neigh.State == Unknown || e.neigh.State == Static {
			continue
		}
		n.flushQueueLocked(e)
		n.removeEntryLocked(e)
	}
}

// Get returns the current view of the entry for addr.
func (n *NeighborCache) Get(addr tcpip.Address) (NeighborEntry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if e := n.findEntryLocked(addr); e != nil {
		return e.neigh, true
	}
	return NeighborEntry{}, false
}

// Entries returns a snapshot of every in-use entry.
func (n *NeighborCache) Entries() []NeighborEntry {
	n.mu.Lock()
	defer n.mu.Unlock()

	entries := make([]NeighborEntry, 0, len(n.entries))
	for i := range n.entries {
		if e := &n.entries[i]; e.neigh.State != Unknown {
			entries = append(entries, e.neigh)
		}
	}
	return entries
}

// dispatchAddEventLocked signals to the dispatcher that an entry is entering
// the cache in state next.
//
// n.mu must be locked.
func (n *NeighborCache) dispatchAddEventLocked(e *neighborEntry, next NeighborState) {
	if d := n.nudDisp; d != nil {
		view := e.neigh
		view.State = next
		view.UpdatedAt = n.clock.NowMonotonic()
		d.OnNeighborAdded(view)
	}
}

// dispatchChangeEventLocked signals to the dispatcher that an entry is
// changing state or link-layer address.
//
// n.mu must be locked.
func (n *NeighborCache) dispatchChangeEventLocked(e *neighborEntry, next NeighborState) {
	if d := n.nudDisp; d != nil {
		view := e.neigh
		view.State = next
		view.UpdatedAt = n.clock.NowMonotonic()
		d.OnNeighborChanged(view)
	}
}

// dispatchRemoveEventLocked signals to the dispatcher that an entry is
// leaving the cache.
//
// n.mu must be locked.
func (n *NeighborCache) dispatchRemoveEventLocked(e *neighborEntry) {
	if d := n.nudDisp; d != nil {
		d.OnNeighborRemoved(e.neigh)
	}
}

func zapAddr(addr tcpip.Address) zap.Field {
	return zap.Stringer("addr", addr)
}

func zapState(key string, s NeighborState) zap.Field {
	return zap.Stringer(key, s)
}
