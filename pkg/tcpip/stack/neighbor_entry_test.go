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
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip"
	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip/faketime"
)

// resolveOK drives addr through a successful multicast resolution so tests
// can start from a Reachable entry.
func resolveOK(t *testing.T, cache *NeighborCache, addr tcpip.Address, linkAddr tcpip.LinkAddress) {
	t.Helper()

	if _, err := cache.Resolve(addr, nil); err != tcpip.ErrWouldBlock {
		t.Fatalf("cache.Resolve(%s, nil) = %v, want %v", addr, err, tcpip.ErrWouldBlock)
	}
	cache.HandleConfirmation(addr, linkAddr, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  false,
		IsRouter:  false,
	})
	if entry, ok := cache.Get(addr); !ok || entry.State != Reachable {
		t.Fatalf("got cache.Get(%s) = %+v, %t, want state %s", addr, entry, ok, Reachable)
	}
}

// mustHaveState fails the test unless addr is cached in the wanted state.
func mustHaveState(t *testing.T, cache *NeighborCache, addr tcpip.Address, want NeighborState) {
	t.Helper()

	entry, ok := cache.Get(addr)
	if !ok {
		t.Fatalf("cache.Get(%s) returned no entry, want state %s", addr, want)
	}
	if entry.State != want {
		t.Fatalf("got entry.State = %s, want %s", entry.State, want)
	}
}

func TestEntryIncompleteRetransmitTiming(t *testing.T) {
	clock := faketime.NewManualClock()
	config := defaultTestNUDConfig()
	cache, resolver, _ := newTestCache(testCacheSize, config, clock)

	if _, err := cache.Resolve(testAddr1, nil); err != tcpip.ErrWouldBlock {
		t.Fatalf("cache.Resolve(%s, nil) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
	}
	if got := resolver.countProbes(true /* multicast */); got != 1 {
		t.Fatalf("got %d multicast probes, want 1", got)
	}

	// Sweeps before the retransmission timer elapses must not solicit.
	clock.Advance(config.RetransmitTimer - time.Millisecond)
	cache.Tick()
	if got := resolver.countProbes(true /* multicast */); got != 1 {
		t.Errorf("got %d multicast probes before the timer elapsed, want 1", got)
	}
	mustHaveState(t, cache, testAddr1, Incomplete)

	clock.Advance(time.Millisecond)
	cache.Tick()
	if got := resolver.countProbes(true /* multicast */); got != 2 {
		t.Errorf("got %d multicast probes after the timer elapsed, want 2", got)
	}
	mustHaveState(t, cache, testAddr1, Incomplete)
}

func TestEntryIncompleteFailsAfterMaxProbes(t *testing.T) {
	clock := faketime.NewManualClock()
	config := defaultTestNUDConfig()
	cache, resolver, disp := newTestCache(testCacheSize, config, clock)

	// Queue three packets behind the resolution. The second one was
	// forwarded, so its origin is owed an ICMPv6 Address Unreachable error
	// when resolution fails; the others drop silently.
	local := NewPacketBuffer([]byte{1})
	forwarded := NewPacketBuffer([]byte{2})
	forwarded.IngressNIC = testIngressNIC
	local2 := NewPacketBuffer([]byte{3})
	for _, pkt := range []*PacketBuffer{local, forwarded, local2} {
		if _, err := cache.Resolve(testAddr1, pkt); err != tcpip.ErrWouldBlock {
			t.Fatalf("cache.Resolve(%s, _) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
		}
	}

	for i := uint32(0); i < config.MaxMulticastProbes; i++ {
		mustHaveState(t, cache, testAddr1, Incomplete)
		clock.Advance(config.RetransmitTimer)
		cache.Tick()
	}

	if _, ok := cache.Get(testAddr1); ok {
		t.Errorf("entry %s still cached after resolution failed", testAddr1)
	}
	if got, want := resolver.countProbes(true /* multicast */), int(config.MaxMulticastProbes); got != want {
		t.Errorf("got %d multicast probes, want %d", got, want)
	}
	if len(resolver.written) != 0 {
		t.Errorf("got %d written packets, want 0: %+v", len(resolver.written), resolver.written)
	}

	wantFailed := []failedPacket{
		{NIC: testIngressNIC, Payload: []byte{2}},
	}
	if diff := cmp.Diff(wantFailed, resolver.failed); diff != "" {
		t.Errorf("ICMP error packets mismatch (-want +got):\n%s", diff)
	}
	if !local.Released() || !forwarded.Released() || !local2.Released() {
		t.Error("queued packets were not released on resolution failure")
	}

	stats := cache.Stats()
	if got := stats.FailedResolutions.Value(); got != 1 {
		t.Errorf("got FailedResolutions = %d, want 1", got)
	}
	if got := stats.PacketsDropped.Value(); got != 3 {
		t.Errorf("got PacketsDropped = %d, want 3", got)
	}

	wantEvents := []testEntryEventInfo{
		{EventType: entryTestAdded, Addr: testAddr1, State: Incomplete},
		{EventType: entryTestChanged, Addr: testAddr1, State: Incomplete},
		{EventType: entryTestChanged, Addr: testAddr1, State: Incomplete},
		{EventType: entryTestRemoved, Addr: testAddr1, State: Incomplete},
	}
	if diff := cmp.Diff(wantEvents, disp.drainEvents()); diff != "" {
		t.Errorf("nud dispatcher events mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryResolutionSuccessSendsQueued(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, resolver, disp := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	for i := byte(1); i <= 3; i++ {
		if _, err := cache.Resolve(testAddr1, NewPacketBuffer([]byte{i})); err != tcpip.ErrWouldBlock {
			t.Fatalf("cache.Resolve(%s, _) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
		}
	}

	cache.HandleConfirmation(testAddr1, testLinkAddr1, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  false,
		IsRouter:  false,
	})

	// The queue drains in arrival order, each packet exactly once.
	wantWritten := []writtenPacket{
		{LinkAddr: testLinkAddr1, Payload: []byte{1}},
		{LinkAddr: testLinkAddr1, Payload: []byte{2}},
		{LinkAddr: testLinkAddr1, Payload: []byte{3}},
	}
	if diff := cmp.Diff(wantWritten, resolver.written); diff != "" {
		t.Errorf("written packets mismatch (-want +got):\n%s", diff)
	}
	if got := cache.Stats().PacketsSent.Value(); got != 3 {
		t.Errorf("got PacketsSent = %d, want 3", got)
	}

	entry, ok := cache.Get(testAddr1)
	if !ok || entry.State != Reachable || entry.LinkAddr != testLinkAddr1 {
		t.Errorf("got cache.Get(%s) = %+v, %t, want state %s with linkAddr %s",
			testAddr1, entry, ok, Reachable, testLinkAddr1)
	}

	wantEvents := []testEntryEventInfo{
		{EventType: entryTestAdded, Addr: testAddr1, State: Incomplete},
		{EventType: entryTestChanged, Addr: testAddr1, LinkAddr: testLinkAddr1, State: Reachable},
	}
	if diff := cmp.Diff(wantEvents, disp.drainEvents()); diff != "" {
		t.Errorf("nud dispatcher events mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryUnsolicitedConfirmationGoesStale(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	if _, err := cache.Resolve(testAddr1, nil); err != tcpip.ErrWouldBlock {
		t.Fatalf("cache.Resolve(%s, nil) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
	}
	cache.HandleConfirmation(testAddr1, testLinkAddr1, ReachabilityConfirmationFlags{
		Solicited: false,
		Override:  false,
		IsRouter:  false,
	})

	entry, ok := cache.Get(testAddr1)
	if !ok || entry.State != Stale || entry.LinkAddr != testLinkAddr1 {
		t.Errorf("got cache.Get(%s) = %+v, %t, want state %s with linkAddr %s",
			testAddr1, entry, ok, Stale, testLinkAddr1)
	}
}

func TestEntryConfirmationWithoutLinkAddrIgnoredInIncomplete(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	if _, err := cache.Resolve(testAddr1, nil); err != tcpip.ErrWouldBlock {
		t.Fatalf("cache.Resolve(%s, nil) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
	}
	cache.HandleConfirmation(testAddr1, "", ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  true,
		IsRouter:  false,
	})

	mustHaveState(t, cache, testAddr1, Incomplete)
}

func TestEntryConfirmationForUnknownAddressDiscarded(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	cache.HandleConfirmation(testAddr1, testLinkAddr1, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  true,
		IsRouter:  false,
	})

	if entry, ok := cache.Get(testAddr1); ok {
		t.Errorf("got cache.Get(%s) = %+v, true; unsolicited confirmations must not create entries", testAddr1, entry)
	}
}

func TestEntryReachableTimesOutToStale(t *testing.T) {
	clock := faketime.NewManualClock()
	config := defaultTestNUDConfig()
	cache, _, _ := newTestCache(testCacheSize, config, clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)

	// The random factor is pinned to 1, so the entry goes Stale exactly
	// BaseReachableTime after the confirmation, not a sweep earlier.
	clock.Advance(config.BaseReachableTime - time.Millisecond)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Reachable)

	clock.Advance(time.Millisecond)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Stale)

	// Stale does not age further; only the send path moves it on.
	clock.Advance(time.Hour)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Stale)
}

func TestEntryStaleToDelayOnSend(t *testing.T) {
	clock := faketime.NewManualClock()
	config := defaultTestNUDConfig()
	cache, _, _ := newTestCache(testCacheSize, config, clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)
	clock.Advance(config.BaseReachableTime)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Stale)

	// A Stale entry still answers with its cached link address; the send
	// itself arms the delay-then-probe sequence.
	linkAddr, err := cache.Resolve(testAddr1, nil)
	if err != nil {
		t.Fatalf("cache.Resolve(%s, nil): %v", testAddr1, err)
	}
	if linkAddr != testLinkAddr1 {
		t.Errorf("got linkAddr = %s, want %s", linkAddr, testLinkAddr1)
	}
	mustHaveState(t, cache, testAddr1, Delay)
}

func TestEntryProbingFailsAndInvalidatesNextHop(t *testing.T) {
	clock := faketime.NewManualClock()
	config := defaultTestNUDConfig()
	cache, resolver, _ := newTestCache(testCacheSize, config, clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)
	clock.Advance(config.BaseReachableTime)
	cache.Tick()
	if _, err := cache.Resolve(testAddr1, nil); err != nil {
		t.Fatalf("cache.Resolve(%s, nil): %v", testAddr1, err)
	}
	mustHaveState(t, cache, testAddr1, Delay)

	// No probes are sent before DelayFirstProbeTime elapses.
	clock.Advance(config.DelayFirstProbeTime - time.Millisecond)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Delay)
	if got := resolver.countProbes(false /* multicast */); got != 0 {
		t.Fatalf("got %d unicast probes while in Delay, want 0", got)
	}

	// Delay expires into Probe with an immediate unicast solicitation
	// addressed to the cached link address.
	clock.Advance(time.Millisecond)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Probe)
	if got := resolver.countProbes(false /* multicast */); got != 1 {
		t.Fatalf("got %d unicast probes entering Probe, want 1", got)
	}
	if last := resolver.probes[len(resolver.probes)-1]; last.LinkAddr != testLinkAddr1 {
		t.Errorf("got unicast probe to %s, want %s", last.LinkAddr, testLinkAddr1)
	}

	// Each retransmission interval sends one more probe until the budget is
	// exhausted, then the entry is purged and routing is told to find a new
	// next hop.
	for i := uint32(0); i < config.MaxUnicastProbes; i++ {
		clock.Advance(config.RetransmitTimer)
		cache.Tick()
	}
	if _, ok := cache.Get(testAddr1); ok {
		t.Errorf("entry %s still cached after probing failed", testAddr1)
	}
	if got, want := resolver.countProbes(false /* multicast */), int(config.MaxUnicastProbes); got != want {
		t.Errorf("got %d unicast probes, want %d", got, want)
	}

	wantInvalidated := []tcpip.Address{testAddr1}
	if diff := cmp.Diff(wantInvalidated, resolver.invalidated); diff != "" {
		t.Errorf("invalidated next hops mismatch (-want +got):\n%s", diff)
	}
	if got := cache.Stats().FailedResolutions.Value(); got != 1 {
		t.Errorf("got FailedResolutions = %d, want 1", got)
	}
}

func TestEntryProbeConfirmationRecovers(t *testing.T) {
	clock := faketime.NewManualClock()
	config := defaultTestNUDConfig()
	cache, _, _ := newTestCache(testCacheSize, config, clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)
	clock.Advance(config.BaseReachableTime)
	cache.Tick()
	if _, err := cache.Resolve(testAddr1, nil); err != nil {
		t.Fatalf("cache.Resolve(%s, nil): %v", testAddr1, err)
	}
	clock.Advance(config.DelayFirstProbeTime)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Probe)

	cache.HandleConfirmation(testAddr1, testLinkAddr1, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  false,
		IsRouter:  false,
	})
	mustHaveState(t, cache, testAddr1, Reachable)
}

func TestEntryConfirmationOverrideUpdatesLinkAddr(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)
	cache.HandleConfirmation(testAddr1, testLinkAddr2, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  true,
		IsRouter:  false,
	})

	entry, _ := cache.Get(testAddr1)
	if entry.State != Reachable || entry.LinkAddr != testLinkAddr2 {
		t.Errorf("got entry = %+v, want state %s with linkAddr %s", entry, Reachable, testLinkAddr2)
	}
}

func TestEntryConfirmationNonOverrideDifferentAddr(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)

	// A non-override confirmation carrying a different link address demotes
	// a Reachable entry to Stale but keeps the cached address.
	cache.HandleConfirmation(testAddr1, testLinkAddr2, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  false,
		IsRouter:  false,
	})
	entry, _ := cache.Get(testAddr1)
	if entry.State != Stale || entry.LinkAddr != testLinkAddr1 {
		t.Errorf("got entry = %+v, want state %s with linkAddr %s", entry, Stale, testLinkAddr1)
	}

	// In Stale the same confirmation is ignored entirely.
	cache.HandleConfirmation(testAddr1, testLinkAddr2, ReachabilityConfirmationFlags{
		Solicited: false,
		Override:  false,
		IsRouter:  false,
	})
	entry, _ = cache.Get(testAddr1)
	if entry.State != Stale || entry.LinkAddr != testLinkAddr1 {
		t.Errorf("got entry = %+v after ignored confirmation, want state %s with linkAddr %s", entry, Stale, testLinkAddr1)
	}
}

func TestEntryUnsolicitedOverrideGoesStale(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)
	cache.HandleConfirmation(testAddr1, testLinkAddr2, ReachabilityConfirmationFlags{
		Solicited: false,
		Override:  true,
		IsRouter:  false,
	})

	entry, _ := cache.Get(testAddr1)
	if entry.State != Stale || entry.LinkAddr != testLinkAddr2 {
		t.Errorf("got entry = %+v, want state %s with linkAddr %s", entry, Stale, testLinkAddr2)
	}
}

func TestEntryRouterDemotionInvalidatesNextHop(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, resolver, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	if _, err := cache.Resolve(testAddr1, nil); err != tcpip.ErrWouldBlock {
		t.Fatalf("cache.Resolve(%s, nil) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
	}
	cache.HandleConfirmation(testAddr1, testLinkAddr1, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  false,
		IsRouter:  true,
	})
	if len(resolver.invalidated) != 0 {
		t.Fatalf("got %d invalidations after a router confirmation, want 0", len(resolver.invalidated))
	}

	// The neighbor stops advertising itself as a router; destinations using
	// it as a next hop must be rerouted.
	cache.HandleConfirmation(testAddr1, testLinkAddr1, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  false,
		IsRouter:  false,
	})
	wantInvalidated := []tcpip.Address{testAddr1}
	if diff := cmp.Diff(wantInvalidated, resolver.invalidated); diff != "" {
		t.Errorf("invalidated next hops mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryUpperLevelConfirmation(t *testing.T) {
	clock := faketime.NewManualClock()
	config := defaultTestNUDConfig()
	cache, _, _ := newTestCache(testCacheSize, config, clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)
	clock.Advance(config.BaseReachableTime)
	cache.Tick()
	mustHaveState(t, cache, testAddr1, Stale)

	// Forward progress reported by a transport protocol restores
	// reachability without any solicitation traffic.
	cache.HandleUpperLevelConfirmation(testAddr1)
	mustHaveState(t, cache, testAddr1, Reachable)

	// Confirmation for an Incomplete or unknown entry does nothing.
	cache.HandleUpperLevelConfirmation(testAddr2)
	if _, ok := cache.Get(testAddr2); ok {
		t.Errorf("upper-level confirmation created an entry for %s", testAddr2)
	}
}

func TestEntryHandleProbeCreatesStale(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, disp := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	cache.HandleProbe(testAddr1, testLinkAddr1)

	entry, ok := cache.Get(testAddr1)
	if !ok || entry.State != Stale || entry.LinkAddr != testLinkAddr1 {
		t.Errorf("got cache.Get(%s) = %+v, %t, want state %s with linkAddr %s",
			testAddr1, entry, ok, Stale, testLinkAddr1)
	}

	wantEvents := []testEntryEventInfo{
		{EventType: entryTestAdded, Addr: testAddr1, LinkAddr: testLinkAddr1, State: Stale},
	}
	if diff := cmp.Diff(wantEvents, disp.drainEvents()); diff != "" {
		t.Errorf("nud dispatcher events mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryHandleProbeDrainsIncompleteQueue(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, resolver, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	if _, err := cache.Resolve(testAddr1, NewPacketBuffer([]byte{5})); err != tcpip.ErrWouldBlock {
		t.Fatalf("cache.Resolve(%s, _) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
	}

	// A probe from the neighbor itself carries the link address resolution
	// was waiting for.
	cache.HandleProbe(testAddr1, testLinkAddr1)

	wantWritten := []writtenPacket{
		{LinkAddr: testLinkAddr1, Payload: []byte{5}},
	}
	if diff := cmp.Diff(wantWritten, resolver.written); diff != "" {
		t.Errorf("written packets mismatch (-want +got):\n%s", diff)
	}
	mustHaveState(t, cache, testAddr1, Stale)
}

func TestEntryHandleProbeDifferentAddrDemotesReachable(t *testing.T) {
	clock := faketime.NewManualClock()
	cache, _, _ := newTestCache(testCacheSize, defaultTestNUDConfig(), clock)

	resolveOK(t, cache, testAddr1, testLinkAddr1)
	cache.HandleProbe(testAddr1, testLinkAddr2)

	entry, _ := cache.Get(testAddr1)
	if entry.State != Stale || entry.LinkAddr != testLinkAddr2 {
		t.Errorf("got entry = %+v, want state %s with linkAddr %s", entry, Stale, testLinkAddr2)
	}
}

func TestEntryQueueOverflowDropsOldest(t *testing.T) {
	clock := faketime.NewManualClock()
	resolver := &testLinkResolver{}
	cache := NewNeighborCache(NeighborCacheOptions{
		Size:              testCacheSize,
		MaxPendingPackets: 2,
		NUDConfigs:        defaultTestNUDConfig(),
		Clock:             clock,
		Rand:              rand.New(rand.NewSource(1)),
		LinkRes:           resolver,
		LinkWriter:        resolver,
	})

	pkts := []*PacketBuffer{
		NewPacketBuffer([]byte{1}),
		NewPacketBuffer([]byte{2}),
		NewPacketBuffer([]byte{3}),
	}
	for _, pkt := range pkts {
		if _, err := cache.Resolve(testAddr1, pkt); err != tcpip.ErrWouldBlock {
			t.Fatalf("cache.Resolve(%s, _) = %v, want %v", testAddr1, err, tcpip.ErrWouldBlock)
		}
	}

	// The third arrival displaced the first packet.
	if !pkts[0].Released() {
		t.Error("oldest queued packet was not released on overflow")
	}
	if got := cache.Stats().QueueOverflows.Value(); got != 1 {
		t.Errorf("got QueueOverflows = %d, want 1", got)
	}

	cache.HandleConfirmation(testAddr1, testLinkAddr1, ReachabilityConfirmationFlags{
		Solicited: true,
		Override:  false,
		IsRouter:  false,
	})
	wantWritten := []writtenPacket{
		{LinkAddr: testLinkAddr1, Payload: []byte{2}},
		{LinkAddr: testLinkAddr1, Payload: []byte{3}},
	}
	if diff := cmp.Diff(wantWritten, resolver.written); diff != "" {
		t.Errorf("written packets mismatch (-want +got):\n%s", diff)
	}
}
