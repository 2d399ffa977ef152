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
	"fmt"
	"time"

	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip"
)

// NeighborState defines the state of a neighbor cache entry within the
// Neighbor Unreachability Detection state machine, as per RFC 4861 section
// 7.3.2.
type NeighborState uint8

const (
	// Unknown means the slot is unused. It is both the initial and the
	// terminal state: resolution failure, probe exhaustion, eviction and
	// flushes all return an entry here.
	Unknown NeighborState = iota

	// Incomplete means that there is an outstanding request to resolve the
	// address; packets for the neighbor are queued on the entry.
	Incomplete

	// Reachable means the path to the neighbor is functioning properly for
	// both receive and transmit paths.
	Reachable

	// Stale means reachability to the neighbor is unknown, but packets are
	// still able to be transmitted to the possibly stale link address.
	Stale

	// Delay means reachability to the neighbor is unknown and pending
	// confirmation from an upper-level protocol like TCP, but packets are
	// still able to be transmitted to the possibly stale link address.
	Delay

	// Probe means a reachability confirmation is actively being sought by
	// periodically retransmitting unicast reachability probes until a
	// confirmation is received, or until the max amount of probes has been
	// sent.
	Probe

	// Static describes entries that have been explicitly added through
	// configuration. They never age, are exempt from eviction and survive
	// flushes; they are removed only explicitly.
	Static
)

// String implements fmt.Stringer.
func (s NeighborState) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Incomplete:
		return "Incomplete"
	case Reachable:
		return "Reachable"
	case Stale:
		return "Stale"
	case Delay:
		return "Delay"
	case Probe:
		return "Probe"
	case Static:
		return "Static"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(s))
	}
}

// NeighborEntry is the published view of a neighbor cache entry.
type NeighborEntry struct {
	Addr     tcpip.Address
	LinkAddr tcpip.LinkAddress
	State    NeighborState

	// UpdatedAt is the monotonic time, in nanoseconds, of the entry's last
	// state transition.
	UpdatedAt int64
}

// neighborEntry is one slot of the neighbor cache arena. The zero value is a
// free slot.
//
// All fields are protected by the cache's mutex; there is no per-entry
// locking since the surrounding stack serializes every operation on the
// cache.
type neighborEntry struct {
	neigh NeighborEntry

	// timeout is how long the current state may last before the maintenance
	// sweep acts on the entry. Its meaning depends on the state: the
	// retransmission interval in Incomplete and Probe, the reachable time in
	// Reachable and the first-probe delay in Delay. Zero in states the sweep
	// ignores.
	timeout time.Duration

	// probes counts timeout-driven solicitations in the current resolution or
	// unreachability probing attempt. The initial solicitation sent on
	// entering Incomplete or Probe is not counted.
	probes uint32

	// isRouter records the IsRouter flag of the most recent confirmation.
	isRouter bool

	// pending holds packets awaiting address resolution. Non-empty only
	// while the entry is Incomplete.
	pending packetQueue
}

// expired returns true if the entry's current state has outlived its timeout
// at monotonic time now.
func (e *neighborEntry) expired(now int64) bool {
	return time.Duration(now-e.neigh.UpdatedAt) >= e.timeout
}

// setStateLocked transitions the entry to the specified state immediately.
// It is the single choke point for all transitions: it records the
// transition time, arms the state's timeout and emits the instrumentation.
// Retransmission counters are managed by the callers since a state may
// re-enter itself to refresh its timer.
//
// n.mu must be locked.
func (n *NeighborCache) setStateLocked(e *neighborEntry, next NeighborState) {
	prev := e.neigh.State
	e.neigh.State = next
	e.neigh.UpdatedAt = n.clock.NowMonotonic()

	config := n.state.Config()
	switch next {
	case Incomplete, Probe:
		e.timeout = config.RetransmitTimer
	case Reachable:
		e.timeout = n.state.ReachableTime()
	case Delay:
		e.timeout = config.DelayFirstProbeTime
	case Unknown, Stale, Static:
		e.timeout = 0
	default:
		panic(fmt.Sprintf("invalid state transition from %q to %q", prev, next))
	}

	n.logger.Debug("neighbor state changed",
		zapAddr(e.neigh.Addr),
		zapState("from", prev),
		zapState("to", next))
}

// handlePacketQueuedLocked advances the state machine according to a packet
// being queued for outgoing transmission, following RFC 4861 section 7.3.3:
// a fresh entry begins multicast resolution, a Stale entry is promoted to
// Delay by the send path.
//
// n.mu must be locked.
func (n *NeighborCache) handlePacketQueuedLocked(e *neighborEntry) {
	switch e.neigh.State {
	case Unknown:
		n.dispatchAddEventLocked(e, Incomplete)
		n.setStateLocked(e, Incomplete)
		e.probes = 0
		n.sendSolicitationLocked(e, true /* multicast */)

	case Stale:
		n.dispatchChangeEventLocked(e, Delay)
		n.setStateLocked(e, Delay)

	case Incomplete, Reachable, Delay, Probe, Static:
		// Do nothing

	default:
		panic(fmt.Sprintf("invalid cache entry state: %s", e.neigh.State))
	}
}

// handleProbeLocked processes an incoming neighbor probe (a Neighbor
// Solicitation carrying a source link-layer address), following RFC 4861
// section 7.2.3.
//
// n.mu must be locked.
func (n *NeighborCache) handleProbeLocked(e *neighborEntry, remoteLinkAddr tcpip.LinkAddress) {
	switch e.neigh.State {
	case Unknown:
		e.neigh.LinkAddr = remoteLinkAddr
		n.dispatchAddEventLocked(e, Stale)
		n.setStateLocked(e, Stale)

	case Incomplete:
		// The probe carries the answer resolution was waiting for; drain the
		// queue before leaving Incomplete.
		e.neigh.LinkAddr = remoteLinkAddr
		n.sendQueuedLocked(e)
		n.dispatchChangeEventLocked(e, Stale)
		n.setStateLocked(e, Stale)

	case Reachable, Delay, Probe:
		if e.neigh.LinkAddr != remoteLinkAddr {
			e.neigh.LinkAddr = remoteLinkAddr
			n.dispatchChangeEventLocked(e, Stale)
			n.setStateLocked(e, Stale)
		}

	case Stale:
		if e.neigh.LinkAddr != remoteLinkAddr {
			e.neigh.LinkAddr = remoteLinkAddr
			n.dispatchChangeEventLocked(e, Stale)
		}

	case Static:
		// Do nothing

	default:
		panic(fmt.Sprintf("invalid cache entry state: %s", e.neigh.State))
	}
}

// handleConfirmationLocked processes an incoming neighbor confirmation (a
// Neighbor Advertisement), following the state machine defined by RFC 4861
// section 7.2.5.
//
// n.mu must be locked.
func (n *NeighborCache) handleConfirmationLocked(e *neighborEntry, linkAddr tcpip.LinkAddress, flags ReachabilityConfirmationFlags) {
	switch e.neigh.State {
	case Incomplete:
		if len(linkAddr) == 0 {
			// "If the link layer has addresses and no Target Link-Layer
			// Address option is included, the receiving node SHOULD silently
			// discard the received advertisement." - RFC 4861 section 7.2.5
			break
		}

		e.neigh.LinkAddr = linkAddr
		n.sendQueuedLocked(e)
		if flags.Solicited {
			n.dispatchChangeEventLocked(e, Reachable)
			n.setStateLocked(e, Reachable)
		} else {
			n.dispatchChangeEventLocked(e, Stale)
			n.setStateLocked(e, Stale)
		}
		e.isRouter = flags.IsRouter

		// "Note that the Override flag is ignored if the entry is in the
		// INCOMPLETE state." - RFC 4861 section 7.2.5

	case Reachable, Stale, Delay, Probe:
		isLinkAddrDifferent := len(linkAddr) != 0 && e.neigh.LinkAddr != linkAddr

		if isLinkAddrDifferent {
			if !flags.Override {
				if e.neigh.State == Reachable {
					n.dispatchChangeEventLocked(e, Stale)
					n.setStateLocked(e, Stale)
				}
				break
			}

			e.neigh.LinkAddr = linkAddr

			if !flags.Solicited {
				if e.neigh.State != Stale {
					n.dispatchChangeEventLocked(e, Stale)
					n.setStateLocked(e, Stale)
				} else {
					// Notify the link address change even though the state
					// has not moved.
					n.dispatchChangeEventLocked(e, e.neigh.State)
				}
				break
			}
		}

		if flags.Solicited && (flags.Override || !isLinkAddrDifferent) {
			if e.neigh.State != Reachable {
				n.dispatchChangeEventLocked(e, Reachable)
			}
			// Set state to Reachable again to refresh the timer.
			n.setStateLocked(e, Reachable)
		}

		if e.isRouter && !flags.IsRouter {
			// "In those cases where the IsRouter flag changes from TRUE to
			// FALSE as a result of this update, the node MUST remove that
			// router from the Default Router List and update the Destination
			// Cache entries for all destinations using that neighbor as a
			// router." - RFC 4861 section 7.2.5
			if n.ndpEP != nil {
				n.ndpEP.InvalidateNextHop(e.neigh.Addr)
			}
		}
		e.isRouter = flags.IsRouter

	case Unknown, Static:
		// Do nothing

	default:
		panic(fmt.Sprintf("invalid cache entry state: %s", e.neigh.State))
	}
}

// handleUpperLevelConfirmationLocked processes an incoming upper-level
// protocol (e.g. TCP acknowledgements) reachability confirmation, following
// RFC 4861 section 7.3.1.
//
// n.mu must be locked.
func (n *NeighborCache) handleUpperLevelConfirmationLocked(e *neighborEntry) {
	switch e.neigh.State {
	case Reachable, Stale, Delay, Probe:
		if e.neigh.State != Reachable {
			n.dispatchChangeEventLocked(e, Reachable)
		}
		// Set state to Reachable again to refresh the timer.
		n.setStateLocked(e, Reachable)

	case Unknown, Incomplete, Static:
		// Do nothing

	default:
		panic(fmt.Sprintf("invalid cache entry state: %s", e.neigh.State))
	}
}
