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
	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip"
)

// LinkAddressResolver handles the sending of neighbor solicitations. One
// implementation exists per link type (e.g. Ethernet); it is injected into
// the neighbor cache at construction.
type LinkAddressResolver interface {
	// LinkAddressRequest sends a request for the link address of targetAddr.
	// If remoteLinkAddr is empty the request is sent to targetAddr's
	// solicited-node multicast group, otherwise it is a unicast probe to the
	// cached link address.
	//
	// Transmission is fire and forget; a failure here does not abort the
	// resolution attempt.
	LinkAddressRequest(targetAddr tcpip.Address, remoteLinkAddr tcpip.LinkAddress) *tcpip.Error

	// ResolveStaticAddress attempts to resolve addr without sending requests.
	// It is used for addresses with a fixed link-layer mapping, such as
	// multicast addresses.
	ResolveStaticAddress(addr tcpip.Address) (tcpip.LinkAddress, bool)
}

// LinkWriter transmits packets that were queued awaiting address resolution
// once the destination's link address is known.
type LinkWriter interface {
	// WritePacket builds and transmits a link-layer frame carrying pkt to
	// remoteLinkAddr. Ownership of pkt is transferred to the writer, which
	// must release it exactly once.
	WritePacket(remoteLinkAddr tcpip.LinkAddress, pkt *PacketBuffer) *tcpip.Error
}

// NetworkErrorHandler receives forwarded packets whose address resolution
// failed permanently. Implementations emit an ICMPv6 Destination Unreachable
// (Address Unreachable) message toward the packet's origin via ingressNIC.
// Ownership of pkt is transferred to the handler.
type NetworkErrorHandler interface {
	HandleLinkResolutionFailure(ingressNIC tcpip.NICID, pkt *PacketBuffer)
}

// NDPEndpoint is notified when a neighbor stops being a usable next hop so
// that routing can re-run next-hop determination for destinations that were
// using it.
type NDPEndpoint interface {
	InvalidateNextHop(addr tcpip.Address)
}

// ReachabilityConfirmationFlags describes the flags used within a
// reachability confirmation, as per RFC 4861 section 4.4.
type ReachabilityConfirmationFlags struct {
	// Solicited indicates that the advertisement was sent in response to a
	// reachability probe.
	Solicited bool

	// Override indicates that the reachability confirmation should override
	// an existing neighbor cache entry and update the cached link-layer
	// address.
	Override bool

	// IsRouter indicates that the sender is a router.
	IsRouter bool
}

// NUDDispatcher is the interface integrators of the neighbor cache implement
// to be informed of entry events. Calls are made with the cache lock held
// and must not call back into the cache.
type NUDDispatcher interface {
	// OnNeighborAdded will be called when a new entry enters the cache.
	OnNeighborAdded(entry NeighborEntry)

	// OnNeighborChanged will be called when an entry changes state or
	// link-layer address.
	OnNeighborChanged(entry NeighborEntry)

	// OnNeighborRemoved will be called when an entry leaves the cache, by
	// aging out, eviction or explicit removal.
	OnNeighborRemoved(entry NeighborEntry)
}
