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
	"go.uber.org/zap"
)

// packetQueue is the bounded FIFO of packets waiting on one entry's address
// resolution. The queue owns each buffer from enqueue until it is handed to
// the link writer, handed to the error handler, or released; those are the
// only exits.
type packetQueue struct {
	packets []*PacketBuffer
}

func (q *packetQueue) isEmpty() bool {
	return len(q.packets) == 0
}

// enqueue appends pkt. When the queue is already at limit the oldest queued
// packet is shed and returned so the caller can release it.
//
// "When a queue overflows, the new arrival SHOULD replace the oldest entry."
// - RFC 4861 section 7.2.2
func (q *packetQueue) enqueue(pkt *PacketBuffer, limit int) (dropped *PacketBuffer) {
	if limit > 0 && len(q.packets) >= limit {
		dropped = q.packets[0]
		copy(q.packets, q.packets[1:])
		q.packets[len(q.packets)-1] = nil
		q.packets = q.packets[:len(q.packets)-1]
	}
	q.packets = append(q.packets, pkt)
	return dropped
}

// drain empties the queue and returns its packets in enqueue order, along
// with ownership of their buffers.
func (q *packetQueue) drain() []*PacketBuffer {
	packets := q.packets
	q.packets = nil
	return packets
}

// sendQueuedLocked transmits every packet queued on e in enqueue order using
// the entry's now-resolved link address. It is called at the moment
// resolution succeeds, immediately before the entry leaves Incomplete.
//
// The queue always ends empty; link-layer write failures are not propagated,
// transmission is fire and forget from this layer's perspective. Ownership
// of each buffer transfers to the link writer. Returns the number of packets
// handed off.
//
// n.mu must be locked.
func (n *NeighborCache) sendQueuedLocked(e *neighborEntry) int {
	sent := 0
	for _, pkt := range e.pending.drain() {
		n.stats.PacketsSent.Increment()
		n.linkWriter.WritePacket(e.neigh.LinkAddr, pkt)
		sent++
	}
	if sent > 0 {
		n.logger.Debug("sent packets pending resolution",
			zapAddr(e.neigh.Addr),
			zap.Int("count", sent))
	}
	return sent
}

// flushQueueLocked releases every packet queued on e. It is called on
// resolution failure, eviction and explicit flushes.
//
// A forwarded packet (one with an ingress NIC) is handed to the error
// handler for an ICMPv6 Destination Unreachable, Address Unreachable report
// when the entry has exhausted its multicast solicitations; everything else
// is dropped silently. The queue always ends empty.
//
// n.mu must be locked.
func (n *NeighborCache) flushQueueLocked(e *neighborEntry) {
	config := n.state.Config()
	for _, pkt := range e.pending.drain() {
		if e.probes >= config.MaxMulticastProbes && pkt.IngressNIC != 0 && n.errorHandler != nil {
			n.errorHandler.HandleLinkResolutionFailure(pkt.IngressNIC, pkt)
		} else {
			pkt.Release()
		}
		n.stats.PacketsDropped.Increment()
	}
}
