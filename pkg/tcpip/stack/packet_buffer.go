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

// PacketBuffer is an outbound packet together with the transmit options
// bound to it.
//
// A PacketBuffer is owned by exactly one holder at a time: the caller before
// it is handed to the neighbor cache, a pending queue while resolution is in
// flight, and finally whichever of the link writer or the error handler it
// is transferred to. The owner must call Release exactly once; a second
// Release panics.
type PacketBuffer struct {
	// Data holds the serialized packet. Offset marks where the payload to be
	// handed to the link layer starts.
	Data   []byte
	Offset int

	// HopLimit and TrafficClass are the per-packet transmit options carried
	// alongside the buffer.
	HopLimit     uint8
	TrafficClass uint8

	// IngressNIC identifies the interface the packet arrived on when the
	// packet is being forwarded. It is zero for locally originated packets
	// and selects where a resolution-failure ICMPv6 error is owed.
	IngressNIC tcpip.NICID

	released bool
}

// NewPacketBuffer returns a PacketBuffer owning data.
func NewPacketBuffer(data []byte) *PacketBuffer {
	return &PacketBuffer{Data: data}
}

// Payload returns the portion of the buffer starting at Offset.
func (pk *PacketBuffer) Payload() []byte {
	return pk.Data[pk.Offset:]
}

// Size returns the length of the payload.
func (pk *PacketBuffer) Size() int {
	return len(pk.Data) - pk.Offset
}

// Release returns the buffer's storage. It must be called exactly once by
// the final owner; releasing twice panics, catching double-free bugs at the
// ownership transfer points.
func (pk *PacketBuffer) Release() {
	if pk.released {
		panic("packet buffer released twice")
	}
	pk.released = true
	pk.Data = nil
}

// Released returns true if the buffer's storage has been returned.
func (pk *PacketBuffer) Released() bool {
	return pk.released
}
