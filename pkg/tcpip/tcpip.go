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

// Package tcpip provides the base vocabulary shared by the neighbor
// discovery core: network and link-layer addresses, clock abstractions,
// error values and statistics counters.
//
// Addresses are byte slices cast as strings so they can be used as map keys
// and compared with ==. An IPv6 address is a 16-byte Address.
package tcpip

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"
)

// Error represents an error in the netstack error space. Using a dedicated
// error space avoids allocating wrapped errors on hot paths; errors are
// compared by identity.
type Error struct {
	msg         string
	ignoreStats bool
}

// String implements fmt.Stringer.
func (e *Error) String() string {
	return e.msg
}

// IgnoreStats indicates whether this error should be included in failure
// counts in stats.
func (e *Error) IgnoreStats() bool {
	return e.ignoreStats
}

// Errors that can be returned by the neighbor discovery core.
var (
	// ErrWouldBlock indicates address resolution is in flight and the packet,
	// if any, has been queued behind it.
	ErrWouldBlock = &Error{msg: "operation would block", ignoreStats: true}

	// ErrNoLinkAddress indicates no link address is known for the peer.
	ErrNoLinkAddress = &Error{msg: "no remote link address"}

	// ErrNoBufferSpace indicates a fixed-capacity table has no reusable slot.
	ErrNoBufferSpace = &Error{msg: "no buffer space available"}

	// ErrBadAddress indicates a malformed or empty address.
	ErrBadAddress = &Error{msg: "bad address"}
)

// A Clock provides the current time.
//
// Only monotonic times should be used for internal timekeeping; wall-clock
// readings are for application-visible timestamps only.
type Clock interface {
	// NowNanoseconds returns the current real time as a number of nanoseconds
	// since the Unix epoch.
	NowNanoseconds() int64

	// NowMonotonic returns a monotonic time value, in nanoseconds.
	NowMonotonic() int64

	// AfterFunc waits for the duration to elapse and then calls f in its own
	// goroutine. It returns a Timer that can be used to cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer represents a single event. A Timer must be created with
// Clock.AfterFunc.
type Timer interface {
	// Stop prevents the Timer from firing. It returns true if the call stops
	// the timer, false if the timer has already expired or been stopped.
	Stop() bool

	// Reset changes the timer to expire after duration d.
	Reset(d time.Duration)
}

// Address is a byte slice cast as a string that represents the address of a
// network node.
type Address string

// Unspecified returns true if the address is zero-valued (the IPv6
// unspecified address, or empty). The unspecified address doubles as the
// free-slot sentinel in fixed-capacity tables.
func (a Address) Unspecified() bool {
	for i := 0; i < len(a); i++ {
		if a[i] != 0 {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (a Address) String() string {
	switch len(a) {
	case 4:
		return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
	case 16:
		// Find the longest run of zero-valued 16-bit groups for "::"
		// compression.
		zeroStart, zeroLen := -1, 0
		start, length := -1, 0
		for i := 0; i < 16; i += 2 {
			if a[i] == 0 && a[i+1] == 0 {
				if start == -1 {
					start = i
				}
				length += 2
				if length > zeroLen {
					zeroStart, zeroLen = start, length
				}
			} else {
				start, length = -1, 0
			}
		}
		var b []byte
		for i := 0; i < 16; i += 2 {
			if i == zeroStart && zeroLen > 2 {
				b = append(b, ':', ':')
				i += zeroLen - 2
				continue
			}
			if len(b) > 0 && b[len(b)-1] != ':' {
				b = append(b, ':')
			}
			b = strconv.AppendUint(b, uint64(a[i])<<8|uint64(a[i+1]), 16)
		}
		return string(b)
	default:
		return fmt.Sprintf("%x", []byte(a))
	}
}

// LinkAddress is a byte slice cast as a string that represents a link
// address. It is typically a 6-byte MAC address.
type LinkAddress string

// String implements fmt.Stringer.
func (a LinkAddress) String() string {
	switch len(a) {
	case 6:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
	default:
		return fmt.Sprintf("%x", []byte(a))
	}
}

// NICID is a number that uniquely identifies a NIC.
type NICID int32

// A StatCounter keeps track of a statistic.
type StatCounter struct {
	count uint64
}

// Increment adds one to the counter.
func (s *StatCounter) Increment() {
	s.IncrementBy(1)
}

// IncrementBy increments the counter by v.
func (s *StatCounter) IncrementBy(v uint64) {
	atomic.AddUint64(&s.count, v)
}

// Value returns the current value of the counter.
func (s *StatCounter) Value() uint64 {
	return atomic.LoadUint64(&s.count)
}

// String implements fmt.Stringer.
func (s *StatCounter) String() string {
	return strconv.FormatUint(s.Value(), 10)
}
