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
	"sync"
	"time"

	"github.com/Oryx-Embedded/CycloneTCP-sub001/pkg/tcpip"
)

const (
	// defaultBaseReachableTime is the default base duration for computing the
	// random reachable time.
	//
	// Default taken from REACHABLE_TIME of RFC 4861 section 10.
	defaultBaseReachableTime = 30 * time.Second

	// minimumBaseReachableTime is the minimum base duration for computing the
	// random reachable time.
	minimumBaseReachableTime = time.Millisecond

	// defaultMinRandomFactor is the default minimum value of the random factor
	// used for computing reachable time.
	//
	// Default taken from MIN_RANDOM_FACTOR of RFC 4861 section 10.
	defaultMinRandomFactor = 0.5

	// defaultMaxRandomFactor is the default maximum value of the random factor
	// used for computing reachable time.
	//
	// Default taken from MAX_RANDOM_FACTOR of RFC 4861 section 10.
	defaultMaxRandomFactor = 1.5

	// defaultRetransmitTimer is the default amount of time to wait between
	// sending neighbor solicitations.
	//
	// Default taken from RETRANS_TIMER of RFC 4861 section 10.
	defaultRetransmitTimer = time.Second

	// minimumRetransmitTimer is the minimum amount of time to wait between
	// sending neighbor solicitations.
	minimumRetransmitTimer = time.Millisecond

	// defaultDelayFirstProbeTime is the default duration to wait for a
	// non-Neighbor-Discovery related protocol to reconfirm reachability after
	// entering the DELAY state.
	//
	// Default taken from DELAY_FIRST_PROBE_TIME of RFC 4861 section 10.
	defaultDelayFirstProbeTime = 5 * time.Second

	// defaultMaxMulticastProbes is the default number of reachability probes
	// to send before concluding negative reachability and deleting the
	// neighbor entry during multicast address resolution.
	//
	// Default taken from MAX_MULTICAST_SOLICIT of RFC 4861 section 10.
	defaultMaxMulticastProbes = 3

	// defaultMaxUnicastProbes is the default number of reachability probes to
	// send before concluding retransmissions are no longer worthwhile.
	//
	// Default taken from MAX_UNICAST_SOLICIT of RFC 4861 section 10.
	defaultMaxUnicastProbes = 3

	// reachableTimeInterval is how long a computed reachable time is used
	// before a new random value is drawn.
	//
	// "... a new random value should be calculated at least every few hours."
	// - RFC 4861 section 6.3.4
	reachableTimeInterval = 2 * time.Hour
)

// NUDConfigurations is the NUD configuration for the neighbor cache. See
// RFC 4861 section 10 for the protocol constants these derive from.
type NUDConfigurations struct {
	// BaseReachableTime is the base duration for computing the random
	// reachable time.
	BaseReachableTime time.Duration

	// MinRandomFactor and MaxRandomFactor bound the random factor the
	// reachable time is multiplied by. MinRandomFactor must be greater than
	// zero, MaxRandomFactor must be at least MinRandomFactor.
	MinRandomFactor float32
	MaxRandomFactor float32

	// RetransmitTimer is the amount of time to wait between sending neighbor
	// solicitations, in both the Incomplete and Probe states.
	RetransmitTimer time.Duration

	// DelayFirstProbeTime is how long to wait in the Delay state for an
	// upper-layer reachability confirmation before probing.
	DelayFirstProbeTime time.Duration

	// MaxMulticastProbes is the number of multicast solicitations sent before
	// address resolution is concluded to have failed.
	MaxMulticastProbes uint32

	// MaxUnicastProbes is the number of unicast solicitations sent before
	// the neighbor is concluded to be unreachable.
	MaxUnicastProbes uint32
}

// DefaultNUDConfigurations returns a NUDConfigurations populated with the
// default values defined by RFC 4861 section 10.
func DefaultNUDConfigurations() NUDConfigurations {
	return NUDConfigurations{
		BaseReachableTime:   defaultBaseReachableTime,
		MinRandomFactor:     defaultMinRandomFactor,
		MaxRandomFactor:     defaultMaxRandomFactor,
		RetransmitTimer:     defaultRetransmitTimer,
		DelayFirstProbeTime: defaultDelayFirstProbeTime,
		MaxMulticastProbes:  defaultMaxMulticastProbes,
		MaxUnicastProbes:    defaultMaxUnicastProbes,
	}
}

// resetInvalidFields replaces erroneous values with their defaults, so a
// partially filled or invalid configuration cannot wedge the state machine.
func (c *NUDConfigurations) resetInvalidFields() {
	if c.BaseReachableTime < minimumBaseReachableTime {
		c.BaseReachableTime = defaultBaseReachableTime
	}
	if c.MinRandomFactor <= 0 {
		c.MinRandomFactor = defaultMinRandomFactor
	}
	if c.MaxRandomFactor < c.MinRandomFactor {
		c.MaxRandomFactor = calcMaxRandomFactor(c.MinRandomFactor)
	}
	if c.RetransmitTimer < minimumRetransmitTimer {
		c.RetransmitTimer = defaultRetransmitTimer
	}
	if c.DelayFirstProbeTime == 0 {
		c.DelayFirstProbeTime = defaultDelayFirstProbeTime
	}
	if c.MaxMulticastProbes == 0 {
		c.MaxMulticastProbes = defaultMaxMulticastProbes
	}
	if c.MaxUnicastProbes == 0 {
		c.MaxUnicastProbes = defaultMaxUnicastProbes
	}
}

// calcMaxRandomFactor calculates the maximum random factor to be used when
// the default is not large enough to stay above the configured minimum.
func calcMaxRandomFactor(minRandomFactor float32) float32 {
	if minRandomFactor > defaultMaxRandomFactor {
		return minRandomFactor * 3
	}
	return defaultMaxRandomFactor
}

// NUDState stores the dynamic state associated with the configuration: the
// randomized reachable time currently in effect and when it should be
// recomputed.
type NUDState struct {
	clock tcpip.Clock
	rng   *rand.Rand

	mu sync.Mutex

	config NUDConfigurations

	// reachableTime is the duration to wait for a REACHABLE entry to
	// transition into STALE after inactivity. This value is calculated with
	// the algorithm defined in RFC 4861 section 6.3.2.
	reachableTime         time.Duration
	recomputeAt           int64
	prevBaseReachableTime time.Duration
	prevMinRandomFactor   float32
	prevMaxRandomFactor   float32
}

// NewNUDState returns new NUDState using c as the initial configuration.
// Invalid configuration values are replaced with defaults.
func NewNUDState(c NUDConfigurations, clock tcpip.Clock, rng *rand.Rand) *NUDState {
	c.resetInvalidFields()
	s := &NUDState{
		clock:  clock,
		rng:    rng,
		config: c,
	}
	s.recomputeReachableTimeLocked()
	return s
}

// Config returns the NUD configuration.
func (s *NUDState) Config() NUDConfigurations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SetConfig replaces the NUD configuration, fixing invalid values.
func (s *NUDState) SetConfig(c NUDConfigurations) {
	c.resetInvalidFields()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = c
}

// ReachableTime returns the duration to wait for a REACHABLE entry to
// transition into STALE after inactivity. The value is recomputed when it
// has been in use for reachableTimeInterval or when the configuration
// parameters it derives from change.
func (s *NUDState) ReachableTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock.NowMonotonic() >= s.recomputeAt ||
		s.config.BaseReachableTime != s.prevBaseReachableTime ||
		s.config.MinRandomFactor != s.prevMinRandomFactor ||
		s.config.MaxRandomFactor != s.prevMaxRandomFactor {
		s.recomputeReachableTimeLocked()
	}
	return s.reachableTime
}

// recomputeReachableTimeLocked draws a new random reachable time, as per
// RFC 4861 section 6.3.2:
//
//	ReachableTime = BaseReachableTime * (random factor uniformly distributed
//	between MinRandomFactor and MaxRandomFactor)
func (s *NUDState) recomputeReachableTimeLocked() {
	s.prevBaseReachableTime = s.config.BaseReachableTime
	s.prevMinRandomFactor = s.config.MinRandomFactor
	s.prevMaxRandomFactor = s.config.MaxRandomFactor

	randomFactor := s.config.MinRandomFactor + s.rng.Float32()*(s.config.MaxRandomFactor-s.config.MinRandomFactor)
	// The multiply is done in float64 so a degenerate configuration with
	// MinRandomFactor == MaxRandomFactor == 1 yields exactly the base time.
	s.reachableTime = time.Duration(float64(s.config.BaseReachableTime) * float64(randomFactor))
	s.recomputeAt = s.clock.NowMonotonic() + int64(reachableTimeInterval)
}
