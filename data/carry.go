/*
 *    Copyright 2024 Locatible
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 *
 */

package data

import (
	"fmt"
	"time"
)

/*
 * Carry - one load cycle. A carry opens at job start (or when the previous
 * carry closes) and closes when at least one correct item is dropped at a
 * correct destination. It always contains at least one trip; stow and dock
 * dwell times are accumulated sample-by-sample while it is open, and the
 * distance aggregates are computed over its trips at finalization.
 */
type Carry struct {
	CarryNum        int
	Origin          int
	Dest            int
	UnitCount       int
	StartTime       time.Time
	FinishTime      time.Time
	Trips           []*Trip
	StowTime        float64
	DockTime        float64
	TotalDistance   float64
	AvgTripDistance float64
	AvgTripTime     float64
}

// NewCarry opens a carry, with its first trip, at the given location.
func NewCarry(carryNum int, startTime time.Time, startLoc int) *Carry {
	c := &Carry{
		CarryNum:  carryNum,
		Origin:    startLoc,
		StartTime: startTime,
	}
	c.AppendTrip(startTime, startLoc)
	return c
}

func (c *Carry) String() string {
	return fmt.Sprintf("[%d to %d]", c.Origin, c.Dest)
}

// AddStowTime accumulates dwell time spent inside stow geo-features.
func (c *Carry) AddStowTime(prev, curr time.Time) {
	c.StowTime += DeltaSeconds(prev, curr)
}

// AddDockTime accumulates dwell time spent inside dock geo-features.
func (c *Carry) AddDockTime(prev, curr time.Time) {
	c.DockTime += DeltaSeconds(prev, curr)
}

// AppendTrip opens a new trip within this carry.
func (c *Carry) AppendTrip(startTime time.Time, startLoc int) {
	c.Trips = append(c.Trips, NewTrip(c.CarryNum, startTime, startLoc))
}

// CurrentTrip returns the open trip, the last one appended.
func (c *Carry) CurrentTrip() *Trip {
	if len(c.Trips) == 0 {
		return nil
	}
	return c.Trips[len(c.Trips)-1]
}

// Finished closes the carry and computes its trip aggregates.
func (c *Carry) Finished(location, itemCount int, at time.Time) {
	c.Dest = location
	c.UnitCount = itemCount
	c.FinishTime = at

	travelTime := 0.0
	for _, trip := range c.Trips {
		c.TotalDistance += trip.Distance
		travelTime += trip.TravelTime
	}

	if n := len(c.Trips); n > 0 {
		c.AvgTripDistance = c.TotalDistance / float64(n)
		c.AvgTripTime = travelTime / float64(n)
	}
}
