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
 * Trip - one sub-leg of a carry. A trip closes when the clamps close at a
 * correct origin, or when items (correct or not) are dropped at a correct
 * destination. Origin and destination must differ unless the trip is the
 * final leg of its carry.
 *
 * Distance is the polyline length of the positions observed while the trip
 * was open; speeds are accumulated per sample and averaged at finalization.
 */
type Trip struct {
	CarryNum     int
	Origin       int
	Dest         int
	StartTime    time.Time
	FinishTime   time.Time
	TravelTime   float64
	Distance     float64
	AvgSpeed     float64
	speeds       []float64
	latestCoords *Coords
}

func NewTrip(carryNum int, startTime time.Time, startLoc int) *Trip {
	return &Trip{
		CarryNum:  carryNum,
		StartTime: startTime,
		Origin:    startLoc,
	}
}

func (t *Trip) String() string {
	return fmt.Sprintf("[c%d %d to %d]", t.CarryNum, t.Origin, t.Dest)
}

// AppendSpeed records a speed sample. The average is computed when the trip
// is finalized.
func (t *Trip) AppendSpeed(speed float64) {
	t.speeds = append(t.speeds, speed)
}

// AppendCoords advances the polyline distance by the distance between the
// previous position and this one.
func (t *Trip) AppendCoords(coords Coords) {
	if t.latestCoords != nil {
		t.Distance += Distance(*t.latestCoords, coords)
	}
	c := coords
	t.latestCoords = &c
}

// Speeds returns the accumulated speed samples.
func (t *Trip) Speeds() []float64 {
	return t.speeds
}

// Finished closes the trip at the given location and time.
func (t *Trip) Finished(location int, at time.Time) {
	if len(t.speeds) == 0 {
		t.AvgSpeed = 0
	} else {
		sum := 0.0
		for _, s := range t.speeds {
			sum += s
		}
		t.AvgSpeed = Round2(sum / float64(len(t.speeds)))
	}

	t.FinishTime = at
	t.TravelTime = DeltaSeconds(t.StartTime, t.FinishTime)
	t.Dest = location
}
