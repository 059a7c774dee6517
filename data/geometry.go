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
	"math"
	"time"
)

// TimeFormat is the timestamp layout used everywhere a timestamp crosses a
// boundary: the store and the logs. It sorts lexically,
// so range scans over persisted timestamps behave the same on every driver.
const TimeFormat = "2006-01-02 15:04:05.000000"

// Coords is a position on the warehouse floor plane, in meters.
type Coords struct {
	X float64
	Y float64
}

func (c Coords) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", c.X, c.Y)
}

// Distance returns the Euclidean distance between two floor positions.
func Distance(p, q Coords) float64 {
	return math.Sqrt((p.X-q.X)*(p.X-q.X) + (p.Y-q.Y)*(p.Y-q.Y))
}

// DeltaSeconds returns late minus early as floating-point seconds with
// microsecond precision.
func DeltaSeconds(early, late time.Time) float64 {
	return late.Sub(early).Seconds()
}

// FormatTime renders a timestamp in the canonical layout.
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// ParseTime parses a timestamp in the canonical layout.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// Round2 rounds to two decimal places. Averaged speeds are persisted with
// this precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
