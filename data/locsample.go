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

// Location types reported by the positioning system. Aisles and the charging
// area never hold inventory, so clamp events there are ignored.
const (
	LocTypeStow     = "stow"
	LocTypeDock     = "dock"
	LocTypeDockOS   = "dockOS"
	LocTypeAisle    = "aisle"
	LocTypeCharging = "charging"
)

// Clamp status bits carried by each location sample. Bit 0x80 is set while
// the clamps are open; bit 0x40 is set while they are closed around a load.
const (
	ClampOpenBit   uint8 = 0x80
	ClampClosedBit uint8 = 0x40
)

/*
 * LocSample - one row of the 'loc_data' table joined with its geo-feature.
 * Samples arrive sorted ascending by timestamp; the monitor keeps a cursor
 * of the last timestamp it has consumed and only ever asks for newer rows.
 *
 * Fields:
 *   locid        - geo-feature the truck is inside
 *   loctype      - geo-feature type (stow, dock, dockOS, aisle, charging)
 *   x, y         - floor coordinates in meters
 *   speed        - meters per second
 *   clamp_status - raw 8-bit clamp controller status
 */
type LocSample struct {
	LocID       int
	LocType     string
	Coords      Coords
	Timestamp   time.Time
	Speed       float64
	ClampStatus uint8
}

func (s *LocSample) String() string {
	return fmt.Sprintf("loc %d (%s) %s speed %.2f clamp 0x%02x at %s",
		s.LocID, s.LocType, s.Coords, s.Speed, s.ClampStatus, FormatTime(s.Timestamp))
}
