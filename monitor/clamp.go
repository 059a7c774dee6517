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

package monitor

import "github.com/locatible/jobmon/data"

// ClampEdges is the result of comparing two consecutive clamp status bytes.
// Both edges may fire on the same sample; the pickup edge must be handled
// before the drop edge.
type ClampEdges struct {
	Pickup bool
	Drop   bool
}

// DetectClampEdges compares consecutive clamp status bytes. A pickup is the
// falling edge of the clamps-open bit; a drop is the rising edge of the
// clamps-closed bit.
func DetectClampEdges(prev, curr uint8) ClampEdges {
	return ClampEdges{
		Pickup: prev&data.ClampOpenBit != 0 && curr&data.ClampOpenBit == 0,
		Drop:   prev&data.ClampClosedBit == 0 && curr&data.ClampClosedBit != 0,
	}
}
