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

// Alert types raised by the monitor. The two clamp notification types are
// advisory and never block job completion; the rest do.
const (
	AlertClampsClosedEvent   = "clamps_closed_event"
	AlertClampsClosedWarning = "clamps_closed_warning"
	AlertDropItems           = "drop_items"
	AlertDropLocation        = "drop_location"
	AlertRemainingTasks      = "remaining_tasks"
	AlertCannotPlace         = "cannot_place"
	AlertDamagedItem         = "damaged_item"
)

/*
 * Alert - one row of the 'alerts' table. The id is assigned on insert.
 * ItemID is zero for location-only alerts (clamp notifications,
 * remaining_tasks); drop_items alerts always carry an item. CorrectLocID
 * is zero when the system has no better suggestion than the alert location.
 */
type Alert struct {
	ID           int
	JobID        int
	LocID        int
	ItemID       int
	CorrectLocID int
	Type         string
	Active       bool
	Timestamp    time.Time
}

func (a *Alert) String() string {
	return fmt.Sprintf("[Alert-%d %s loc: %d item: %d active: %t]",
		a.ID, a.Type, a.LocID, a.ItemID, a.Active)
}
