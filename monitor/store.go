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

import (
	"time"

	"github.com/locatible/jobmon/data"
)

// Store is the narrow data-access handle a Monitor drives. An implementation
// is bound to one (job, truck) pair for its lifetime; the db package provides
// the SQL-backed one. Any method may fail transiently — the monitor's policy
// is to surface the error and let the worker die, leaving restart to the
// job manager.
type Store interface {
	// IsJobActive reads the job's active flag; flipping it to false is the
	// only cancellation channel a worker honors.
	IsJobActive() (bool, error)

	// TasksForJob fetches the job's task list with origin/destination
	// geo-feature ids and model strings.
	TasksForJob() ([]*data.Task, error)

	// LocationsSince returns location samples newer than the cursor, sorted
	// ascending by timestamp. Rows with null fields or unparseable
	// timestamps are skipped, not returned.
	LocationsSince(since time.Time) ([]*data.LocSample, error)

	// LocSamplesBetween returns samples in [min, max] sorted descending by
	// timestamp, for the pickup back-window computation.
	LocSamplesBetween(min, max time.Time) ([]*data.LocSample, error)

	// WaitForRFID blocks, polling at 1 Hz, until the truck's latest RFID
	// timestamp reaches target or the configured timeout elapses. A timeout
	// is a normal outcome and returns nil.
	WaitForRFID(target time.Time) error

	// ItemsDetected returns the items whose RFID detections fall inside
	// [min, max], de-duplicated by item id.
	ItemsDetected(min, max time.Time) ([]*data.Item, error)

	// ItemsByID materializes full item records for the scenario driver.
	ItemsByID(ids []int) ([]*data.Item, error)

	// HasActiveAlerts reports active alerts for the job, ignoring the two
	// clamp notification types.
	HasActiveAlerts() (bool, error)

	// LocHasActiveDropLocationAlerts reports whether the location carries an
	// active drop_location alert for this job.
	LocHasActiveDropLocationAlerts(locID int) (bool, error)

	// AlertsMatching returns the active alerts whose item shares the given
	// item's model and whose location is the item's origin.
	AlertsMatching(item *data.Item) ([]*data.Alert, error)

	// HasCannotPlaceAlerts / HasDamagedItemAlerts report active alerts of
	// the respective type on this job; they gate drops into the NOE sink.
	HasCannotPlaceAlerts() (bool, error)
	HasDamagedItemAlerts() (bool, error)

	// CreateAlert inserts one alert row per item, or a single location-only
	// row when items is empty.
	CreateAlert(locID int, alertType string, items []*data.Item, at time.Time) error

	CancelAlert(alertID int) error
	CancelAlertsByType(alertType string) error
	CancelAlertsByItems(items []*data.Item) error
	CancelAlertsByModelLoc(model string, locID int) error
	CancelRemainingTasksAlert(locID int) error

	// UpdateItemLocation moves an item to a new current location.
	UpdateItemLocation(itemID, locID int) error

	SaveTask(t *data.Task) error
	SaveJob(start, finish time.Time, carries []*data.Carry) error
	SaveCarries(carries []*data.Carry) error

	Close() error
}
