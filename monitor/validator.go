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

// checkPickup resolves a pending pickup. It only collects: the RFID window
// around the pickup is computed, waited out and its item ids appended to the
// latest pickup set, accumulating across back-to-back pickups of a carry.
// Pickups never create or cancel item-level alerts. A pickup whose distance
// gate never passed is discarded.
func (m *Monitor) checkPickup() error {
	if !m.pickupArmed {
		return nil
	}
	m.pickupArmed = false
	if !m.outside(m.cfg.PickupCheckDistanceTrigger, m.pickupCoords) {
		return nil
	}

	m.log.Infof("checking pickup load at %s in %s",
		data.FormatTime(m.pickupTime), m.pickupCoords)

	// The back-window starts where the truck last was outside the pickup
	// circle, bounded at 60 s before the pickup.
	windowStart := m.pickupTime.Add(-pickupLookback)
	samples, err := m.store.LocSamplesBetween(windowStart, m.pickupTime)
	if err != nil {
		return err
	}
	loadQueryStart := windowStart
	for _, sample := range samples {
		if data.Distance(sample.Coords, m.pickupCoords) >= m.cfg.PickupCheckDistanceWindow {
			loadQueryStart = sample.Timestamp
			break
		}
	}
	loadQueryEnd := m.pickupTime.Add(secondsDur(m.cfg.PickupPostSeconds))

	if err := m.store.WaitForRFID(loadQueryEnd); err != nil {
		return err
	}
	items, err := m.store.ItemsDetected(loadQueryStart, loadQueryEnd)
	if err != nil {
		return err
	}
	m.log.Infof("pickup items: %v", items)
	for _, item := range items {
		m.latestPickupItemIDs = append(m.latestPickupItemIDs, item.ID)
	}
	return nil
}

// shouldCheckItemAtDrop filters the items sensed at a drop. Items seen at
// the latest pickup are always checked. Others are checked only if their
// origin belongs to the pickup history — and not when that origin is an
// incorrect location with an active drop_location alert, which would be a
// neighboring stow the driver is fixing.
func (m *Monitor) shouldCheckItemAtDrop(item *data.Item) (bool, error) {
	if containsInt(m.latestPickupItemIDs, item.ID) {
		return true, nil
	}
	if !m.inCorrectOrigins(item.Origin) {
		active, err := m.store.LocHasActiveDropLocationAlerts(item.Origin)
		if err != nil {
			return false, err
		}
		if active {
			return false, nil
		}
	}
	return containsInt(m.pickupHistory, item.Origin), nil
}

// checkDrop validates the items sensed at a drop against the open tasks,
// classifying each checked item as correct, returned or wrong, then applies
// the alert/trip/carry side effects in order.
func (m *Monitor) checkDrop(dropLocation int, sensed []*data.Item) error {
	m.log.Info("checking drop load")
	m.log.Infof("pickup set: %v", m.latestPickupItemIDs)
	m.log.Infof("sensed items at drop: %v", sensed)

	var correctItems, returnedItems, wrongItems []*data.Item

	noeActive, err := m.noeDropActive(dropLocation)
	if err != nil {
		return err
	}

	for _, item := range sensed {
		check, err := m.shouldCheckItemAtDrop(item)
		if err != nil {
			return err
		}
		if !check {
			continue
		}

		matched := false
		for _, task := range m.tasks {
			if task.Complete {
				continue
			}
			if item.Model != task.Model || !item.Fungible() || item.Origin != task.Origin {
				continue
			}
			if dropLocation != task.Dest && !noeActive {
				continue
			}
			if dropLocation != task.Dest {
				m.log.Infof("finalizing NOE location drop for model %s", task.Model)
			}
			if err := m.store.UpdateItemLocation(item.ID, dropLocation); err != nil {
				return err
			}
			m.finalizeTask(task, item)
			if err := m.store.SaveTask(task); err != nil {
				return err
			}
			correctItems = append(correctItems, item)
			matched = true
			break
		}
		if matched {
			continue
		}

		if item.Origin != dropLocation {
			err = m.checkAllegedWrongItem(item, dropLocation,
				&correctItems, &returnedItems, &wrongItems)
			if err != nil {
				return err
			}
		} else {
			returnedItems = append(returnedItems, item)
		}
	}

	// Each wrong item gets the destination of the first open task it could
	// have satisfied; a task is reserved by at most one wrong item per drop.
	// With no candidate task, advise returning the item to its origin.
	reserved := make(map[int]bool)
	for _, wrongItem := range wrongItems {
		wrongItem.CorrectLocID = wrongItem.Origin
		for _, task := range m.tasks {
			if task.Complete || reserved[task.TaskID] {
				continue
			}
			if wrongItem.Model == task.Model && wrongItem.Fungible() && wrongItem.Origin == task.Origin {
				wrongItem.CorrectLocID = task.Dest
				reserved[task.TaskID] = true
				break
			}
		}
	}

	if len(correctItems) > 0 && m.inCorrectDests(dropLocation) {
		m.speedAccumulator = nil
		m.taskCompletionTimes = append(m.taskCompletionTimes, m.currLocTime)
	}

	if len(returnedItems) > 0 {
		if err := m.store.CancelAlertsByItems(returnedItems); err != nil {
			return err
		}
		m.metrics.AddAlertsCancelled(uint(len(returnedItems)))
	}

	if len(wrongItems) > 0 {
		alertType := data.AlertDropLocation
		if m.inCorrectDests(dropLocation) {
			alertType = data.AlertDropItems
		}
		m.log.Infof("wrong items in drop location %d: %v", dropLocation, wrongItems)
		if err := m.createAlert(alertType, dropLocation, wrongItems); err != nil {
			return err
		}
	}

	if len(correctItems)+len(wrongItems)+len(returnedItems) > 0 && m.inCorrectDests(dropLocation) {
		m.finalizeTrip(dropLocation, m.currLocTime, len(correctItems) > 0)
	}

	// Only a drop containing correct items closes the carry.
	if len(correctItems) > 0 {
		if err := m.store.CancelAlertsByItems(correctItems); err != nil {
			return err
		}
		m.finalizeCarry(dropLocation, m.currLocTime, len(correctItems))
		if err := m.checkRemainingTasks(dropLocation); err != nil {
			return err
		}
	}

	m.latestPickupItemIDs = nil
	return m.checkJob()
}

// checkAllegedWrongItem rescues an item that matched no open task but may
// represent completed work. When several fungible units of a model were
// dropped together, one closed the task and the extras raised alerts; the
// driver may later move either unit. Swapping the bound item id with one
// left behind preserves the driver's work instead of forcing a specific
// physical unit to move.
func (m *Monitor) checkAllegedWrongItem(item *data.Item, dropLocation int,
	correctItems, returnedItems, wrongItems *[]*data.Item) error {

	if !item.Fungible() {
		*wrongItems = append(*wrongItems, item)
		return nil
	}

	var prior *data.Task
	for _, task := range m.tasks {
		if task.Model == item.Model && task.Complete && task.ItemID == item.ID {
			prior = task
			break
		}
	}

	alerts, err := m.store.AlertsMatching(item)
	if err != nil {
		return err
	}
	if prior == nil || len(alerts) == 0 {
		*wrongItems = append(*wrongItems, item)
		return nil
	}

	var correctionTask *data.Task
	var alertToCancel *data.Alert

	if prior.Origin != dropLocation {
		for _, task := range m.tasks {
			if task.Model == item.Model && !task.Complete && task.Dest == dropLocation {
				correctionTask = task
				break
			}
		}
		for _, alert := range alerts {
			if alert.CorrectLocID == dropLocation {
				alertToCancel = alert
				break
			}
		}
		if correctionTask == nil || alertToCancel == nil {
			*wrongItems = append(*wrongItems, item)
			return nil
		}
	} else {
		// The item is going back to the origin of the task that consumed
		// it: the unit left behind takes over the binding.
		alertToCancel = alerts[0]
	}

	// The unit left behind takes over the prior binding; it already sits at
	// prior's destination, so its persisted location moves there with it.
	prior.ItemID = alertToCancel.ItemID
	if err := m.store.SaveTask(prior); err != nil {
		return err
	}
	if err := m.store.UpdateItemLocation(alertToCancel.ItemID, prior.Dest); err != nil {
		return err
	}
	if correctionTask != nil {
		if err := m.store.UpdateItemLocation(item.ID, correctionTask.Dest); err != nil {
			return err
		}
		m.finalizeTask(correctionTask, item)
		if err := m.store.SaveTask(correctionTask); err != nil {
			return err
		}
		*correctItems = append(*correctItems, item)
	} else {
		*returnedItems = append(*returnedItems, item)
	}

	if err := m.store.CancelAlert(alertToCancel.ID); err != nil {
		return err
	}
	m.metrics.AddAlertsCancelled(1)
	return nil
}

// finalizeTask completes a task with the item that fulfilled it. The task's
// window runs from the previous completion (or job start) to now.
func (m *Monitor) finalizeTask(task *data.Task, item *data.Item) {
	start := m.jobStartTime
	if n := len(m.taskCompletionTimes); n > 0 {
		start = m.taskCompletionTimes[n-1]
	}
	task.Bind(item.ID, start, m.currLocTime, m.taskAvgSpeed())
	m.metrics.AddTasksCompleted(1)
}

func (m *Monitor) taskAvgSpeed() float64 {
	if len(m.speedAccumulator) == 0 {
		return 0
	}
	sum := 0.0
	for _, speed := range m.speedAccumulator {
		sum += speed
	}
	return data.Round2(sum / float64(len(m.speedAccumulator)))
}

// finalizeTrip closes the open trip at the given location. A trip may close
// where it started only when its carry closes with it; otherwise the close
// is ignored. A follow-up trip opens in the same carry unless the carry
// closes with this trip or the job ran out of work.
func (m *Monitor) finalizeTrip(location int, at time.Time, carryFinished bool) {
	carry := m.currentCarry()
	if carry == nil || carry.CurrentTrip() == nil {
		return
	}
	if carry.CurrentTrip().Origin == location && !carryFinished {
		return
	}
	carry.CurrentTrip().Finished(location, at)
	if m.hasActiveTasks() && !carryFinished {
		carry.AppendTrip(at, location)
	}
}

// finalizeCarry closes the open carry and opens the next one while open
// tasks remain.
func (m *Monitor) finalizeCarry(location int, at time.Time, correctItemCount int) {
	if carry := m.currentCarry(); carry != nil {
		carry.Finished(location, correctItemCount, at)
	}
	if m.hasActiveTasks() {
		m.carries = append(m.carries, data.NewCarry(len(m.carries)+1, at, location))
	}
}

// checkRemainingTasks raises a remaining_tasks alert while other open tasks
// still target the drop location, and cancels it once none remain.
func (m *Monitor) checkRemainingTasks(dropLocation int) error {
	remaining := 0
	for _, task := range m.tasks {
		if !task.Complete && task.Dest == dropLocation {
			remaining++
		}
	}
	if remaining > 0 {
		if err := m.createAlert(data.AlertRemainingTasks, dropLocation, nil); err != nil {
			return err
		}
		m.log.Infof("%d incomplete tasks", remaining)
		return nil
	}
	return m.store.CancelRemainingTasksAlert(dropLocation)
}

// checkJob persists the analytics once every task is complete and no
// blocking alert remains, then clears the task and location sets: from then
// on pickups raise no clamp alerts, and picked-up items dropped anywhere are
// reported as wrong with a drop_location alert.
func (m *Monitor) checkJob() error {
	if len(m.tasks) == 0 || m.hasActiveTasks() {
		return nil
	}
	active, err := m.store.HasActiveAlerts()
	if err != nil {
		return err
	}
	if active {
		return nil
	}

	finish := time.Now()
	m.log.Infof("job completed at: %s", data.FormatTime(finish))
	m.logAllData()
	if err := m.store.SaveCarries(m.carries); err != nil {
		return err
	}
	if err := m.store.SaveJob(m.jobStartTime, finish, m.carries); err != nil {
		return err
	}
	m.tasks = nil
	m.correctOrigins = nil
	m.correctDests = nil
	return nil
}
