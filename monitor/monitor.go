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

// Package monitor implements the per-job monitoring state machine: clamp
// edge detection over the location stream, spatial/temporal correlation with
// the RFID detections, pickup/drop validation against the job's task list,
// the alert lifecycle and trip/carry finalization.
package monitor

import (
	"time"

	"go.uber.org/zap"

	"github.com/locatible/jobmon/config"
	"github.com/locatible/jobmon/data"
)

// TickInterval is the location poll cadence. All in-memory state is owned by
// the tick loop; a worker is single-threaded by design.
const TickInterval = 200 * time.Millisecond

// pickupLookback bounds how far before a pickup the RFID back-window may
// start, regardless of where the truck entered the pickup circle.
const pickupLookback = 60 * time.Second

// Monitor drives one job on one truck. It owns the job's task, trip and
// carry state exclusively and writes through its Store.
type Monitor struct {
	cfg     *config.Config
	store   Store
	log     *zap.SugaredLogger
	metrics *Metrics

	jobID   int
	truckID int

	// Current location, refreshed for every sample.
	currLocID     int
	currLocType   string
	currLocTime   time.Time
	currLocCoords data.Coords
	prevLocTime   time.Time

	// Location ids extracted from the task list. Cleared on job completion
	// and never repopulated.
	correctOrigins []int
	correctDests   []int

	pickupHistory       []int
	dropHistory         []int
	latestPickupItemIDs []int

	tasks               []*data.Task
	taskCompletionTimes []time.Time
	speedAccumulator    []float64
	carries             []*data.Carry

	jobStartTime    time.Time
	prevClampStatus uint8

	// Distance gates armed by clamp edges.
	pickupArmed       bool
	pickupCoords      data.Coords
	pickupTime        time.Time
	dropArmed         bool
	dropCoords        data.Coords
	dropTime          time.Time
	activePickupEvent bool
}

// New constructs a Monitor for the given job and truck and loads its task
// list from the store.
func New(jobID, truckID int, cfg *config.Config, store Store, log *zap.SugaredLogger) (*Monitor, error) {
	m := &Monitor{
		cfg:          cfg,
		store:        store,
		log:          log,
		metrics:      NewMetrics(),
		jobID:        jobID,
		truckID:      truckID,
		jobStartTime: time.Now(),
	}
	if err := m.setTasks(); err != nil {
		return nil, err
	}
	return m, nil
}

// Run is the monitor's main loop: poll the location stream, process each
// sample in timestamp order, and terminate when the job's active flag is
// cleared or stopch is closed. A store error ends the worker; the job
// manager supervises restarts.
func (m *Monitor) Run(stopch <-chan bool) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	cursor := m.jobStartTime
	m.log.Infof("job monitor running for job %d on truck %d", m.jobID, m.truckID)
	for {
		select {
		case <-stopch:
			m.log.Info("stop requested, shutting down")
			return nil
		case <-ticker.C:
		}

		active, err := m.store.IsJobActive()
		if err != nil {
			return err
		}
		if !active {
			m.log.Infof("DEACTIVATED at %s", data.FormatTime(time.Now()))
			m.log.Infof("%s", m.metrics)
			return nil
		}

		samples, err := m.store.LocationsSince(cursor)
		if err != nil {
			return err
		}
		for _, sample := range samples {
			if err := m.ProcessSample(sample); err != nil {
				return err
			}
		}
		if len(samples) > 0 {
			cursor = m.currLocTime
		}
	}
}

// ProcessSample advances the state machine by one location sample. All
// observable effects of a sample are committed before the next one is
// handled.
func (m *Monitor) ProcessSample(sample *data.LocSample) error {
	if sample.Timestamp.IsZero() {
		m.log.Warnf("skipping location sample with no timestamp: %s", sample)
		return nil
	}
	m.metrics.AddSamples(1)
	m.setLocData(sample)

	if len(m.carries) == 0 {
		m.carries = append(m.carries, data.NewCarry(1, m.currLocTime, m.currLocID))
	}
	m.updateCarryTimes()
	trip := m.currentCarry().CurrentTrip()
	trip.AppendSpeed(sample.Speed)
	trip.AppendCoords(m.currLocCoords)

	edges := DetectClampEdges(m.prevClampStatus, sample.ClampStatus)
	m.prevClampStatus = sample.ClampStatus

	if edges.Pickup {
		if err := m.handlePickupSignal(); err != nil {
			return err
		}
	}
	if edges.Drop {
		if err := m.handleDropSignal(); err != nil {
			return err
		}
	}

	if m.pickupArmed && m.outside(m.cfg.PickupCheckDistanceTrigger, m.pickupCoords) {
		if err := m.checkPickup(); err != nil {
			return err
		}
	}
	if m.dropArmed && m.outside(m.cfg.DropCheckDistance, m.dropCoords) {
		m.dropArmed = false
		if err := m.runDropValidation(); err != nil {
			return err
		}
	}
	if m.activePickupEvent && m.outside(m.cfg.PickupCheckDistanceTrigger, m.pickupCoords) {
		m.activePickupEvent = false
		if err := m.store.CancelAlertsByType(data.AlertClampsClosedEvent); err != nil {
			return err
		}
	}
	return nil
}

// handlePickupSignal reacts to a clamps-open falling edge: remember the
// pickup, arm the distance gate, and raise or clear clamp notifications.
func (m *Monitor) handlePickupSignal() error {
	m.log.Infof("- PICKUP @ %d at %s", m.currLocID, m.currLocCoords)
	if !m.clampCheckEnabled() {
		return nil
	}
	m.metrics.AddPickups(1)
	m.recordPickup(m.currLocID)

	warning := data.AlertClampsClosedWarning
	if m.inCorrectOrigins(m.currLocID) {
		warning = data.AlertClampsClosedEvent
	}
	if m.hasActiveTasks() && !m.inCorrectDests(m.currLocID) {
		if err := m.createAlert(warning, m.currLocID, nil); err != nil {
			return err
		}
	}

	m.log.Info("initializing pickup distance check")
	m.pickupArmed = true
	m.pickupCoords = m.currLocCoords
	m.pickupTime = m.currLocTime

	if m.inCorrectOrigins(m.currLocID) {
		// A correct origin starts a new trip and absolves earlier
		// wrong-location clamp warnings.
		m.activePickupEvent = true
		if err := m.store.CancelAlertsByType(data.AlertClampsClosedWarning); err != nil {
			return err
		}
		m.finalizeTrip(m.currLocID, m.currLocTime, false)
	}
	return nil
}

// handleDropSignal reacts to a clamps-closed rising edge: flush any pending
// pickup, then arm the drop distance gate. Ignored while a drop validation
// is already pending.
func (m *Monitor) handleDropSignal() error {
	m.log.Infof("- DROP @ %d at %s", m.currLocID, m.currLocCoords)
	if !m.clampCheckEnabled() || m.dropArmed {
		return nil
	}
	m.metrics.AddDrops(1)

	if err := m.checkPickup(); err != nil {
		return err
	}

	m.dropHistory = append(m.dropHistory, m.currLocID)
	m.log.Info("initializing drop distance check")
	m.dropArmed = true
	m.dropCoords = m.currLocCoords
	m.dropTime = m.currLocTime

	noe, err := m.noeDropActive(m.currLocID)
	if err != nil {
		return err
	}
	if m.inCorrectDests(m.currLocID) || noe {
		if err := m.store.CancelAlertsByType(data.AlertClampsClosedWarning); err != nil {
			return err
		}
	}
	return nil
}

// runDropValidation fires once the truck has left the drop circle: wait out
// the RFID window, collect the sensed items and validate them.
func (m *Monitor) runDropValidation() error {
	m.log.Infof("retrieving data for drop at %s", data.FormatTime(m.dropTime))
	if err := m.store.WaitForRFID(m.currLocTime); err != nil {
		return err
	}
	windowStart := m.dropTime.Add(-secondsDur(m.cfg.DropPreSeconds))
	sensed, err := m.store.ItemsDetected(windowStart, m.currLocTime)
	if err != nil {
		return err
	}
	return m.checkDrop(m.dropHistory[len(m.dropHistory)-1], sensed)
}

// recordPickup is the single append site for the pickup history; the
// scenario driver goes through it too, so drop filtering never
// double-counts a location.
func (m *Monitor) recordPickup(locID int) {
	m.pickupHistory = append(m.pickupHistory, locID)
}

// noeDropActive reports whether locID is the NOE sink with an open
// cannot-place or damaged-item situation, which temporarily makes the sink
// an admissible destination.
func (m *Monitor) noeDropActive(locID int) (bool, error) {
	if locID != m.cfg.NOELoc {
		return false, nil
	}
	cannotPlace, err := m.store.HasCannotPlaceAlerts()
	if err != nil {
		return false, err
	}
	if cannotPlace {
		return true, nil
	}
	return m.store.HasDamagedItemAlerts()
}

func (m *Monitor) setLocData(sample *data.LocSample) {
	m.prevLocTime = m.currLocTime
	m.currLocID = sample.LocID
	m.currLocType = sample.LocType
	m.currLocTime = sample.Timestamp
	m.currLocCoords = sample.Coords
	m.speedAccumulator = append(m.speedAccumulator, sample.Speed)
}

func (m *Monitor) setTasks() error {
	tasks, err := m.store.TasksForJob()
	if err != nil {
		return err
	}
	for _, task := range tasks {
		m.correctOrigins = append(m.correctOrigins, task.Origin)
		m.correctDests = append(m.correctDests, task.Dest)
		m.tasks = append(m.tasks, task)
	}
	m.log.Infof("tasks: %v", m.tasks)
	return nil
}

// updateCarryTimes accumulates stow/dock dwell on the open carry based on
// the current location type.
func (m *Monitor) updateCarryTimes() {
	if m.prevLocTime.IsZero() {
		return
	}
	switch m.currLocType {
	case data.LocTypeStow:
		m.currentCarry().AddStowTime(m.prevLocTime, m.currLocTime)
	case data.LocTypeDock, data.LocTypeDockOS:
		m.currentCarry().AddDockTime(m.prevLocTime, m.currLocTime)
	}
}

// clampCheckEnabled excludes aisles and the charging area from pickup and
// drop checks; clamp edges there are maneuvering noise.
func (m *Monitor) clampCheckEnabled() bool {
	return m.currLocType != data.LocTypeAisle && m.currLocType != data.LocTypeCharging
}

// outside reports whether the truck has moved more than threshold meters
// from the reference position.
func (m *Monitor) outside(threshold float64, ref data.Coords) bool {
	return data.Distance(m.currLocCoords, ref) > threshold
}

func (m *Monitor) currentCarry() *data.Carry {
	if len(m.carries) == 0 {
		return nil
	}
	return m.carries[len(m.carries)-1]
}

func (m *Monitor) hasActiveTasks() bool {
	for _, task := range m.tasks {
		if !task.Complete {
			return true
		}
	}
	return false
}

func (m *Monitor) inCorrectOrigins(locID int) bool {
	return containsInt(m.correctOrigins, locID)
}

func (m *Monitor) inCorrectDests(locID int) bool {
	return containsInt(m.correctDests, locID)
}

func (m *Monitor) createAlert(alertType string, locID int, items []*data.Item) error {
	if err := m.store.CreateAlert(locID, alertType, items, m.currLocTime); err != nil {
		return err
	}
	m.metrics.AddAlertsCreated(1)
	m.log.Infof("%s alert created at %d", alertType, locID)
	return nil
}

// Metrics exposes the worker's counters, for the stats dump at shutdown.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Tasks returns the monitor's task list. Test and scenario helpers only;
// the monitor owns the backing slice.
func (m *Monitor) Tasks() []*data.Task {
	return m.tasks
}

// Carries returns the carries recorded so far.
func (m *Monitor) Carries() []*data.Carry {
	return m.carries
}

func containsInt(s []int, v int) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

func secondsDur(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// logAllData dumps the job's tasks and carries when the job completes.
func (m *Monitor) logAllData() {
	m.log.Info(":::::: TASKS ::::::")
	for _, task := range m.tasks {
		m.log.Infof("%s item: %d avg speed: %.2f", task, task.ItemID, task.AvgSpeed)
	}
	m.log.Info(":::::: CARRIES ::::::")
	for _, carry := range m.carries {
		m.log.Infof("%s units: %d trips: %d distance: %.2f",
			carry, carry.UnitCount, len(carry.Trips), carry.TotalDistance)
	}
}
