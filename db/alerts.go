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

package db

import (
	"database/sql"
	"errors"
	"time"

	"github.com/locatible/jobmon/data"
)

// hasRows runs an existence query scoped to this job.
func (s *Store) hasRows(query string, args ...interface{}) (bool, error) {
	var id int
	err := s.db.Get(&id, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasActiveAlerts reports active alerts for this job, ignoring the clamp
// notification types: those are advisory and must not block job completion.
func (s *Store) HasActiveAlerts() (bool, error) {
	return s.hasRows(`
		SELECT id FROM alerts
		WHERE job_id = ? AND active = 1
		AND type != ? AND type != ?
		LIMIT 1`,
		s.jobID, data.AlertClampsClosedEvent, data.AlertClampsClosedWarning)
}

// LocHasActiveDropLocationAlerts reports an active drop_location alert at
// the given location for this job.
func (s *Store) LocHasActiveDropLocationAlerts(locID int) (bool, error) {
	return s.hasRows(`
		SELECT id FROM alerts
		WHERE job_id = ? AND active = 1 AND type = ? AND loc_id = ?
		LIMIT 1`,
		s.jobID, data.AlertDropLocation, locID)
}

// HasCannotPlaceAlerts reports an active cannot_place alert on this job.
func (s *Store) HasCannotPlaceAlerts() (bool, error) {
	return s.hasRows(`
		SELECT id FROM alerts
		WHERE job_id = ? AND active = 1 AND type = ?
		LIMIT 1`,
		s.jobID, data.AlertCannotPlace)
}

// HasDamagedItemAlerts reports an active damaged_item alert on this job.
func (s *Store) HasDamagedItemAlerts() (bool, error) {
	return s.hasRows(`
		SELECT id FROM alerts
		WHERE job_id = ? AND active = 1 AND type = ?
		LIMIT 1`,
		s.jobID, data.AlertDamagedItem)
}

// AlertsMatching returns the active alerts whose bound item shares the given
// item's model and whose location is the item's origin.
func (s *Store) AlertsMatching(item *data.Item) ([]*data.Alert, error) {
	query := s.db.Rebind(`
		SELECT a.id, a.loc_id, a.item_id, a.correct_loc_id, a.type, a.timestamp
		FROM alerts AS a
		INNER JOIN items AS i ON (a.item_id = i.id)
		WHERE a.job_id = ? AND a.active = 1 AND a.loc_id = ? AND i.model = ?
		ORDER BY a.id ASC`)
	rows, err := s.db.Query(query, s.jobID, item.Origin, item.Model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*data.Alert
	for rows.Next() {
		var (
			a          data.Alert
			itemID     sql.NullInt64
			correctLoc sql.NullInt64
			ts         string
		)
		if err := rows.Scan(&a.ID, &a.LocID, &itemID, &correctLoc, &a.Type, &ts); err != nil {
			return nil, err
		}
		a.JobID = s.jobID
		a.Active = true
		a.ItemID = int(itemID.Int64)
		a.CorrectLocID = int(correctLoc.Int64)
		if parsed, err := data.ParseTime(ts); err == nil {
			a.Timestamp = parsed
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// CreateAlert inserts one alert row per wrong item, or a single
// location-only row when items is empty. Rows become visible atomically.
func (s *Store) CreateAlert(locID int, alertType string, items []*data.Item, at time.Time) error {
	insert := `
		INSERT INTO alerts (loc_id, item_id, job_id, timestamp, type, active, correct_loc_id)
		VALUES (?, ?, ?, ?, ?, 1, ?)`
	ts := data.FormatTime(at)

	if len(items) == 0 {
		return s.exec(insert, locID, nil, s.jobID, ts, alertType, nil)
	}

	if !s.active {
		for _, item := range items {
			s.log.Infof("dry-run: %s [%d %d %d %s %s %d]",
				s.db.Rebind(insert), locID, item.ID, s.jobID, ts, alertType, item.CorrectLocID)
		}
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.log.Errorf("beginning alert transaction. %s", err)
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(s.db.Rebind(insert))
	if err != nil {
		s.log.Errorf("preparing alert transaction. %s", err)
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		var correctLoc interface{}
		if item.CorrectLocID != 0 {
			correctLoc = item.CorrectLocID
		}
		if _, err := stmt.Exec(locID, item.ID, s.jobID, ts, alertType, correctLoc); err != nil {
			s.log.Errorf("executing alert transaction. %s", err)
			return err
		}
	}
	return tx.Commit()
}

// CancelAlert deactivates one alert by id. Cancelling an already cancelled
// alert is a no-op.
func (s *Store) CancelAlert(alertID int) error {
	return s.exec(`UPDATE alerts SET active = 0 WHERE job_id = ? AND id = ?`,
		s.jobID, alertID)
}

// CancelAlertsByType deactivates all active alerts of one type for this job.
func (s *Store) CancelAlertsByType(alertType string) error {
	return s.exec(`UPDATE alerts SET active = 0 WHERE job_id = ? AND type = ?`,
		s.jobID, alertType)
}

// CancelAlertsByItems deactivates every alert bound to any of the items.
func (s *Store) CancelAlertsByItems(items []*data.Item) error {
	for _, item := range items {
		err := s.exec(`UPDATE alerts SET active = 0 WHERE job_id = ? AND item_id = ?`,
			s.jobID, item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// CancelAlertsByModelLoc deactivates alerts at a location whose bound item
// is of the given model.
func (s *Store) CancelAlertsByModelLoc(model string, locID int) error {
	s.log.Info("canceling model alerts")
	return s.exec(`
		UPDATE alerts SET active = 0
		WHERE job_id = ? AND loc_id = ?
		AND item_id IN (SELECT id FROM items WHERE model = ?)`,
		s.jobID, locID, model)
}

// CancelRemainingTasksAlert deactivates remaining_tasks alerts at a
// location.
func (s *Store) CancelRemainingTasksAlert(locID int) error {
	return s.exec(`
		UPDATE alerts SET active = 0
		WHERE job_id = ? AND type = ? AND loc_id = ?`,
		s.jobID, data.AlertRemainingTasks, locID)
}
