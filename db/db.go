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

// Package db implements the monitor's data-access interface against a SQL
// store. The production driver is pgx; the sqlite3 driver serves offline
// replay and the package tests. All queries are parameterized and written
// with '?' bindvars, rebound per driver.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/locatible/jobmon/config"
	"github.com/locatible/jobmon/data"
)

// connectAttempts bounds startup connection retries; a store that stays
// unreachable is the job manager's problem, not the worker's.
const connectAttempts = 5

var errRFIDLagging = errors.New("rfid data not yet available")

// Store is the SQL-backed data-access handle, bound to one job and truck
// for its lifetime. When the configuration disables queries, every mutating
// call logs its intent and writes nothing.
type Store struct {
	db          *sqlx.DB
	log         *zap.SugaredLogger
	jobID       int
	truckID     int
	rfidTimeout int
	active      bool
}

// DSN builds the driver-appropriate connection string.
func DSN(cfg *config.Config) string {
	if cfg.DatabaseDriver == "sqlite3" {
		return cfg.DatabaseName
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		cfg.DatabaseUser, cfg.DatabasePassword, cfg.DatabaseHost, cfg.DatabaseName)
}

// Open connects to the configured store with bounded retries and returns a
// handle bound to the given job and truck.
func Open(cfg *config.Config, jobID, truckID int, log *zap.SugaredLogger) (*Store, error) {
	conn, err := sqlx.Open(cfg.DatabaseDriver, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	err = retry.Do(
		conn.Ping,
		retry.Attempts(connectAttempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return NewStore(conn, cfg, jobID, truckID, log), nil
}

// NewStore wraps an existing connection; the scenario player and the tests
// hand in sqlite connections directly.
func NewStore(conn *sqlx.DB, cfg *config.Config, jobID, truckID int, log *zap.SugaredLogger) *Store {
	return &Store{
		db:          conn,
		log:         log,
		jobID:       jobID,
		truckID:     truckID,
		rfidTimeout: cfg.RFIDWaitTimeout,
		active:      cfg.ActivateQueries,
	}
}

// DB exposes the underlying connection for schema setup.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// exec runs a mutating statement, or logs it when queries are deactivated.
func (s *Store) exec(query string, args ...interface{}) error {
	query = s.db.Rebind(query)
	if !s.active {
		s.log.Infof("dry-run: %s %v", query, args)
		return nil
	}
	_, err := s.db.Exec(query, args...)
	return err
}

// IsJobActive reads the job's active flag. A missing job row counts as
// inactive, which terminates the worker.
func (s *Store) IsJobActive() (bool, error) {
	var active int
	query := s.db.Rebind(`SELECT active FROM jobs WHERE id = ?`)
	err := s.db.Get(&active, query, s.jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active == 1, nil
}

// TasksForJob fetches the job's task list.
func (s *Store) TasksForJob() ([]*data.Task, error) {
	query := s.db.Rebind(`
		SELECT id, model, origin, destination
		FROM job_tasks
		WHERE job_id = ?
		ORDER BY id ASC`)
	rows, err := s.db.Query(query, s.jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*data.Task
	for rows.Next() {
		var (
			id, origin, dest int
			model            string
		)
		if err := rows.Scan(&id, &model, &origin, &dest); err != nil {
			return nil, err
		}
		tasks = append(tasks, data.NewTask(id, model, origin, dest))
	}
	return tasks, rows.Err()
}

/*
 * Location-sample rows join 'loc_data' with 'geo_features' for the feature
 * type. Every field is scanned through a Null wrapper: rows with missing
 * values or unparseable timestamps are logged and skipped rather than fed
 * to the state machine.
 */
type locRow struct {
	GeoFeatureID sql.NullInt64   `db:"geo_feature_id"`
	X            sql.NullFloat64 `db:"x"`
	Y            sql.NullFloat64 `db:"y"`
	Timestamp    sql.NullString  `db:"timestamp"`
	Speed        sql.NullFloat64 `db:"speed"`
	ClampStatus  sql.NullInt64   `db:"clamp_status"`
	Type         sql.NullString  `db:"type"`
}

func (s *Store) scanLocSamples(query string, args ...interface{}) ([]*data.LocSample, error) {
	rows, err := s.db.Queryx(s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*data.LocSample
	for rows.Next() {
		var r locRow
		if err := rows.StructScan(&r); err != nil {
			return nil, err
		}
		if !r.GeoFeatureID.Valid || !r.X.Valid || !r.Y.Valid ||
			!r.Timestamp.Valid || !r.Speed.Valid || !r.ClampStatus.Valid || !r.Type.Valid {
			s.log.Warnf("skipping incomplete location sample: %+v", r)
			continue
		}
		ts, err := data.ParseTime(r.Timestamp.String)
		if err != nil {
			s.log.Warnf("skipping location sample with bad timestamp %q: %s", r.Timestamp.String, err)
			continue
		}
		samples = append(samples, &data.LocSample{
			LocID:       int(r.GeoFeatureID.Int64),
			LocType:     r.Type.String,
			Coords:      data.Coords{X: r.X.Float64, Y: r.Y.Float64},
			Timestamp:   ts,
			Speed:       r.Speed.Float64,
			ClampStatus: uint8(r.ClampStatus.Int64),
		})
	}
	return samples, rows.Err()
}

// LocationsSince returns this truck's samples newer than the cursor, oldest
// first.
func (s *Store) LocationsSince(since time.Time) ([]*data.LocSample, error) {
	return s.scanLocSamples(`
		SELECT ld.geo_feature_id, ld.x, ld.y, ld.timestamp, ld.speed, ld.clamp_status, gf.type
		FROM loc_data AS ld
		INNER JOIN geo_features AS gf ON (ld.geo_feature_id = gf.id)
		WHERE ld.truck_id = ? AND ld.timestamp > ?
		ORDER BY ld.timestamp ASC`,
		s.truckID, data.FormatTime(since))
}

// LocSamplesBetween returns this truck's samples in [min, max], newest
// first, for the pickup back-window scan.
func (s *Store) LocSamplesBetween(min, max time.Time) ([]*data.LocSample, error) {
	return s.scanLocSamples(`
		SELECT ld.geo_feature_id, ld.x, ld.y, ld.timestamp, ld.speed, ld.clamp_status, gf.type
		FROM loc_data AS ld
		INNER JOIN geo_features AS gf ON (ld.geo_feature_id = gf.id)
		WHERE ld.truck_id = ? AND ld.timestamp >= ? AND ld.timestamp <= ?
		ORDER BY ld.timestamp DESC`,
		s.truckID, data.FormatTime(min), data.FormatTime(max))
}

// WaitForRFID polls the truck's latest-RFID watermark at 1 Hz until it
// reaches target or the configured timeout elapses. Timing out is a normal
// outcome: validation proceeds with whatever was detected.
func (s *Store) WaitForRFID(target time.Time) error {
	if s.rfidTimeout <= 0 {
		return nil
	}
	query := s.db.Rebind(`SELECT latest_rfid_timestamp FROM clamp_trucks WHERE id = ?`)
	err := retry.Do(
		func() error {
			var latest sql.NullString
			err := s.db.Get(&latest, query, s.truckID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if !latest.Valid {
				return errRFIDLagging
			}
			ts, perr := data.ParseTime(latest.String)
			if perr != nil {
				s.log.Warnf("unparseable RFID watermark %q: %s", latest.String, perr)
				return errRFIDLagging
			}
			s.log.Infof("latest RFID timestamp is %s", latest.String)
			if ts.Before(target) {
				return errRFIDLagging
			}
			return nil
		},
		retry.Attempts(uint(s.rfidTimeout)),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if errors.Is(err, errRFIDLagging) {
		return nil
	}
	return err
}

// ItemsDetected returns the items this truck's reader saw in [min, max],
// de-duplicated by item id.
func (s *Store) ItemsDetected(min, max time.Time) ([]*data.Item, error) {
	query := s.db.Rebind(`
		SELECT DISTINCT i.id, i.model, i.curr_loc_id, i.serial_lock
		FROM detected_items AS di
		INNER JOIN items AS i ON (di.items_item_tag = i.item_tag)
		WHERE di.clamp_truck_id = ? AND di.timestamp >= ? AND di.timestamp <= ?`)
	return s.scanItems(query, s.truckID, data.FormatTime(min), data.FormatTime(max))
}

// ItemsByID materializes item records for the scenario driver.
func (s *Store) ItemsByID(ids []int) ([]*data.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT i.id, i.model, i.curr_loc_id, i.serial_lock
		FROM items AS i
		WHERE i.id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	return s.scanItems(s.db.Rebind(query), args...)
}

func (s *Store) scanItems(query string, args ...interface{}) ([]*data.Item, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*data.Item
	for rows.Next() {
		item := &data.Item{}
		if err := rows.Scan(&item.ID, &item.Model, &item.Origin, &item.SerialLock); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemLocation moves an item to its new current location.
func (s *Store) UpdateItemLocation(itemID, locID int) error {
	return s.exec(`UPDATE items SET curr_loc_id = ? WHERE id = ?`, locID, itemID)
}

// SaveTask persists a completed task binding.
func (s *Store) SaveTask(t *data.Task) error {
	return s.exec(`
		UPDATE job_tasks
		SET item_id = ?, status = 1, start_time = ?, finish_time = ?, avg_speed = ?
		WHERE id = ?`,
		t.ItemID, data.FormatTime(t.StartTime), data.FormatTime(t.FinishTime),
		t.AvgSpeed, t.TaskID)
}

// SaveJob marks the job finished and records its totals.
func (s *Store) SaveJob(start, finish time.Time, carries []*data.Carry) error {
	tripCount := 0
	for _, carry := range carries {
		tripCount += len(carry.Trips)
	}
	return s.exec(`
		UPDATE jobs
		SET start_time = ?, finish_time = ?, status = 1, total_carries = ?, total_trips = ?
		WHERE id = ?`,
		data.FormatTime(start), data.FormatTime(finish), len(carries), tripCount, s.jobID)
}

// SaveCarries inserts the job's carries and their trips in one transaction.
func (s *Store) SaveCarries(carries []*data.Carry) error {
	carryStmt := s.db.Rebind(`
		INSERT INTO carries (job_id, carry_number, start_time, finish_time, unit_count,
			total_trips, origin, destination, stow_time, dock_time, total_distance,
			avg_trip_distance, avg_trip_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	tripStmt := s.db.Rebind(`
		INSERT INTO carry_trips (job_id, carry_number, origin, destination, distance,
			avg_speed, travel_time, start_time, finish_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	if !s.active {
		for _, carry := range carries {
			s.log.Infof("dry-run: %s %v", carryStmt, carry)
			for _, trip := range carry.Trips {
				s.log.Infof("dry-run: %s %v", tripStmt, trip)
			}
		}
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.log.Errorf("beginning carries transaction. %s", err)
		return err
	}
	defer tx.Rollback()

	carryIns, err := tx.Prepare(carryStmt)
	if err != nil {
		s.log.Errorf("preparing carries transaction. %s", err)
		return err
	}
	defer carryIns.Close()
	tripIns, err := tx.Prepare(tripStmt)
	if err != nil {
		s.log.Errorf("preparing carry trips transaction. %s", err)
		return err
	}
	defer tripIns.Close()

	for _, carry := range carries {
		_, err = carryIns.Exec(s.jobID, carry.CarryNum,
			data.FormatTime(carry.StartTime), data.FormatTime(carry.FinishTime),
			carry.UnitCount, len(carry.Trips), carry.Origin, carry.Dest,
			int(carry.StowTime), int(carry.DockTime), carry.TotalDistance,
			carry.AvgTripDistance, carry.AvgTripTime)
		if err != nil {
			s.log.Errorf("executing carries transaction. %s", err)
			return err
		}
		for _, trip := range carry.Trips {
			_, err = tripIns.Exec(s.jobID, trip.CarryNum, trip.Origin, trip.Dest,
				trip.Distance, trip.AvgSpeed, trip.TravelTime,
				data.FormatTime(trip.StartTime), data.FormatTime(trip.FinishTime))
			if err != nil {
				s.log.Errorf("executing carry trips transaction. %s", err)
				return err
			}
		}
	}
	return tx.Commit()
}
