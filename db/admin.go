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
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/locatible/jobmon/config"
)

// Admin is the job manager's store handle: job/truck bookkeeping around
// worker lifecycles. Not bound to a single job.
type Admin struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

// OpenAdmin connects the dispatcher to the store with bounded retries.
func OpenAdmin(cfg *config.Config, log *zap.SugaredLogger) (*Admin, error) {
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
	return NewAdmin(conn, log), nil
}

func NewAdmin(conn *sqlx.DB, log *zap.SugaredLogger) *Admin {
	return &Admin{db: conn, log: log}
}

func (a *Admin) Close() error {
	return a.db.Close()
}

// TruckForJob resolves the truck a job was assigned to.
func (a *Admin) TruckForJob(jobID int) (int, error) {
	var truckID int
	query := a.db.Rebind(`SELECT truck_id FROM jobs WHERE id = ?`)
	err := a.db.Get(&truckID, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return truckID, nil
}

// HasActiveTasks reports open tasks on the truck's currently active job; a
// new job cannot start while any remain.
func (a *Admin) HasActiveTasks(truckID int) (bool, error) {
	var id int
	query := a.db.Rebind(`
		SELECT jt.id
		FROM job_tasks AS jt
		INNER JOIN jobs AS j ON (jt.job_id = j.id)
		WHERE j.active = 1 AND j.truck_id = ? AND jt.status = 0
		LIMIT 1`)
	err := a.db.Get(&id, query, truckID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeactivatePriorJobs clears the active flag of the truck's running jobs;
// their workers notice on the next tick and terminate.
func (a *Admin) DeactivatePriorJobs(truckID int) error {
	query := a.db.Rebind(`UPDATE jobs SET active = 0 WHERE truck_id = ? AND active = 1`)
	_, err := a.db.Exec(query, truckID)
	return err
}

// ActivateJob sets a job's active flag before its worker starts.
func (a *Admin) ActivateJob(jobID int) error {
	query := a.db.Rebind(`UPDATE jobs SET active = 1 WHERE id = ?`)
	_, err := a.db.Exec(query, jobID)
	return err
}
