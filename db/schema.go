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

import "github.com/jmoiron/sqlx"

// Table bootstrap for the sqlite replay store and the tests. The production
// schema is managed outside this repository; these statements mirror its
// relational projection. Timestamps are stored in the canonical text layout,
// which sorts lexically.

func CreateGeoFeaturesTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS geo_features (
		id INTEGER NOT NULL PRIMARY KEY,
		type TEXT NOT NULL);`)
	return err
}

func CreateLocDataTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS loc_data (
		id INTEGER NOT NULL PRIMARY KEY,
		truck_id INTEGER NOT NULL,
		geo_feature_id INTEGER,
		x REAL, y REAL,
		timestamp TEXT,
		speed REAL,
		clamp_status INTEGER);`)
	return err
}

func CreateClampTrucksTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS clamp_trucks (
		id INTEGER NOT NULL PRIMARY KEY,
		latest_rfid_timestamp TEXT);`)
	return err
}

func CreateItemsTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS items (
		id INTEGER NOT NULL PRIMARY KEY,
		item_tag TEXT NOT NULL,
		model TEXT NOT NULL,
		serial_lock INTEGER NOT NULL DEFAULT 0,
		curr_loc_id INTEGER);`)
	return err
}

func CreateDetectedItemsTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS detected_items (
		id INTEGER NOT NULL PRIMARY KEY,
		clamp_truck_id INTEGER NOT NULL,
		items_item_tag TEXT NOT NULL,
		timestamp TEXT NOT NULL);`)
	return err
}

func CreateJobsTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER NOT NULL PRIMARY KEY,
		truck_id INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL DEFAULT 0,
		start_time TEXT, finish_time TEXT,
		total_carries INTEGER, total_trips INTEGER);`)
	return err
}

func CreateJobTasksTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS job_tasks (
		id INTEGER NOT NULL PRIMARY KEY,
		job_id INTEGER NOT NULL,
		model TEXT NOT NULL,
		origin INTEGER NOT NULL,
		destination INTEGER NOT NULL,
		item_id INTEGER,
		status INTEGER NOT NULL DEFAULT 0,
		start_time TEXT, finish_time TEXT,
		avg_speed REAL);`)
	return err
}

func CreateAlertsTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER NOT NULL PRIMARY KEY,
		loc_id INTEGER NOT NULL,
		item_id INTEGER,
		job_id INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		correct_loc_id INTEGER);`)
	return err
}

func CreateCarriesTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS carries (
		id INTEGER NOT NULL PRIMARY KEY,
		job_id INTEGER NOT NULL,
		carry_number INTEGER NOT NULL,
		start_time TEXT, finish_time TEXT,
		unit_count INTEGER,
		total_trips INTEGER,
		origin INTEGER, destination INTEGER,
		stow_time INTEGER, dock_time INTEGER,
		total_distance REAL,
		avg_trip_distance REAL, avg_trip_time REAL);`)
	return err
}

func CreateCarryTripsTable(db *sqlx.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS carry_trips (
		id INTEGER NOT NULL PRIMARY KEY,
		job_id INTEGER NOT NULL,
		carry_number INTEGER NOT NULL,
		origin INTEGER, destination INTEGER,
		distance REAL, avg_speed REAL, travel_time REAL,
		start_time TEXT, finish_time TEXT);`)
	return err
}

// CreateAllTables bootstraps an empty replay database.
func CreateAllTables(db *sqlx.DB) error {
	for _, create := range []func(*sqlx.DB) error{
		CreateGeoFeaturesTable,
		CreateLocDataTable,
		CreateClampTrucksTable,
		CreateItemsTable,
		CreateDetectedItemsTable,
		CreateJobsTable,
		CreateJobTasksTable,
		CreateAlertsTable,
		CreateCarriesTable,
		CreateCarryTripsTable,
	} {
		if err := create(db); err != nil {
			return err
		}
	}
	return nil
}
