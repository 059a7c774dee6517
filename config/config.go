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

// Package config loads and validates the flat JSON configuration file shared
// by the job manager, the monitor workers and the scenario player. Every
// distance/time tuning knob is required; a missing or mistyped key aborts
// startup with a single-line reason.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultNOELoc is the geo-feature id of the "Not-OK elsewhere" sink used to
// park damaged or unplaceable inventory, overridable via 'noe_loc_id'.
const DefaultNOELoc = 79

// Config is the parsed system configuration.
type Config struct {
	PickupCheckDistanceTrigger float64 `json:"pickup_check_distance_trigger"`
	PickupCheckDistanceWindow  float64 `json:"pickup_check_distance_window"`
	PickupPostSeconds          float64 `json:"pickup_post_seconds"`
	DropCheckDistance          float64 `json:"drop_check_distance"`
	DropPreSeconds             float64 `json:"drop_pre_seconds"`
	RFIDWaitTimeout            int     `json:"rfid_wait_timeout"`
	JobManagerPort             int     `json:"job_manager_port"`
	DatabaseName               string  `json:"database_name"`
	DatabasePassword           string  `json:"database_password"`
	DatabaseUser               string  `json:"database_user"`
	DatabaseHost               string  `json:"database_host"`
	ActivateQueries            bool    `json:"activate_queries"`

	// Optional keys, defaulted when absent.
	DatabaseDriver string `json:"database_driver"`
	NOELoc         int    `json:"noe_loc_id"`
	LogsDir        string `json:"logs_dir"`
}

// requiredKeys maps each mandatory key to a predicate over the raw JSON
// value, so a wrongly typed key is reported as precisely as a missing one.
var requiredKeys = map[string]func(v interface{}) bool{
	"pickup_check_distance_trigger": isNumber,
	"pickup_check_distance_window":  isNumber,
	"pickup_post_seconds":           isNumber,
	"drop_check_distance":           isNumber,
	"drop_pre_seconds":              isNumber,
	"rfid_wait_timeout":             isInt,
	"job_manager_port":              isInt,
	"database_name":                 isString,
	"database_password":             isString,
	"database_user":                 isString,
	"database_host":                 isString,
	"activate_queries":              isBool,
}

func isNumber(v interface{}) bool {
	_, ok := v.(float64)
	return ok
}

func isInt(v interface{}) bool {
	f, ok := v.(float64)
	return ok && f == float64(int(f))
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func isBool(v interface{}) bool {
	_, ok := v.(bool)
	return ok
}

// Load reads, parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	return Parse(raw)
}

// Parse validates and decodes raw configuration bytes.
func Parse(raw []byte) (*Config, error) {
	var flat map[string]interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("invalid configuration file format: %w", err)
	}

	for key, valid := range requiredKeys {
		v, present := flat[key]
		if !present {
			return nil, fmt.Errorf("config file does not contain required parameter: %s", key)
		}
		if !valid(v) {
			return nil, fmt.Errorf("invalid value for parameter %s: %v", key, v)
		}
	}

	cfg := &Config{
		DatabaseDriver: "pgx",
		NOELoc:         DefaultNOELoc,
		LogsDir:        "logs",
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration file format: %w", err)
	}
	return cfg, nil
}
