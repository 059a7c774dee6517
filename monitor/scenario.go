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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/locatible/jobmon/data"
)

// ScenarioEvent is one synthetic pickup or drop.
type ScenarioEvent struct {
	Type     string `json:"type"`
	Location int    `json:"location"`
	Items    []int  `json:"items"`
}

// Scenario is a deterministic event script for the validator, bypassing
// clamp edges and distance gates.
type Scenario struct {
	JobID           int             `json:"job_id"`
	TruckID         int             `json:"truck_id"`
	InitialLocation int             `json:"initial_location"`
	Events          []ScenarioEvent `json:"events"`
}

// LoadScenario reads and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening scenario file: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid scenario file format: %w", err)
	}
	return &s, nil
}

// ScenarioPlayer replays a scenario against a live Monitor.
type ScenarioPlayer struct {
	scenario *Scenario
	mon      *Monitor
}

func NewScenarioPlayer(scenario *Scenario, mon *Monitor) *ScenarioPlayer {
	return &ScenarioPlayer{scenario: scenario, mon: mon}
}

// Run opens the first carry at the scenario's initial location and plays the
// events in order.
func (p *ScenarioPlayer) Run() error {
	now := time.Now()
	p.mon.carries = append(p.mon.carries,
		data.NewCarry(1, now, p.scenario.InitialLocation))
	p.mon.currLocTime = now

	for _, event := range p.scenario.Events {
		switch event.Type {
		case "pickup":
			p.mon.SimulatePickup(event.Location, event.Items, time.Now())
		case "drop":
			if err := p.mon.SimulateDrop(event.Location, event.Items, time.Now()); err != nil {
				return err
			}
		default:
			p.mon.log.Infof("unrecognized event: %+v", event)
		}
	}
	return nil
}

// SimulatePickup injects a pickup directly into the validator: the location
// enters the pickup history through the same site as a clamp edge, a
// correct origin finalizes the trip, and the item ids join the latest
// pickup set without an RFID query.
func (m *Monitor) SimulatePickup(locID int, itemIDs []int, at time.Time) {
	m.log.Infof("simulating pickup at %d: %v", locID, itemIDs)
	m.currLocTime = at
	m.recordPickup(locID)
	if m.inCorrectOrigins(locID) {
		m.finalizeTrip(locID, at, false)
	}
	m.latestPickupItemIDs = append(m.latestPickupItemIDs, itemIDs...)
}

// SimulateDrop injects a drop directly into the validator, materializing
// the item records from the store.
func (m *Monitor) SimulateDrop(locID int, itemIDs []int, at time.Time) error {
	m.log.Infof("simulating drop at %d: %v", locID, itemIDs)
	m.currLocTime = at
	m.dropHistory = append(m.dropHistory, locID)
	sensed, err := m.store.ItemsByID(itemIDs)
	if err != nil {
		return err
	}
	return m.checkDrop(locID, sensed)
}
