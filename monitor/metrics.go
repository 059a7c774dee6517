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
	"fmt"
	"sync"
	"time"
)

// Metrics counts what a worker has seen and done. Dumped when the worker is
// deactivated.
type Metrics struct {
	sync.RWMutex
	samples         uint
	pickups         uint
	drops           uint
	alertsCreated   uint
	alertsCancelled uint
	tasksCompleted  uint
	startTime       time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) AddSamples(i uint) {
	m.Lock()
	m.samples += i
	m.Unlock()
}

func (m *Metrics) AddPickups(i uint) {
	m.Lock()
	m.pickups += i
	m.Unlock()
}

func (m *Metrics) AddDrops(i uint) {
	m.Lock()
	m.drops += i
	m.Unlock()
}

func (m *Metrics) AddAlertsCreated(i uint) {
	m.Lock()
	m.alertsCreated += i
	m.Unlock()
}

func (m *Metrics) AddAlertsCancelled(i uint) {
	m.Lock()
	m.alertsCancelled += i
	m.Unlock()
}

func (m *Metrics) AddTasksCompleted(i uint) {
	m.Lock()
	m.tasksCompleted += i
	m.Unlock()
}

func (m *Metrics) String() string {
	m.RLock()
	defer m.RUnlock()
	return fmt.Sprintf("Uptime: %v\n"+
		"Samples processed: %d\n"+
		"Pickup signals: %d\n"+
		"Drop signals: %d\n"+
		"Alerts created: %d\n"+
		"Alerts cancelled: %d\n"+
		"Tasks completed: %d\n",
		time.Since(m.startTime),
		m.samples, m.pickups, m.drops,
		m.alertsCreated, m.alertsCancelled, m.tasksCompleted)
}
