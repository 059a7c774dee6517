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

package data

import (
	"fmt"
	"time"
)

/*
 * Task - one row of the 'job_tasks' table: move one unit of a model from an
 * origin geo-feature to a destination geo-feature. Identity (id, model,
 * origin, dest) is fixed at job start; progress (item binding, times, speed)
 * is mutated by the drop validator. A task is complete exactly when it has a
 * bound item and a finish time.
 */
type Task struct {
	TaskID     int
	Model      string
	Origin     int
	Dest       int
	Complete   bool
	ItemID     int
	StartTime  time.Time
	FinishTime time.Time
	AvgSpeed   float64
}

func NewTask(taskID int, model string, origin, dest int) *Task {
	return &Task{
		TaskID: taskID,
		Model:  model,
		Origin: origin,
		Dest:   dest,
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("[Task-%d model: %s from: %d to: %d fin: %t]",
		t.TaskID, t.Model, t.Origin, t.Dest, t.Complete)
}

// Bind completes this task with the item that fulfilled it.
func (t *Task) Bind(itemID int, start, finish time.Time, avgSpeed float64) {
	t.ItemID = itemID
	t.StartTime = start
	t.FinishTime = finish
	t.AvgSpeed = avgSpeed
	t.Complete = true
}
