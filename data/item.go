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

import "fmt"

/*
 * Item - an inventory unit observed inside a pickup or drop RFID window.
 * Origin is the item's current location as persisted in the 'items' table
 * at the moment it was sensed. SerialLock zero means the unit is fungible
 * with other units of the same model; nonzero locks it to its identity.
 *
 * CorrectLocID is transient: the drop validator fills it in for wrong items
 * to tell the driver where the unit should have gone (or to advise returning
 * it to its origin), and it rides along into the alert row.
 */
type Item struct {
	ID           int
	Model        string
	Origin       int
	SerialLock   int
	CorrectLocID int
}

func (i *Item) String() string {
	return fmt.Sprintf("[Item-%d model: %s origin: %d lock: %d]",
		i.ID, i.Model, i.Origin, i.SerialLock)
}

// Fungible reports whether this unit may stand in for any other unit of the
// same model.
func (i *Item) Fungible() bool {
	return i.SerialLock == 0
}
