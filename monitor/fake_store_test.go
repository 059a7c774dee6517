package monitor

import (
	"time"

	"github.com/locatible/jobmon/data"
)

// itemRec is the fake's canonical item row; reads materialize fresh
// data.Item values from it so the store behaves like the real table.
type itemRec struct {
	model      string
	serialLock int
	loc        int
}

type detection struct {
	itemID int
	ts     time.Time
}

type itemsQuery struct {
	min, max time.Time
}

// fakeStore is an in-memory Store for driving the validator and the monitor
// loop deterministically.
type fakeStore struct {
	jobActive bool
	tasks     []*data.Task

	items      map[int]*itemRec
	detections []detection

	alerts      []*data.Alert
	nextAlertID int

	stream []*data.LocSample

	rfidWaits  []time.Time
	itemsCalls []itemsQuery

	savedTasks   []data.Task
	savedCarries []*data.Carry
	savedJob     bool
	closed       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobActive:   true,
		items:       make(map[int]*itemRec),
		nextAlertID: 1,
	}
}

func (f *fakeStore) addItem(id int, model string, loc, serialLock int) {
	f.items[id] = &itemRec{model: model, serialLock: serialLock, loc: loc}
}

func (f *fakeStore) addDetection(id int, ts time.Time) {
	f.detections = append(f.detections, detection{itemID: id, ts: ts})
}

func (f *fakeStore) materialize(id int) *data.Item {
	rec := f.items[id]
	return &data.Item{ID: id, Model: rec.model, Origin: rec.loc, SerialLock: rec.serialLock}
}

func (f *fakeStore) activeAlerts() []*data.Alert {
	var out []*data.Alert
	for _, a := range f.alerts {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeStore) activeAlertsOfType(alertType string) []*data.Alert {
	var out []*data.Alert
	for _, a := range f.activeAlerts() {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeStore) IsJobActive() (bool, error) {
	return f.jobActive, nil
}

func (f *fakeStore) TasksForJob() ([]*data.Task, error) {
	return f.tasks, nil
}

func (f *fakeStore) LocationsSince(since time.Time) ([]*data.LocSample, error) {
	var out []*data.LocSample
	for _, s := range f.stream {
		if s.Timestamp.After(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) LocSamplesBetween(min, max time.Time) ([]*data.LocSample, error) {
	var out []*data.LocSample
	for i := len(f.stream) - 1; i >= 0; i-- {
		s := f.stream[i]
		if !s.Timestamp.Before(min) && !s.Timestamp.After(max) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) WaitForRFID(target time.Time) error {
	f.rfidWaits = append(f.rfidWaits, target)
	return nil
}

func (f *fakeStore) ItemsDetected(min, max time.Time) ([]*data.Item, error) {
	f.itemsCalls = append(f.itemsCalls, itemsQuery{min: min, max: max})
	seen := make(map[int]bool)
	var out []*data.Item
	for _, d := range f.detections {
		if d.ts.Before(min) || d.ts.After(max) || seen[d.itemID] {
			continue
		}
		seen[d.itemID] = true
		out = append(out, f.materialize(d.itemID))
	}
	return out, nil
}

func (f *fakeStore) ItemsByID(ids []int) ([]*data.Item, error) {
	var out []*data.Item
	for _, id := range ids {
		if _, ok := f.items[id]; ok {
			out = append(out, f.materialize(id))
		}
	}
	return out, nil
}

func (f *fakeStore) HasActiveAlerts() (bool, error) {
	for _, a := range f.activeAlerts() {
		if a.Type != data.AlertClampsClosedEvent && a.Type != data.AlertClampsClosedWarning {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) LocHasActiveDropLocationAlerts(locID int) (bool, error) {
	for _, a := range f.activeAlertsOfType(data.AlertDropLocation) {
		if a.LocID == locID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) AlertsMatching(item *data.Item) ([]*data.Alert, error) {
	var out []*data.Alert
	for _, a := range f.activeAlerts() {
		if a.LocID != item.Origin || a.ItemID == 0 {
			continue
		}
		if rec, ok := f.items[a.ItemID]; ok && rec.model == item.Model {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) HasCannotPlaceAlerts() (bool, error) {
	return len(f.activeAlertsOfType(data.AlertCannotPlace)) > 0, nil
}

func (f *fakeStore) HasDamagedItemAlerts() (bool, error) {
	return len(f.activeAlertsOfType(data.AlertDamagedItem)) > 0, nil
}

func (f *fakeStore) CreateAlert(locID int, alertType string, items []*data.Item, at time.Time) error {
	if len(items) == 0 {
		f.alerts = append(f.alerts, &data.Alert{
			ID: f.nextAlertID, LocID: locID, Type: alertType, Active: true, Timestamp: at,
		})
		f.nextAlertID++
		return nil
	}
	for _, item := range items {
		f.alerts = append(f.alerts, &data.Alert{
			ID: f.nextAlertID, LocID: locID, ItemID: item.ID,
			CorrectLocID: item.CorrectLocID, Type: alertType, Active: true, Timestamp: at,
		})
		f.nextAlertID++
	}
	return nil
}

func (f *fakeStore) CancelAlert(alertID int) error {
	for _, a := range f.alerts {
		if a.ID == alertID {
			a.Active = false
		}
	}
	return nil
}

func (f *fakeStore) CancelAlertsByType(alertType string) error {
	for _, a := range f.alerts {
		if a.Type == alertType {
			a.Active = false
		}
	}
	return nil
}

func (f *fakeStore) CancelAlertsByItems(items []*data.Item) error {
	for _, item := range items {
		for _, a := range f.alerts {
			if a.ItemID == item.ID {
				a.Active = false
			}
		}
	}
	return nil
}

func (f *fakeStore) CancelAlertsByModelLoc(model string, locID int) error {
	for _, a := range f.alerts {
		if a.LocID != locID || a.ItemID == 0 {
			continue
		}
		if rec, ok := f.items[a.ItemID]; ok && rec.model == model {
			a.Active = false
		}
	}
	return nil
}

func (f *fakeStore) CancelRemainingTasksAlert(locID int) error {
	for _, a := range f.alerts {
		if a.Type == data.AlertRemainingTasks && a.LocID == locID {
			a.Active = false
		}
	}
	return nil
}

func (f *fakeStore) UpdateItemLocation(itemID, locID int) error {
	if rec, ok := f.items[itemID]; ok {
		rec.loc = locID
	}
	return nil
}

func (f *fakeStore) SaveTask(t *data.Task) error {
	f.savedTasks = append(f.savedTasks, *t)
	return nil
}

func (f *fakeStore) SaveJob(start, finish time.Time, carries []*data.Carry) error {
	f.savedJob = true
	return nil
}

func (f *fakeStore) SaveCarries(carries []*data.Carry) error {
	f.savedCarries = carries
	return nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}
