package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/locatible/jobmon/config"
	"github.com/locatible/jobmon/data"
)

// Geo-feature ids used across the scenarios.
const (
	locL1    = 11
	locL2    = 12
	locL3    = 13
	locL5    = 15
	locL7    = 17
	locL9    = 19
	locAisle = 50
)

var scenarioBase = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return scenarioBase.Add(time.Duration(seconds * float64(time.Second)))
}

func testConfig() *config.Config {
	return &config.Config{
		PickupCheckDistanceTrigger: 5,
		PickupCheckDistanceWindow:  10,
		PickupPostSeconds:          2,
		DropCheckDistance:          5,
		DropPreSeconds:             5,
		RFIDWaitTimeout:            3,
		ActivateQueries:            true,
		DatabaseDriver:             "sqlite3",
		NOELoc:                     config.DefaultNOELoc,
		LogsDir:                    "logs",
	}
}

func newTestMonitor(t *testing.T, store *fakeStore) *Monitor {
	t.Helper()
	m, err := New(1, 42, testConfig(), store, zap.NewNop().Sugar())
	require.NoError(t, err)
	return m
}

func sample(loc int, locType string, x, y float64, ts time.Time, speed float64, clamp uint8) *data.LocSample {
	return &data.LocSample{
		LocID:       loc,
		LocType:     locType,
		Coords:      data.Coords{X: x, Y: y},
		Timestamp:   ts,
		Speed:       speed,
		ClampStatus: clamp,
	}
}

func feed(t *testing.T, m *Monitor, store *fakeStore, samples []*data.LocSample) {
	t.Helper()
	store.stream = append(store.stream, samples...)
	for _, s := range samples {
		require.NoError(t, m.ProcessSample(s))
	}
}

// pickupLeg is the canonical clamp choreography at a location: clamps open
// on approach, then the falling edge as the load is lifted.
func pickupLeg(loc int, x, y float64, openAt, liftAt time.Time) []*data.LocSample {
	return []*data.LocSample{
		sample(loc, data.LocTypeStow, x, y, openAt, 0, data.ClampOpenBit),
		sample(loc, data.LocTypeStow, x, y, liftAt, 0.5, 0),
	}
}

func TestSingleTaskHappyPath(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	store.addItem(7, "A", locL1, 0)
	store.addDetection(7, at(10))
	store.addDetection(7, at(30))

	m := newTestMonitor(t, store)

	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 20, 0, at(20), 1.0, 0),
		sample(locL2, data.LocTypeStow, 100, 0, at(30), 1.0, data.ClampClosedBit),
		sample(locAisle, data.LocTypeAisle, 120, 0, at(35), 1.0, data.ClampClosedBit),
	})

	task := m.Tasks()
	require.Len(t, task, 0, "task list cleared on completion")
	require.Len(t, store.savedTasks, 1)
	saved := store.savedTasks[0]
	assert.True(t, saved.Complete)
	assert.Equal(t, 7, saved.ItemID)
	assert.Equal(t, locL2, store.items[7].loc)

	assert.True(t, store.savedJob)
	require.Len(t, store.savedCarries, 1)
	carry := store.savedCarries[0]
	assert.Equal(t, 1, carry.UnitCount)
	assert.Equal(t, locL1, carry.Origin)
	assert.Equal(t, locL2, carry.Dest)

	// Carry/trip aggregate invariants.
	require.Len(t, carry.Trips, 1)
	trip := carry.Trips[0]
	sum := 0.0
	for _, tr := range carry.Trips {
		sum += tr.Distance
	}
	assert.InDelta(t, sum, carry.TotalDistance, 1e-9)
	assert.InDelta(t, carry.TotalDistance/float64(len(carry.Trips)), carry.AvgTripDistance, 1e-9)
	assert.InDelta(t, data.DeltaSeconds(trip.StartTime, trip.FinishTime), trip.TravelTime, 1e-9)
	assert.InDelta(t, 120.0, carry.TotalDistance, 1e-9)
	assert.InDelta(t, 0.7, trip.AvgSpeed, 1e-9)

	// Job completion leaves no blocking alert active.
	active, err := store.HasActiveAlerts()
	require.NoError(t, err)
	assert.False(t, active)
}

func TestWrongDestinationRaisesDropLocationAlert(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	store.addItem(7, "A", locL1, 0)
	store.addDetection(7, at(10))
	store.addDetection(7, at(30))

	m := newTestMonitor(t, store)

	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 20, 0, at(20), 1.0, 0),
		sample(locL3, data.LocTypeStow, 200, 50, at(30), 1.0, data.ClampClosedBit),
		sample(locAisle, data.LocTypeAisle, 220, 50, at(35), 1.0, data.ClampClosedBit),
	})

	alerts := store.activeAlertsOfType(data.AlertDropLocation)
	require.Len(t, alerts, 1)
	assert.Equal(t, locL3, alerts[0].LocID)
	assert.Equal(t, 7, alerts[0].ItemID)
	assert.Equal(t, locL2, alerts[0].CorrectLocID)

	assert.False(t, m.Tasks()[0].Complete, "task stays open after a wrong drop")
	assert.False(t, store.savedJob)
}

func TestAllegedWrongSwapPreservesWork(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{
		data.NewTask(1, "A", locL1, locL2),
		data.NewTask(2, "A", locL1, locL5),
	}
	store.addItem(7, "A", locL1, 0)
	store.addItem(8, "A", locL1, 0)
	store.addDetection(7, at(10))
	store.addDetection(8, at(10))
	store.addDetection(7, at(30))
	store.addDetection(8, at(30))
	store.addDetection(7, at(45))
	store.addDetection(7, at(60))

	m := newTestMonitor(t, store)

	// Leg one: both units ride from L1 to L2. Unit 7 closes task 1; unit 8
	// becomes a wrong item pointing at L5.
	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 20, 0, at(20), 1.0, 0),
		sample(locL2, data.LocTypeStow, 100, 0, at(30), 1.0, data.ClampClosedBit),
		sample(locAisle, data.LocTypeAisle, 120, 0, at(35), 1.0, data.ClampClosedBit),
	})

	wrongAlerts := store.activeAlertsOfType(data.AlertDropItems)
	require.Len(t, wrongAlerts, 1)
	assert.Equal(t, 8, wrongAlerts[0].ItemID)
	assert.Equal(t, locL5, wrongAlerts[0].CorrectLocID)

	// Leg two: the driver moves unit 7 (already consumed by task 1) on to
	// L5. The swap rebinds task 1 to the unit left behind.
	feed(t, m, store, []*data.LocSample{
		sample(locL2, data.LocTypeStow, 100, 0, at(40), 0, data.ClampOpenBit),
		sample(locL2, data.LocTypeStow, 100, 0, at(45), 0.5, 0),
		sample(locAisle, data.LocTypeAisle, 100, 30, at(50), 1.0, 0),
		sample(locL5, data.LocTypeStow, 0, 100, at(60), 1.0, data.ClampClosedBit),
		sample(locAisle, data.LocTypeAisle, 0, 130, at(65), 1.0, data.ClampClosedBit),
	})

	require.Len(t, m.Tasks(), 0, "all tasks complete")
	var task1, task2 *data.Task
	for i := range store.savedTasks {
		saved := &store.savedTasks[i]
		switch saved.TaskID {
		case 1:
			task1 = saved
		case 2:
			task2 = saved
		}
	}
	require.NotNil(t, task1)
	require.NotNil(t, task2)
	assert.Equal(t, 8, task1.ItemID)
	assert.Equal(t, 7, task2.ItemID)
	assert.True(t, task2.Complete)

	assert.Equal(t, locL5, store.items[7].loc)
	assert.Equal(t, locL2, store.items[8].loc)

	assert.Empty(t, store.activeAlertsOfType(data.AlertDropItems), "swap cancelled the alert")
	assert.True(t, store.savedJob)
}

func TestPartialCompletionRemainingTasksAlert(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{
		data.NewTask(1, "A", locL1, locL2),
		data.NewTask(2, "B", locL1, locL2),
	}
	store.addItem(7, "A", locL1, 0)
	store.addItem(9, "B", locL1, 0)
	store.addDetection(7, at(10))
	store.addDetection(7, at(30))
	store.addDetection(9, at(50))
	store.addDetection(9, at(60))

	m := newTestMonitor(t, store)

	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 20, 0, at(20), 1.0, 0),
		sample(locL2, data.LocTypeStow, 100, 0, at(30), 1.0, data.ClampClosedBit),
		sample(locAisle, data.LocTypeAisle, 120, 0, at(35), 1.0, data.ClampClosedBit),
	})

	remaining := store.activeAlertsOfType(data.AlertRemainingTasks)
	require.Len(t, remaining, 1)
	assert.Equal(t, locL2, remaining[0].LocID)
	assert.False(t, store.savedJob)

	// Second round trip closes the other task and clears the alert.
	feed(t, m, store, []*data.LocSample{
		sample(locL1, data.LocTypeStow, 0, 0, at(45), 1.0, data.ClampOpenBit),
		sample(locL1, data.LocTypeStow, 0, 0, at(50), 0.5, 0),
		sample(locAisle, data.LocTypeAisle, 20, 0, at(55), 1.0, 0),
		sample(locL2, data.LocTypeStow, 100, 0, at(60), 1.0, data.ClampClosedBit),
		sample(locAisle, data.LocTypeAisle, 120, 0, at(65), 1.0, data.ClampClosedBit),
	})

	assert.Empty(t, store.activeAlertsOfType(data.AlertRemainingTasks))
	assert.True(t, store.savedJob)
	require.Len(t, store.savedCarries, 2)
	assert.Equal(t, 1, store.savedCarries[0].UnitCount)
	assert.Equal(t, 1, store.savedCarries[1].UnitCount)
}

func TestClampWarningAtWrongLocation(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}

	m := newTestMonitor(t, store)

	feed(t, m, store, pickupLeg(locL9, 300, 300, at(0), at(10)))

	warnings := store.activeAlertsOfType(data.AlertClampsClosedWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, locL9, warnings[0].LocID)

	// A pickup at a correct origin absolves the warning.
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 320, 300, at(20), 1.0, 0),
		sample(locL1, data.LocTypeStow, 0, 0, at(30), 1.0, data.ClampOpenBit),
		sample(locL1, data.LocTypeStow, 0, 0, at(40), 0.5, 0),
	})

	assert.Empty(t, store.activeAlertsOfType(data.AlertClampsClosedWarning))
}

func TestSerialLockedItemIsAlwaysWrong(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	store.addItem(9, "A", locL1, 1)
	store.addDetection(9, at(10))
	store.addDetection(9, at(30))

	m := newTestMonitor(t, store)

	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 20, 0, at(20), 1.0, 0),
		sample(locL2, data.LocTypeStow, 100, 0, at(30), 1.0, data.ClampClosedBit),
		sample(locAisle, data.LocTypeAisle, 120, 0, at(35), 1.0, data.ClampClosedBit),
	})

	alerts := store.activeAlertsOfType(data.AlertDropItems)
	require.Len(t, alerts, 1)
	assert.Equal(t, 9, alerts[0].ItemID)
	assert.False(t, m.Tasks()[0].Complete)
	assert.False(t, store.savedJob)
}

func TestPickupWithNoDetectionsLeavesStateUnchanged(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}

	m := newTestMonitor(t, store)
	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 20, 0, at(20), 1.0, 0),
	})

	assert.Empty(t, m.latestPickupItemIDs)
	assert.Empty(t, store.activeAlertsOfType(data.AlertDropItems))
	assert.Empty(t, store.activeAlertsOfType(data.AlertDropLocation))
}

func TestPickupBackWindowLowerBound(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	store.addItem(7, "A", locL1, 0)
	store.addDetection(7, at(10))

	m := newTestMonitor(t, store)
	// No sample lies outside the pickup window radius, so the back-window
	// bottoms out at pickup time minus 60 s.
	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 6, 0, at(20), 1.0, 0),
	})

	require.Len(t, store.itemsCalls, 1)
	assert.Equal(t, at(10).Add(-60*time.Second), store.itemsCalls[0].min)
	assert.Equal(t, at(12), store.itemsCalls[0].max)
}

func TestDropIgnoresItemsFromOutsidePickupHistory(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	store.addItem(33, "A", locL7, 0)

	m := newTestMonitor(t, store)
	items, err := store.ItemsByID([]int{33})
	require.NoError(t, err)
	require.NoError(t, m.checkDrop(locL2, items))

	assert.Empty(t, store.activeAlerts())
	assert.False(t, m.Tasks()[0].Complete)
}

func TestReplayIsDeterministic(t *testing.T) {
	run := func() ([]*data.Alert, []*data.Carry, *fakeStore) {
		store := newFakeStore()
		store.tasks = []*data.Task{
			data.NewTask(1, "A", locL1, locL2),
			data.NewTask(2, "B", locL1, locL3),
		}
		store.addItem(7, "A", locL1, 0)
		store.addItem(9, "B", locL1, 0)
		m := newTestMonitor(t, store)

		m.SimulatePickup(locL1, []int{7, 9}, at(10))
		require.NoError(t, m.SimulateDrop(locL2, []int{7, 9}, at(30)))
		return store.alerts, m.Carries(), store
	}

	alerts1, carries1, _ := run()
	alerts2, carries2, _ := run()

	require.Equal(t, len(alerts1), len(alerts2))
	for i := range alerts1 {
		assert.Equal(t, alerts1[i].Type, alerts2[i].Type)
		assert.Equal(t, alerts1[i].LocID, alerts2[i].LocID)
		assert.Equal(t, alerts1[i].ItemID, alerts2[i].ItemID)
		assert.Equal(t, alerts1[i].CorrectLocID, alerts2[i].CorrectLocID)
		assert.Equal(t, alerts1[i].Active, alerts2[i].Active)
	}
	require.Equal(t, len(carries1), len(carries2))
	for i := range carries1 {
		assert.Equal(t, carries1[i].UnitCount, carries2[i].UnitCount)
		assert.Equal(t, carries1[i].Origin, carries2[i].Origin)
		assert.Equal(t, carries1[i].Dest, carries2[i].Dest)
		assert.Equal(t, len(carries1[i].Trips), len(carries2[i].Trips))
	}
}
