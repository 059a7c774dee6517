package monitor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locatible/jobmon/data"
)

func TestRunTerminatesOnDeactivation(t *testing.T) {
	store := newFakeStore()
	store.jobActive = false
	m := newTestMonitor(t, store)

	done := make(chan error, 1)
	go func() { done <- m.Run(make(chan bool)) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not notice job deactivation")
	}
}

func TestRunTerminatesOnStop(t *testing.T) {
	store := newFakeStore()
	m := newTestMonitor(t, store)

	stopch := make(chan bool)
	done := make(chan error, 1)
	go func() { done <- m.Run(stopch) }()
	close(stopch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not honor the stop channel")
	}
}

func TestSampleWithoutTimestampIsSkipped(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	m := newTestMonitor(t, store)

	bad := sample(locL1, data.LocTypeStow, 0, 0, time.Time{}, 1.0, 0)
	require.NoError(t, m.ProcessSample(bad))
	assert.Empty(t, m.Carries(), "anomalous sample must not open a carry")
}

func TestStowAndDockTimeAccumulation(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	m := newTestMonitor(t, store)

	feed(t, m, store, []*data.LocSample{
		sample(locL1, data.LocTypeStow, 0, 0, at(0), 1.0, 0),
		sample(locL1, data.LocTypeStow, 0, 0, at(4), 1.0, 0),
		sample(locAisle, data.LocTypeAisle, 10, 0, at(6), 1.0, 0),
		sample(locL2, data.LocTypeDock, 20, 0, at(9), 1.0, 0),
		sample(locL2, data.LocTypeDockOS, 20, 0, at(15), 1.0, 0),
	})

	carry := m.Carries()[0]
	assert.InDelta(t, 4.0, carry.StowTime, 1e-9)
	assert.InDelta(t, 9.0, carry.DockTime, 1e-9)
}

func TestClampEventsIgnoredInAislesAndCharging(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	m := newTestMonitor(t, store)

	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 0, 0, at(0), 1.0, data.ClampOpenBit),
		sample(locAisle, data.LocTypeAisle, 0, 0, at(1), 1.0, 0),
		sample(locL9, data.LocTypeCharging, 5, 0, at(2), 1.0, data.ClampClosedBit),
	})

	assert.Empty(t, m.pickupHistory)
	assert.Empty(t, m.dropHistory)
	assert.False(t, m.pickupArmed)
	assert.False(t, m.dropArmed)
	assert.Empty(t, store.alerts)
}

func TestFinalizeTripRules(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	m := newTestMonitor(t, store)

	feed(t, m, store, []*data.LocSample{
		sample(locL1, data.LocTypeStow, 0, 0, at(0), 1.0, 0),
	})

	carry := m.currentCarry()
	require.Len(t, carry.Trips, 1)

	// Closing at the trip origin without closing the carry is a no-op.
	m.finalizeTrip(locL1, at(5), false)
	assert.True(t, carry.Trips[0].FinishTime.IsZero())

	// Closing elsewhere finishes the trip and opens the next leg.
	m.finalizeTrip(locL2, at(10), false)
	require.Len(t, carry.Trips, 2)
	assert.Equal(t, locL2, carry.Trips[0].Dest)
	assert.Equal(t, locL2, carry.Trips[1].Origin)

	// A carry close may end a trip at its own origin, without a follow-up.
	m.finalizeTrip(locL2, at(20), true)
	require.Len(t, carry.Trips, 2)
	assert.Equal(t, locL2, carry.Trips[1].Dest)
}

func TestBackToBackPickupsAccumulateItems(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{
		data.NewTask(1, "A", locL1, locL2),
		data.NewTask(2, "B", locL3, locL2),
	}
	store.addItem(7, "A", locL1, 0)
	store.addItem(9, "B", locL3, 0)
	store.addDetection(7, at(10))
	store.addDetection(9, at(40))

	m := newTestMonitor(t, store)

	feed(t, m, store, pickupLeg(locL1, 0, 0, at(0), at(10)))
	feed(t, m, store, []*data.LocSample{
		sample(locAisle, data.LocTypeAisle, 20, 0, at(20), 1.0, 0),
		sample(locL3, data.LocTypeStow, 200, 50, at(35), 1.0, data.ClampOpenBit),
		sample(locL3, data.LocTypeStow, 200, 50, at(40), 0.5, 0),
		sample(locAisle, data.LocTypeAisle, 220, 50, at(45), 1.0, 0),
	})

	assert.Equal(t, []int{7, 9}, m.latestPickupItemIDs)
}

func TestScenarioPlayerHappyPath(t *testing.T) {
	store := newFakeStore()
	store.tasks = []*data.Task{data.NewTask(1, "A", locL1, locL2)}
	store.addItem(7, "A", locL1, 0)

	m := newTestMonitor(t, store)
	player := NewScenarioPlayer(&Scenario{
		JobID:           1,
		TruckID:         42,
		InitialLocation: locL1,
		Events: []ScenarioEvent{
			{Type: "pickup", Location: locL1, Items: []int{7}},
			{Type: "drop", Location: locL2, Items: []int{7}},
		},
	}, m)

	require.NoError(t, player.Run())

	require.Len(t, store.savedTasks, 1)
	assert.True(t, store.savedTasks[0].Complete)
	assert.Equal(t, 7, store.savedTasks[0].ItemID)
	assert.Equal(t, locL2, store.items[7].loc)
	assert.True(t, store.savedJob)
}

func writeFile(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestLoadScenarioFile(t *testing.T) {
	path := t.TempDir() + "/scenario.json"
	raw := `{
		"job_id": 3,
		"truck_id": 8,
		"initial_location": 11,
		"events": [
			{"type": "pickup", "location": 11, "items": [7, 8]},
			{"type": "drop", "location": 12, "items": [7]}
		]
	}`
	require.NoError(t, writeFile(t, path, raw))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.JobID)
	assert.Equal(t, 8, s.TruckID)
	assert.Equal(t, 11, s.InitialLocation)
	require.Len(t, s.Events, 2)
	assert.Equal(t, []int{7, 8}, s.Events[0].Items)

	_, err = LoadScenario(t.TempDir() + "/missing.json")
	assert.Error(t, err)
}
