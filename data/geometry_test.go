package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	assert.InDelta(t, 0, Distance(Coords{}, Coords{}), 1e-9)
	assert.InDelta(t, 5, Distance(Coords{X: 0, Y: 0}, Coords{X: 3, Y: 4}), 1e-9)
	assert.InDelta(t, 5, Distance(Coords{X: 3, Y: 4}, Coords{X: 0, Y: 0}), 1e-9)
	assert.InDelta(t, 2, Distance(Coords{X: -1, Y: 7}, Coords{X: 1, Y: 7}), 1e-9)
}

func TestDeltaSeconds(t *testing.T) {
	early := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(3*time.Second + 250*time.Microsecond)
	assert.InDelta(t, 3.00025, DeltaSeconds(early, late), 1e-9)
	assert.InDelta(t, -3.00025, DeltaSeconds(late, early), 1e-9)
}

func TestTimeFormatRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.UTC)
	formatted := FormatTime(ts)
	assert.Equal(t, "2024-01-01 10:00:00.123456", formatted)

	parsed, err := ParseTime(formatted)
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))

	_, err = ParseTime("not a timestamp")
	assert.Error(t, err)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.7, Round2(0.70000000001))
	assert.Equal(t, 1.23, Round2(1.2345))
	assert.Equal(t, 1.24, Round2(1.2351))
	assert.Equal(t, 0.0, Round2(0))
}
