package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCalendar(t *testing.T) {
	c, err := ParseCalendar("10-20:1.5:Diwali, 12-25 ,03-08:2")
	require.NoError(t, err)

	ev, ok := c.Active(time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "Diwali", ev.Name)
	assert.InDelta(t, 1.5, ev.Weight, 1e-9)

	ev, ok = c.Active(time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.InDelta(t, 1.0, ev.Weight, 1e-9, "weight defaults to 1")
	assert.Equal(t, "Festival 12-25", ev.Name)

	_, ok = c.Active(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestParseCalendar_Empty(t *testing.T) {
	c, err := ParseCalendar("")
	require.NoError(t, err)

	_, ok := c.Active(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestParseCalendar_Invalid(t *testing.T) {
	for _, raw := range []string{"13-01", "10-32", "diwali", "10-20:-1", "10-20:zero"} {
		_, err := ParseCalendar(raw)
		assert.Error(t, err, "entry %q", raw)
	}
}

func TestCalendarActive_HeaviestWins(t *testing.T) {
	c, err := ParseCalendar("11-01:1:Fair,11-01:2:Major Festival")
	require.NoError(t, err)

	ev, ok := c.Active(time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "Major Festival", ev.Name)
}
