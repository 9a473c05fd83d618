package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDateUsesLocationCalendar(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	instant := time.Date(2024, 1, 15, 20, 30, 0, 0, time.UTC)

	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Date(instant, time.UTC))
	require.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), Date(instant, jakarta))
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Date(instant, nil))
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(24 * time.Hour)
	require.Equal(t, start.Add(24*time.Hour), c.Now())

	c.Set(start)
	require.Equal(t, start, c.Now())
}
