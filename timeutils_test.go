package transitnotify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitwatch/transit-notify/store"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"07:30", 450, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"12", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := parseClock(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestWindowsContain(t *testing.T) {
	edmonton, err := time.LoadLocation("America/Edmonton")
	require.NoError(t, err)

	// 2026-01-05 is a Monday; 08:00 in Edmonton is 15:00 UTC.
	mondayMorning := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

	weekdayWindow := store.TimeWindow{
		Weekdays: []int{1, 2, 3, 4, 5},
		Start:    "07:00",
		End:      "09:00",
	}

	t.Run("empty windows always match", func(t *testing.T) {
		assert.True(t, windowsContain(mondayMorning, edmonton, nil))
	})

	t.Run("inside window", func(t *testing.T) {
		assert.True(t, windowsContain(mondayMorning, edmonton, []store.TimeWindow{weekdayWindow}))
	})

	t.Run("bounds are inclusive", func(t *testing.T) {
		start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC) // 07:00 Edmonton
		end := time.Date(2026, 1, 5, 16, 0, 59, 0, time.UTC)  // 09:00 Edmonton
		assert.True(t, windowsContain(start, edmonton, []store.TimeWindow{weekdayWindow}))
		assert.True(t, windowsContain(end, edmonton, []store.TimeWindow{weekdayWindow}))
	})

	t.Run("outside window minutes", func(t *testing.T) {
		late := time.Date(2026, 1, 5, 16, 1, 0, 0, time.UTC) // 09:01 Edmonton
		assert.False(t, windowsContain(late, edmonton, []store.TimeWindow{weekdayWindow}))
	})

	t.Run("absent weekday never matches", func(t *testing.T) {
		// 2026-01-04 is a Sunday.
		sunday := time.Date(2026, 1, 4, 15, 0, 0, 0, time.UTC)
		assert.False(t, windowsContain(sunday, edmonton, []store.TimeWindow{weekdayWindow}))
	})

	t.Run("weekday evaluated in target zone", func(t *testing.T) {
		// 05:00 UTC Saturday is still 22:00 Friday in Edmonton.
		fridayNight := time.Date(2026, 1, 10, 5, 0, 0, 0, time.UTC)
		window := store.TimeWindow{Weekdays: []int{5}, Start: "21:00", End: "23:00"}
		assert.True(t, windowsContain(fridayNight, edmonton, []store.TimeWindow{window}))
	})

	t.Run("malformed window is skipped", func(t *testing.T) {
		bad := store.TimeWindow{Weekdays: []int{1}, Start: "seven", End: "09:00"}
		assert.False(t, windowsContain(mondayMorning, edmonton, []store.TimeWindow{bad}))
		assert.True(t, windowsContain(mondayMorning, edmonton, []store.TimeWindow{bad, weekdayWindow}))
	})
}
