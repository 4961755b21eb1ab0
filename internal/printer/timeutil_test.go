package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/agentbox/internal/printer"
)

func TestTimeAgo(t *testing.T) {
	now := time.Now().UTC()

	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"1 second ago": {
			time:     now.Add(-1 * time.Second),
			expected: "1 second ago (UTC)",
		},
		"30 seconds ago": {
			time:     now.Add(-30 * time.Second),
			expected: "30 seconds ago (UTC)",
		},
		"1 minute ago": {
			time:     now.Add(-1 * time.Minute),
			expected: "1 minute ago (UTC)",
		},
		"5 hours ago": {
			time:     now.Add(-5 * time.Hour),
			expected: "5 hours ago (UTC)",
		},
		"7 days ago": {
			time:     now.Add(-7 * 24 * time.Hour),
			expected: "7 days ago (UTC)",
		},
		"future time": {
			time:     now.Add(5 * time.Minute),
			expected: "in the future (UTC)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(test.expected, printer.TimeAgo(test.time))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	assert.Equal(t, "2025-03-14 09:26:53 UTC", printer.FormatTimestamp(ts))
}

func TestDuration(t *testing.T) {
	tests := map[string]struct {
		from     time.Time
		to       time.Time
		expected string
	}{
		"Seconds are kept": {
			from:     time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			to:       time.Date(2025, 3, 14, 9, 0, 42, 0, time.UTC),
			expected: "42s",
		},

		"Sub-second noise is rounded away": {
			from:     time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			to:       time.Date(2025, 3, 14, 9, 5, 3, 499e6, time.UTC),
			expected: "5m3s",
		},

		"Hours compose": {
			from:     time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
			to:       time.Date(2025, 3, 14, 11, 30, 0, 0, time.UTC),
			expected: "2h30m0s",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.Duration(test.from, test.to))
		})
	}
}
