package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedPolicy(days int) Policy {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.Local)
	return Policy{WindowDays: days, Now: func() time.Time { return now }}
}

func TestCutoff(t *testing.T) {
	p := fixedPolicy(5)
	assert.Equal(t, "2025-03-05", p.Cutoff())
	assert.Equal(t, "2025-03-10", p.Today())

	// Month boundary.
	assert.Equal(t, "2025-02-28", fixedPolicy(10).Cutoff())
}

func TestWindowClassification(t *testing.T) {
	p := fixedPolicy(5)

	tests := []struct {
		name     string
		inWindow bool
		expired  bool
	}{
		{"2025-02-28-abcd1234.md", false, true},
		{"2025-03-04-abcd1234.md", false, true},
		{"2025-03-05-abcd1234.md", true, false},
		{"2025-03-06-abcd1234.md", true, false},
		{"2025-03-10-abcd1234.md", true, false},
		{"notes.md", false, false},
		{"2025-13-01-bad.md", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.inWindow, p.InWindow(tt.name))
			assert.Equal(t, tt.expired, p.Expired(tt.name))
		})
	}
}

func TestNonPositiveWindowUsesDefault(t *testing.T) {
	p := fixedPolicy(0)
	assert.Equal(t, fixedPolicy(DefaultWindowDays).Cutoff(), p.Cutoff())
}

func TestDateOf(t *testing.T) {
	d, ok := DateOf("2024-11-02-session.md")
	assert.True(t, ok)
	assert.Equal(t, "2024-11-02", d)

	_, ok = DateOf("short")
	assert.False(t, ok)
}
