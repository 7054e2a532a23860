package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bigdipper/pkg/broker"
)

func TestDetectSession(t *testing.T) {
	openClock := &broker.Clock{IsOpen: true}
	closedClock := &broker.Clock{IsOpen: false}

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		clock *broker.Clock
		now   time.Time
		want  Session
	}{
		{"market open", openClock, monday.Add(16 * time.Hour), SessionRegular},
		{"pre-market 9am ET", closedClock, monday.Add(14 * time.Hour), SessionPreMarket},
		{"after-hours 5pm ET", closedClock, monday.Add(22 * time.Hour), SessionAfterHours},
		{"overnight 2am ET", closedClock, monday.Add(7 * time.Hour), SessionClosed},
		{"saturday", closedClock, time.Date(2026, 1, 3, 15, 0, 0, 0, time.UTC), SessionClosed},
		{"nil clock pre-market", nil, monday.Add(14 * time.Hour), SessionPreMarket},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectSession(tc.clock, tc.now))
		})
	}
}

func TestSessionTradable(t *testing.T) {
	assert.True(t, SessionRegular.Tradable(false))
	assert.True(t, SessionRegular.Tradable(true))
	assert.False(t, SessionPreMarket.Tradable(false))
	assert.True(t, SessionPreMarket.Tradable(true))
	assert.True(t, SessionAfterHours.Tradable(true))
	assert.False(t, SessionClosed.Tradable(true))
}

func TestSessionIsExtended(t *testing.T) {
	assert.False(t, SessionRegular.IsExtended())
	assert.True(t, SessionPreMarket.IsExtended())
	assert.True(t, SessionAfterHours.IsExtended())
	assert.False(t, SessionClosed.IsExtended())
}
