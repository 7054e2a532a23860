package engine

import (
	"time"

	"bigdipper/pkg/broker"
)

// Session identifies the US equity trading session a moment falls in.
type Session string

const (
	SessionRegular    Session = "regular"
	SessionPreMarket  Session = "pre_market"
	SessionAfterHours Session = "after_hours"
	SessionClosed     Session = "closed"
)

// IsExtended reports whether the session allows only extended-hours
// orders.
func (s Session) IsExtended() bool {
	return s == SessionPreMarket || s == SessionAfterHours
}

// Tradable reports whether new orders may be submitted in this session,
// given whether extended-hours trading is enabled.
func (s Session) Tradable(extendedEnabled bool) bool {
	if s == SessionRegular {
		return true
	}
	return s.IsExtended() && extendedEnabled
}

var easternTZ = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// EST without DST awareness, still closer than UTC.
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}

// DetectSession classifies now using the broker clock for the regular
// session and Eastern wall-clock time for the extended windows
// (pre-market 04:00-09:30 ET, after-hours 16:00-20:00 ET on weekdays).
func DetectSession(clock *broker.Clock, now time.Time) Session {
	if clock != nil && clock.IsOpen {
		return SessionRegular
	}
	et := now.In(easternTZ)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return SessionClosed
	}
	minutes := et.Hour()*60 + et.Minute()
	switch {
	case minutes >= 4*60 && minutes < 9*60+30:
		return SessionPreMarket
	case minutes >= 16*60 && minutes < 20*60:
		return SessionAfterHours
	default:
		return SessionClosed
	}
}
