package simulation

import (
	"math"
	"time"
)

// Environment is the shared physical state of one tick. Every simulated
// sensor in a tick is derived from the same Environment.
type Environment struct {
	At time.Time

	// Hour is the fractional local hour of day, 0 <= Hour < 24.
	Hour float64

	// Diurnal is sin((Hour-6)·π/12): 0 at 06:00, +1 at noon, -1 at midnight.
	Diurnal float64

	// Sun is the clamped sun elevation, Diurnal between 06:00 and 18:00 and
	// 0 otherwise.
	Sun float64

	// Active is true during waking hours (07:00 to 22:00).
	Active bool

	// RushHour is true during the morning and evening traffic peaks.
	RushHour bool
}

var rushHours = map[int]bool{8: true, 9: true, 17: true, 18: true, 19: true}

// NewEnvironment derives the environment at t.
func NewEnvironment(t time.Time) Environment {
	h := float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
	diurnal := math.Sin((h - 6) * math.Pi / 12)

	sun := 0.0
	if h >= 6 && h <= 18 {
		sun = math.Max(0, diurnal)
	}

	return Environment{
		At:       t,
		Hour:     h,
		Diurnal:  diurnal,
		Sun:      sun,
		Active:   t.Hour() >= 7 && t.Hour() <= 22,
		RushHour: rushHours[t.Hour()],
	}
}
