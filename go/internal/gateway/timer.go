package gateway

import "time"

// Countdown is the locally-derived rendering of a shared deadline.
type Countdown struct {
	SecondsRemaining int     `json:"seconds_remaining"`
	PercentElapsed   float64 `json:"percent_elapsed"`
}

// DeriveCountdown converts an absolute deadline into a countdown as of
// now. Only the deadline is synchronized between viewers; every client
// runs this on its own 1s tick instead of the server pushing per-second
// updates, so viewers disagree at most by their clock skew. A countdown
// that reaches zero freezes the display; it never advances the phase —
// closing voting is always an explicit operator action, which avoids
// every viewer racing to close the window on its own.
func DeriveCountdown(closesAt time.Time, total time.Duration, now time.Time) Countdown {
	if total <= 0 {
		return Countdown{}
	}

	remaining := closesAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}

	elapsed := total - remaining
	return Countdown{
		SecondsRemaining: int(remaining.Seconds()),
		PercentElapsed:   100 * elapsed.Seconds() / total.Seconds(),
	}
}
