package broadcast

import "errors"

var (
	// ErrUnknownEvent means no event exists for the given slug.
	ErrUnknownEvent = errors.New("unknown event slug")

	// ErrIllegalTransition means the requested control action is not
	// legal from the event's current phase. Rejected actions are not
	// written to the control log.
	ErrIllegalTransition = errors.New("illegal phase transition")

	// ErrNoEligibleTeam means random mode could not pick a team because
	// every roster team has already presented.
	ErrNoEligibleTeam = errors.New("no team left to present")

	// ErrMissingTeam means the action requires a team name and none was
	// supplied or currently presenting.
	ErrMissingTeam = errors.New("team name required")
)
