package voting

import "errors"

var (
	// ErrInvalidWeights means a weight vector had a negative component
	// or did not sum to 1.0; it is rejected before persistence and the
	// prior weights remain in effect.
	ErrInvalidWeights = errors.New("weights must be non-negative and sum to 1.0")

	// ErrUnknownPreset means no weight preset exists with that name.
	ErrUnknownPreset = errors.New("unknown weight preset")

	// ErrVoteWindowClosed means the ballot arrived outside the team's
	// currently open voting window.
	ErrVoteWindowClosed = errors.New("voting is not open for this team")

	// ErrScoreOutOfRange means a component score fell outside the
	// allowed range.
	ErrScoreOutOfRange = errors.New("component scores must be between 0 and 10")

	// ErrInvalidRequest means the request decoded but is missing
	// required fields. Retrying the same payload can never succeed.
	ErrInvalidRequest = errors.New("invalid request")
)
