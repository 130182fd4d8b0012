package interview

import "errors"

var (
	// ErrNotFound reports a missing session, interview or round.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports a caller that does not own the interview.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidRequest reports input the service refuses to act on.
	ErrInvalidRequest = errors.New("invalid request")
)
