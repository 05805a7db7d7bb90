package systems

import "errors"

var (
	// ErrOutOfBounds reports an invalid grid coordinate. Fatal to the call only.
	ErrOutOfBounds = errors.New("position out of bounds")

	// ErrOccupiedOrInvalid reports a placement or move the capacity policy
	// rejects. Agents recover from it by idling for the tick.
	ErrOccupiedOrInvalid = errors.New("destination occupied or invalid")
)
