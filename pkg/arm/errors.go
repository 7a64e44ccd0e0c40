package arm

import "errors"

// Sentinel errors for rejected arm commands.
var (
	// ErrInvalidSpeed is returned for a speed outside 1..100.
	ErrInvalidSpeed = errors.New("arm: speed out of range")

	// ErrInvalidAngle is returned for an angle above MaxAngle.
	ErrInvalidAngle = errors.New("arm: angle out of range")

	// ErrInvalidSide is returned for an unknown side.
	ErrInvalidSide = errors.New("arm: invalid side")
)
