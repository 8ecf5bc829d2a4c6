package dish

import "errors"

// Domain errors for the dish adapter.
var (
	// ErrDialFailed is returned when the gRPC client cannot be created.
	ErrDialFailed = errors.New("dish: dial failed")

	// ErrUnexpectedResponse is returned when a response lacks the expected payload.
	ErrUnexpectedResponse = errors.New("dish: unexpected response")

	// ErrWrongMessage is returned when a partial update is not a dish configuration.
	ErrWrongMessage = errors.New("dish: partial update has wrong message type")
)
