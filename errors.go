package fcneval

import "errors"

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrModelNotFound indicates the model file does not exist.
	ErrModelNotFound = errors.New("fcneval: model file not found")

	// ErrInvalidModel indicates the parameters do not fit the network graph.
	ErrInvalidModel = errors.New("fcneval: invalid model")

	// ErrCheckpoint indicates the model file could not be decoded.
	ErrCheckpoint = errors.New("fcneval: unreadable checkpoint")

	// ErrDataset indicates the evaluation dataset could not be opened.
	ErrDataset = errors.New("fcneval: dataset unavailable")
)
