package meter

import "errors"

// Sentinel errors for metering operations.
var (
	// ErrSourceUnavailable is returned when a source cannot currently be tapped.
	// It is recoverable: attach again once the source is playable.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrAlreadyConnected is returned by Source.Connect when the signal is already
	// routed into an analysis graph. The engine reuses the existing routing.
	ErrAlreadyConnected = errors.New("source already connected")
	// ErrEngineDisposed is returned by any operation after Dispose.
	ErrEngineDisposed = errors.New("engine disposed")
	// ErrInvalidState is returned when an operation is not valid in the current state.
	ErrInvalidState = errors.New("invalid engine state")
	// ErrInvalidChannel is returned for a channel index outside the configured range.
	ErrInvalidChannel = errors.New("invalid channel index")
)
