// SPDX-License-Identifier: MIT
package pipeline

import "errors"

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("pipeline is already running")

	// ErrMetadataUnavailable is returned by Start when the source cannot
	// report a usable sample rate and length.
	ErrMetadataUnavailable = errors.New("audio metadata unavailable")

	// ErrStreamRead wraps failures opening or reading the sample stream.
	ErrStreamRead = errors.New("sample stream read failed")

	// ErrCallback wraps errors and panics raised by the frame handler.
	ErrCallback = errors.New("frame handler failed")

	ErrInvalidConfig = errors.New("invalid pipeline config")
)
