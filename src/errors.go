package main

import (
	"errors"
)

var (
	ERR_INVALID_CONFIG       error = errors.New("Invalid config")
	ERR_BAD_INPUT            error = errors.New("Can't open input")
	ERR_BAD_MODEL            error = errors.New("Can't load model")
	ERR_BAD_SINK             error = errors.New("Can't open report sink")
	ERR_STREAM_ENDED         error = errors.New("Stream ended")
	ERR_CANCELLED_BY_CONTEXT error = errors.New("Cancelled via context")
	ERR_INTERRUPTED_BY_USER  error = errors.New("Interrupted by user")
)
