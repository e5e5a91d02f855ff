package model

import "errors"

var (
	ErrInvalidEvent     = errors.New("invalid event")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrUnknownChannel   = errors.New("unknown channel")
)
