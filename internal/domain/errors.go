package domain

import "errors"

var (
	ErrInvalidConfig    = errors.New("invalid engine configuration")
	ErrUnsupportedInput = errors.New("unsupported input format")
)
