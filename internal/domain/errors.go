package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrIllegalTransition   = errors.New("illegal state transition")
)
