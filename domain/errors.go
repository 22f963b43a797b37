package domain

import "errors"

var (
	ErrInvalidKey      = errors.New("invalid merchant key")
	ErrNotFound        = errors.New("request not found")
	ErrAlreadyTerminal = errors.New("request already in a terminal state")
	ErrInvalidAmount   = errors.New("amount must look like 123.45")
	ErrInvalidInput    = errors.New("invalid input")
)
