package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotReady        = errors.New("session store not hydrated")
	ErrBusy            = errors.New("a request is already in flight for this session")
	ErrUnsupportedFile = errors.New("only PDF files are allowed")
)
