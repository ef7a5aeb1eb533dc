package engine

import "errors"

var (
	// ErrBusy is returned when Update is called while another update is in
	// flight. The world is a single logical actor; callers must serialize.
	ErrBusy = errors.New("world is busy")
	// ErrUninitialized is returned when Update is called before Init.
	ErrUninitialized = errors.New("world not initialized")
)
