package ir

import "errors"

var (
	ErrPath     = errors.New("bad path")
	ErrNotFound = errors.New("not found")
	ErrType     = errors.New("wrong type")
	ErrIndex    = errors.New("index out of bounds")
	ErrAttached = errors.New("node already attached")
)
