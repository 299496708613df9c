package router

import "errors"

// ErrNoGesture is returned when a vision device answers without a gesture.
var ErrNoGesture = errors.New("router: no gesture recognised")
