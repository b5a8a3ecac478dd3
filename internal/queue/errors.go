package queue

import "errors"

// ErrClosed is returned when pushing to or popping from a closed queue.
var ErrClosed = errors.New("queue closed")
