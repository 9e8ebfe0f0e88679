package progress

import (
	"errors"
	"fmt"
)

// ErrUserNotFound username does not resolve in the user directory
var ErrUserNotFound = errors.New("user not found")

// ErrTransientStore persistence or directory unavailable, the caller may retry
var ErrTransientStore = errors.New("progress store unavailable")

// ErrInvalidCourse empty or oversized course id
var ErrInvalidCourse = errors.New("course id is required and at most 64 bytes")

func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransientStore, op, err)
}
