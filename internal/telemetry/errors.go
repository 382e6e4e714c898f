package telemetry

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput    = errors.New("the file appears to be empty")
	ErrUnreadable    = errors.New("could not read file")
	ErrMissingColumn = errors.New("missing required column")
	ErrNoValidRows   = errors.New("no valid rows after cleaning")
)

// MissingColumnError names the canonical role that could not be located.
type MissingColumnError struct {
	Role string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("could not find required %s column", e.Role)
}

func (e *MissingColumnError) Is(target error) bool {
	return target == ErrMissingColumn
}
