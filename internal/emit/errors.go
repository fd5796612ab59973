package emit

import (
	"errors"
	"fmt"
)

var (
	// ErrCollision indicates two artifacts resolve to the same output path
	ErrCollision = errors.New("output path collision")
	// ErrInvalidName indicates a naming template produced a path outside the output root
	ErrInvalidName = errors.New("invalid output name")
	// ErrForeignOutput indicates the output path holds files a previous build did not publish
	ErrForeignOutput = errors.New("output path was not published by rnbundle")
)

// EmitError reports an output failure. Nothing is published when it is
// returned, so the caller can fix the cause and build again.
type EmitError struct {
	Op    string
	Path  string
	Cause error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *EmitError) Unwrap() error {
	return e.Cause
}
