package epub

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContent is returned when no detection level yields a narratable chapter.
	ErrNoContent = errors.New("no narratable chapters found")

	ErrNoRootfile  = errors.New("container.xml declares no rootfile")
	ErrNoSpine     = errors.New("spine has no readable content documents")
	ErrMissingFile = errors.New("file missing from archive")
)

// ExtractionError wraps any failure to turn a source file into chapters.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
