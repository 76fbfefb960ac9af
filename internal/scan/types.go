// Package scan runs document scans: capture an ordered set of pages, recognize
// text on every page concurrently and return the texts in page order.
package scan

import (
	"context"
	"fmt"
)

// Page is one captured page image.
type Page struct {
	Index int
	Name  string
	Image []byte
}

// Capture is the outcome of an interactive capture. Cancelled captures carry no pages.
type Capture struct {
	Pages     []Page
	Cancelled bool
}

// Scanner is the document capture capability of the host.
type Scanner interface {
	// Available reports whether a capture can be started on this host.
	Available() bool
	// Capture acquires pages. Returning an error means the capture itself failed;
	// a user cancellation is a Capture with Cancelled set.
	Capture(ctx context.Context) (Capture, error)
}

// Recognizer extracts text from a single page.
type Recognizer interface {
	Recognize(ctx context.Context, page Page) (string, error)
}

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindScanFailed  ErrorKind = "scan_failed"
	KindBusy        ErrorKind = "busy"
)

// Error is a typed pipeline failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUnavailable = &Error{Kind: KindUnavailable}
	ErrScanFailed  = &Error{Kind: KindScanFailed}
	ErrBusy        = &Error{Kind: KindBusy}
)

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scan: %s", e.Kind)
	}
	return fmt.Sprintf("scan: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}
