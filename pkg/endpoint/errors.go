package endpoint

import (
	"fmt"
)

// Kind categorizes an endpoint failure. The controller collapses every kind
// into the same transcript entry; the kind only shows up in logs.
type Kind string

const (
	KindEncode  Kind = "encode"
	KindNetwork Kind = "network"
	KindStatus  Kind = "status"
	KindDecode  Kind = "decode"
)

// Error is returned by Client.Complete.
type Error struct {
	Kind       Kind
	StatusCode int
	URL        string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("endpoint %s error (status %d) for %s: %v", e.Kind, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("endpoint %s error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
