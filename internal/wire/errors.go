// Package wire implements the satellite SBD binary frame protocol: frame
// and information-element (IE) encoding, and the MO/MT messages built
// from them. Revision 1 only.
package wire

import (
	"errors"
	"fmt"
)

// ErrUnsupportedProtocolRevision is returned when a frame's version byte
// is not the single revision this package understands.
var ErrUnsupportedProtocolRevision = errors.New("wire: unsupported protocol revision")

// FormatError wraps a decode failure that is not an I/O error: duplicate
// mandatory IEs, bad lengths, unknown status codes, bad timestamps.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("wire: format error: %s", e.Msg)
}

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err is (or wraps) a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
