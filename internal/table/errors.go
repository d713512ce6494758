package table

import (
	"errors"
	"fmt"
)

// FormatError reports a line that cannot be decoded.
type FormatError struct {
	Path   string // file or stream name
	Line   int    // 1-based line number; 1 is the header
	Text   string // offending line as read
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s:%d: %s (line %q)", e.Path, e.Line, e.Reason, truncate(e.Text, 64))
}

// IsFormatError returns true if err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
