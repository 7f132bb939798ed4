package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound signals an unknown device or alert id. Callers surface it as a
// "not found" result rather than a failure.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a malformed or incomplete reading. The reading is
// dropped and logged; ingestion of other readings continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reading: %s %s", e.Field, e.Reason)
}

// StaleReadingError marks a reading whose timestamp fell out of the retention
// horizon before it arrived. Stale readings are dropped, not stored.
type StaleReadingError struct {
	DeviceID  string
	Timestamp time.Time
	Horizon   time.Duration
}

func (e *StaleReadingError) Error() string {
	return fmt.Sprintf("stale reading for %s: %s is older than the %s retention horizon",
		e.DeviceID, e.Timestamp.Format(time.RFC3339), e.Horizon)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStale reports whether err is a StaleReadingError.
func IsStale(err error) bool {
	var se *StaleReadingError
	return errors.As(err, &se)
}
