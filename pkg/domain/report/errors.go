package report

import "errors"

// Domain errors.
var (
	// ErrInputNotFound indicates a required input file does not exist.
	// The whole stage aborts and no output is produced.
	ErrInputNotFound = errors.New("input file not found")

	// ErrMalformedRow indicates a row whose label blob failed to parse.
	// It is never returned from a stage; it classifies per-row skips.
	ErrMalformedRow = errors.New("malformed row")
)

// IsInputNotFound checks if the error indicates a missing input file.
func IsInputNotFound(err error) bool {
	return errors.Is(err, ErrInputNotFound)
}
