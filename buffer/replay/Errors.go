package replay

import "errors"

// Error implements errors unique to a replay buffer
type Error struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

var errEmptyBuffer = errors.New("buffer empty")

var errInsufficientSamples = errors.New("fewer stored transitions than " +
	"requested batch size")

var errKeyMismatch = errors.New("pushed keys do not match configured keys")

var errLengthMismatch = errors.New("pushed sequences have unequal lengths")

// IsEmptyBuffer returns whether or not an error reports that a replay
// buffer is empty
func IsEmptyBuffer(err error) bool {
	return errors.Is(err, errEmptyBuffer)
}

// IsInsufficientSamples returns whether or not an error reports that
// there are too few transitions in the buffer to draw a batch
func IsInsufficientSamples(err error) bool {
	return errors.Is(err, errInsufficientSamples)
}

// IsMismatch returns whether or not an error reports a push whose
// named sequences do not match the buffer's configuration or each
// other
func IsMismatch(err error) bool {
	return errors.Is(err, errKeyMismatch) || errors.Is(err, errLengthMismatch)
}
