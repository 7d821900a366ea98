package generation

import "errors"

// fatalError marks a structural failure: the job can never succeed, so the
// worker must fail it and ack rather than feed it back through redelivery.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal wraps an error so the worker fails the job without retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether the error must not be retried.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
