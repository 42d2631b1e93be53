package vitals

import (
	"errors"
	"fmt"
)

// InputError rejects a value that cannot be evaluated at all, such as a
// non-numeric reading or one outside the physically possible range. A sample
// carrying an InputError is never partially applied.
type InputError struct {
	Signal Signal
	Value  any
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid value for %s: %v (%s)", e.Signal, e.Value, e.Reason)
}

// IsInputError reports whether err is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
