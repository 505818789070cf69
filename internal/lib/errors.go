package lib

import "fmt"

// WrapError adds a sentinel error on top of a cause, keeping both matchable
// with errors.Is.
func WrapError(outer, inner error) error {
	return fmt.Errorf("%w: %w", outer, inner)
}
