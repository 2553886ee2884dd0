package helper

import "fmt"

// NewError wraps err with the operation that failed. The wrapped error
// stays reachable through errors.Is/errors.As.
func NewError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}
