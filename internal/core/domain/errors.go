package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound      = errors.New("ocr task not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrMalformedResponse = errors.New("malformed classifier response")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
