package service

import (
	"errors"

	"chatcore/internal/domain"
)

// storeError passes caller-visible errors (not found, validation) through
// and wraps anything else as internal.
func storeError(msg string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Internal(msg, err)
}
