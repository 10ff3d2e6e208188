// ABOUTME: Translation of record store errors into application errors.
// ABOUTME: Services call AppError so callers only ever see apperr kinds.
package storage

import (
	"errors"

	"github.com/harperreed/medtrack/internal/apperr"
)

// AppError maps a store error for the record what/id into the apperr taxonomy.
// Nil stays nil and errors that are already *apperr.Error pass through.
func AppError(op, what, id string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound(op, what, id)
	case errors.Is(err, ErrAmbiguousID):
		return apperr.Validationf(op, "%s id prefix %q matches more than one record", what, id).WithContext("id", id)
	case errors.Is(err, ErrConflict):
		return apperr.Wrap(err, apperr.KindStateConflict, op, what+" was changed concurrently")
	default:
		return apperr.Internal(op, err)
	}
}
