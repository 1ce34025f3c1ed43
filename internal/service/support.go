package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/change-service/internal/repository"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = systemClock{}

// DefaultConflictRetries bounds RetryOnConflict when callers pass zero.
const DefaultConflictRetries = 3

// RetryOnConflict runs fn again while it fails with a concurrency conflict,
// at most attempts times in total. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = DefaultConflictRetries
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !apperrors.IsCode(err, apperrors.CodeConcurrencyConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
	}
	return err
}

// changeError maps repository failures on a change request to domain errors carrying its id.
func changeError(changeRequestID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("change request", map[string]any{"change_request_id": changeRequestID})
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConcurrencyConflict(changeRequestID, err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict("change request already exists", map[string]any{"change_request_id": changeRequestID})
	}
	return apperrors.MapError(err)
}

// settingsError maps repository failures on reference data.
func settingsError(resource, id, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewDuplicateName(resource, name)
	}
	return apperrors.MapError(err)
}
