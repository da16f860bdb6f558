package services

import (
	"context"
	stderrors "errors"

	"github.com/ajharbinger/perfeval/internal/channel"
	"github.com/ajharbinger/perfeval/internal/editor"
	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

// WrapError converts domain and repository errors into an AppError carrying
// the operation name. AppErrors pass through unchanged.
func WrapError(err error, message, operation string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.As(err); ok {
		return appErr
	}

	if ve, ok := scoring.AsValidationError(err); ok {
		return errors.ValidationError(message, err).WithOperation(operation).WithFields(ve.Errors)
	}

	switch {
	case stderrors.Is(err, repository.ErrNotFound),
		stderrors.Is(err, editor.ErrSessionNotFound),
		stderrors.Is(err, editor.ErrNotInModel):
		return errors.NotFound(message, err).WithOperation(operation)
	case stderrors.Is(err, scoring.ErrUnscored):
		return errors.Unscored(message, err).WithOperation(operation)
	case stderrors.Is(err, editor.ErrWrongStep),
		stderrors.Is(err, editor.ErrInvalidTransition),
		stderrors.Is(err, editor.ErrClosed),
		stderrors.Is(err, editor.ErrDuplicate),
		stderrors.Is(err, channel.ErrTestInProgress):
		return errors.Conflict(message, err).WithOperation(operation)
	case stderrors.Is(err, editor.ErrUnknownIndicator),
		stderrors.Is(err, editor.ErrEvidenceRequired):
		return errors.InvalidInput(message, err).WithOperation(operation)
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return errors.Unavailable(message, err).WithOperation(operation)
	}
	return errors.DatabaseError(message, err).WithOperation(operation)
}

func invalid(message, operation string, cause error) error {
	return errors.InvalidInput(message, cause).WithOperation(operation)
}
