package backend

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
)

var ErrProfileNotFound = errors.New("no profile for this identity")

// mapError translates storage failures into coded errors once, at the
// boundary.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded *apperr.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, apperr.ErrNotFound), errors.Is(err, ErrProfileNotFound):
		return apperr.Wrap(apperr.CodeNotFound, op, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.CodeConflict, op, err)
	case errors.Is(err, apperr.ErrInvalidArgument),
		errors.Is(err, classroom.ErrNoStudentsJoined),
		errors.Is(err, classroom.ErrNoWords),
		errors.Is(err, classroom.ErrTooFewMembers),
		errors.Is(err, classroom.ErrCreatorNotMember):
		return apperr.Wrap(apperr.CodeValidation, op, err)
	case errors.Is(err, classroom.ErrInvalidTransition), errors.Is(err, classroom.ErrNotAccepting):
		return apperr.Wrap(apperr.CodeConflict, op, err)
	case errors.Is(err, classroom.ErrNoResult):
		return apperr.Wrap(apperr.CodeNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.CodeInternal, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return apperr.Wrap(apperr.CodeConflict, op, err) // unique_violation
		case "23503":
			return apperr.Wrap(apperr.CodeValidation, op, err) // foreign_key_violation
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return apperr.Wrap(apperr.CodeConflict, op, err)
	}
	return apperr.Wrap(apperr.CodeInternal, op, err)
}
