package command

import (
	"context"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/sync/store"
)

func (s *Service) CreateUnit(ctx context.Context, in UnitInput) (classroom.Unit, error) {
	const op = "create_unit"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return classroom.Unit{}, err
	}
	if err := s.check(op, in); err != nil {
		return classroom.Unit{}, err
	}
	u, err := s.remote.CreateUnit(ctx, in.Title, in.Description, in.Icon)
	return u, s.remoteOnly(op, err)
}

// DeleteUnit removes a unit with its rounds, words, progress and test. The
// store drops them as the delete echoes arrive.
func (s *Service) DeleteUnit(ctx context.Context, unitID string) error {
	const op = "delete_unit"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	if _, ok := s.store.State().Unit(unitID); !ok {
		return unknown(op, "unit", unitID)
	}
	return s.remoteOnly(op, s.remote.DeleteUnit(ctx, unitID))
}

// SaveRoundProgress appends one finished attempt to the actor's record for
// the round and saves the whole record.
func (s *Service) SaveRoundProgress(ctx context.Context, in ProgressInput, answers []classroom.Answer) (classroom.RoundProgress, error) {
	const op = "save_round_progress"
	me, err := s.me(op, classroom.RoleStudent)
	if err != nil {
		return classroom.RoundProgress{}, err
	}
	if err := s.check(op, in); err != nil {
		return classroom.RoundProgress{}, err
	}
	st := s.store.State()
	if !st.IsUnlocked(in.UnitID) {
		return classroom.RoundProgress{}, unknown(op, "unlocked unit", in.UnitID)
	}
	key := classroom.ProgressKey{StudentID: me.ID, UnitID: in.UnitID, RoundID: in.RoundID}
	cur := classroom.RoundProgress{StudentID: me.ID, UnitID: in.UnitID, RoundID: in.RoundID}
	if have, ok := st.ProgressByKey(key); ok {
		cur = *have
	}
	next := cur.RecordAttempt(answers, in.Questions, s.now())
	saved, err := s.remote.SaveRoundProgress(ctx, next)
	if err != nil {
		return classroom.RoundProgress{}, s.remoteOnly(op, err)
	}
	s.store.Dispatch(store.ProgressUpserted{Record: saved})
	return saved, s.remoteOnly(op, nil)
}

// ResetStudentUnitProgress deletes every round record a student has for a
// unit. Teachers reset anyone; students only themselves.
func (s *Service) ResetStudentUnitProgress(ctx context.Context, studentID, unitID string) error {
	const op = "reset_unit_progress"
	me, err := s.me(op, "")
	if err != nil {
		return err
	}
	if me.Role != classroom.RoleTeacher && me.ID != studentID {
		return apperr.Wrap(apperr.CodeValidation, op, ErrTeacherOnly)
	}
	if err := s.remote.DeleteUnitProgress(ctx, studentID, unitID); err != nil {
		return s.remoteOnly(op, err)
	}
	s.store.Dispatch(store.UnitProgressReset{StudentID: studentID, UnitID: unitID})
	return s.remoteOnly(op, nil)
}
