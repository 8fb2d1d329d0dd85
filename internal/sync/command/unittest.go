package command

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/realtime/feed"
)

// Test transitions other than activation are not optimistic: the store
// reflects them only once the row echo arrives.

func (s *Service) CreateTest(ctx context.Context, unitID, title string) (classroom.UnitTest, error) {
	const op = "create_test"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return classroom.UnitTest{}, err
	}
	st := s.store.State()
	unit, ok := st.Unit(unitID)
	if !ok {
		return classroom.UnitTest{}, unknown(op, "unit", unitID)
	}
	if _, exists := st.TestForUnit(unitID); exists {
		return classroom.UnitTest{}, apperr.Wrap(apperr.CodeConflict, op, ErrTestExists)
	}
	if title == "" {
		title = fmt.Sprintf("%s test", unit.Title)
	}
	t, err := s.remote.CreateUnitTest(ctx, unitID, title)
	return t, s.remoteOnly(op, err)
}

func (s *Service) DeleteTest(ctx context.Context, testID string) error {
	const op = "delete_test"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	return s.remoteOnly(op, s.remote.DeleteUnitTest(ctx, testID))
}

// JoinTest adds the signed-in student through the backend's merge write.
func (s *Service) JoinTest(ctx context.Context, testID string) error {
	const op = "join_test"
	me, err := s.me(op, classroom.RoleStudent)
	if err != nil {
		return err
	}
	if _, err := s.remote.JoinTest(ctx, testID, me.ID); err != nil {
		return s.remoteOnly(op, err)
	}
	s.hint(ctx, feed.HintStudentJoin, testID)
	return s.remoteOnly(op, nil)
}

// StartTest generates the questions from the unit's words and stamps the
// shared start time. It reads the test back first so the joined list is the
// backend's, not the store's.
func (s *Service) StartTest(ctx context.Context, testID string) (classroom.UnitTest, error) {
	const op = "start_test"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return classroom.UnitTest{}, err
	}
	fresh, err := s.remote.GetUnitTest(ctx, testID)
	if err != nil {
		return classroom.UnitTest{}, s.remoteOnly(op, err)
	}
	unit, ok := s.store.State().Unit(fresh.UnitID)
	if !ok {
		return classroom.UnitTest{}, unknown(op, "unit", fresh.UnitID)
	}
	var started classroom.UnitTest
	s.withRand(func(rng *rand.Rand) {
		started, err = fresh.Start(*unit, rng, s.now())
	})
	if err != nil {
		code := apperr.CodeValidation
		if apperr.Is(err, classroom.ErrInvalidTransition) {
			code = apperr.CodeConflict
		}
		return classroom.UnitTest{}, apperr.Wrap(code, op, err)
	}
	moved, err := s.remote.StartTest(ctx, testID, started.Questions, *started.StartTime)
	if err != nil {
		return classroom.UnitTest{}, s.remoteOnly(op, err)
	}
	if !moved {
		return classroom.UnitTest{}, s.remoteOnly(op, apperr.Wrap(apperr.CodeConflict, op, ErrStaleStatus))
	}
	return started, s.remoteOnly(op, nil)
}

// EndTest completes a running test. Ending a test that is already
// completed succeeds, so the teacher and an expiring timer can race.
func (s *Service) EndTest(ctx context.Context, testID string) error {
	const op = "end_test"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	_, err := s.complete(ctx, op, testID)
	return s.remoteOnly(op, err)
}

// ExpireTestIfDue ends the test when its shared countdown has run out at
// the current time. Any client may call it; the first write wins.
func (s *Service) ExpireTestIfDue(ctx context.Context, testID string) (bool, error) {
	const op = "expire_test"
	cur, ok := s.store.State().Test(testID)
	if !ok {
		return false, unknown(op, "test", testID)
	}
	if !cur.Expired(s.now(), s.duration) {
		return false, nil
	}
	moved, err := s.complete(ctx, op, testID)
	return moved, s.remoteOnly(op, err)
}

func (s *Service) complete(ctx context.Context, op, testID string) (bool, error) {
	moved, err := s.remote.SetTestStatus(ctx, testID,
		[]classroom.TestStatus{classroom.TestInProgress}, classroom.TestCompleted)
	if err != nil || moved {
		return moved, err
	}
	// Lost the race, or the test never started.
	fresh, err := s.remote.GetUnitTest(ctx, testID)
	if err != nil {
		return false, err
	}
	if fresh.Status == classroom.TestCompleted {
		return false, nil
	}
	return false, apperr.Wrap(apperr.CodeConflict, op,
		fmt.Errorf("%w: cannot end a %s test", classroom.ErrInvalidTransition, fresh.Status))
}

// SubmitTestResult grades the answers locally and merges the result on the
// backend. answers[i] answers question i; late submissions after completion
// are accepted.
func (s *Service) SubmitTestResult(ctx context.Context, testID string, answers []string) (classroom.StudentTestResult, error) {
	const op = "submit_test_result"
	me, err := s.me(op, classroom.RoleStudent)
	if err != nil {
		return classroom.StudentTestResult{}, err
	}
	cur, ok := s.store.State().Test(testID)
	if !ok {
		return classroom.StudentTestResult{}, unknown(op, "test", testID)
	}
	if !cur.AcceptsSubmissions() {
		return classroom.StudentTestResult{}, apperr.Wrap(apperr.CodeConflict, op,
			fmt.Errorf("%w: %s", classroom.ErrNotAccepting, cur.Status))
	}
	result := classroom.GradeSubmission(me.ID, cur.Questions, answers, s.now())
	if _, err := s.remote.SubmitResult(ctx, testID, result); err != nil {
		return classroom.StudentTestResult{}, s.remoteOnly(op, err)
	}
	s.hint(ctx, feed.HintSubmission, testID)
	return result, s.remoteOnly(op, nil)
}
