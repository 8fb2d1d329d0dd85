package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/pkg/dbctx"
)

// CreateUnitTest opens an inactive test for a unit. A unit holds one test;
// a second create is a conflict.
func (b *Backend) CreateUnitTest(ctx context.Context, unitID, title string) (classroom.UnitTest, error) {
	if unitID == "" {
		return classroom.UnitTest{}, mapError("backend.create_unit_test", invalid("unit_id is required"))
	}
	row := UnitTestRow{
		ID:             uuid.NewString(),
		UnitID:         unitID,
		Title:          title,
		Status:         string(classroom.TestInactive),
		JoinedStudents: jsonList([]string{}),
		Questions:      jsonList([]classroom.TestQuestion{}),
		Results:        jsonList([]classroom.StudentTestResult{}),
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return classroom.UnitTest{}, mapError("backend.create_unit_test", err)
	}
	t, err := row.toDomain()
	return t, mapError("backend.create_unit_test", err)
}

func (b *Backend) DeleteUnitTest(ctx context.Context, id string) error {
	res := b.db.WithContext(ctx).Where("id = ?", id).Delete(&UnitTestRow{})
	return mapError("backend.delete_unit_test", requireRow(res))
}

// SetTestStatus moves a test to `to` only while it is in one of `from`. The
// bool is false when the row was in another status, which callers use to
// make racing transitions (end vs. timer expiry) idempotent.
func (b *Backend) SetTestStatus(ctx context.Context, id string, from []classroom.TestStatus, to classroom.TestStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	ok, err := b.guard.UpdateByStatus(dbctx.Context{Ctx: ctx}, &UnitTestRow{}, id, allowed, map[string]any{"status": string(to)})
	return ok, mapError("backend.set_test_status", err)
}

// StartTest freezes the question list and start time of a waiting test.
func (b *Backend) StartTest(ctx context.Context, id string, questions []classroom.TestQuestion, start time.Time) (bool, error) {
	start = start.UTC()
	ok, err := b.guard.UpdateByStatus(dbctx.Context{Ctx: ctx}, &UnitTestRow{}, id,
		[]string{string(classroom.TestWaiting)},
		map[string]any{
			"status":     string(classroom.TestInProgress),
			"questions":  jsonList(questions),
			"start_time": &start,
		})
	return ok, mapError("backend.start_test", err)
}

// mergeTest is the read-merge-write primitive for the shared lists of a
// test: the row is locked, merged in memory and written back before the
// lock is released.
func (b *Backend) mergeTest(ctx context.Context, op, id string, merge func(classroom.UnitTest) (classroom.UnitTest, bool, error)) (classroom.UnitTest, error) {
	var out classroom.UnitTest
	err := b.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var row UnitTestRow
		if err := forUpdate(dbc.Tx).Where("id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		cur, err := row.toDomain()
		if err != nil {
			return err
		}
		next, changed, err := merge(cur)
		if err != nil {
			return err
		}
		out = next
		if !changed {
			return nil
		}
		return dbc.Tx.Model(&UnitTestRow{}).Where("id = ?", id).Updates(map[string]any{
			"joined_students": jsonList(next.JoinedStudents),
			"results":         jsonList(next.Results),
		}).Error
	})
	if err != nil {
		return classroom.UnitTest{}, mapError(op, err)
	}
	return out, nil
}

// JoinTest adds a student to a waiting test. Joining twice is a no-op.
func (b *Backend) JoinTest(ctx context.Context, id, studentID string) (classroom.UnitTest, error) {
	return b.mergeTest(ctx, "backend.join_test", id, func(t classroom.UnitTest) (classroom.UnitTest, bool, error) {
		return t.Join(studentID)
	})
}

// SubmitResult replaces the student's earlier result, if any, with r.
func (b *Backend) SubmitResult(ctx context.Context, id string, r classroom.StudentTestResult) (classroom.UnitTest, error) {
	return b.mergeTest(ctx, "backend.submit_result", id, func(t classroom.UnitTest) (classroom.UnitTest, bool, error) {
		if !t.AcceptsSubmissions() {
			return t, false, fmt.Errorf("%w: %s", classroom.ErrNotAccepting, t.Status)
		}
		t.Results = classroom.MergeResult(t.Results, r)
		return t, true, nil
	})
}

// GradeResult stores the teacher's grade on one student's result.
func (b *Backend) GradeResult(ctx context.Context, id, studentID string, grade float64, comment string, passed bool) (classroom.UnitTest, error) {
	return b.mergeTest(ctx, "backend.grade_result", id, func(t classroom.UnitTest) (classroom.UnitTest, bool, error) {
		next, err := t.Grade(studentID, grade, comment, passed)
		return next, err == nil, err
	})
}
