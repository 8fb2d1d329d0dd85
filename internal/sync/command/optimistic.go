package command

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/platform/media"
	"github.com/yungbote/classsync/internal/realtime/feed"
	"github.com/yungbote/classsync/internal/sync/store"
)

// ToggleUnitLock flips a unit's unlocked flag.
func (s *Service) ToggleUnitLock(ctx context.Context, unitID string) error {
	const op = "toggle_unit_lock"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	cur, ok := s.store.State().Unit(unitID)
	if !ok {
		return unknown(op, "unit", unitID)
	}
	next := *cur
	next.Unlocked = !cur.Unlocked
	return s.RunOptimistic(ctx, op, store.Put{Units: []classroom.Unit{next}}, func(ctx context.Context) error {
		return s.remote.SetUnitUnlocked(ctx, unitID, next.Unlocked)
	})
}

// ActivateTest opens the waiting room and tells students to refetch.
func (s *Service) ActivateTest(ctx context.Context, testID string) error {
	const op = "activate_test"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	cur, ok := s.store.State().Test(testID)
	if !ok {
		return unknown(op, "test", testID)
	}
	next, err := cur.Activate()
	if err != nil {
		return apperr.Wrap(apperr.CodeConflict, op, err)
	}
	err = s.RunOptimistic(ctx, op, store.Put{Tests: []classroom.UnitTest{next}}, func(ctx context.Context) error {
		moved, err := s.remote.SetTestStatus(ctx, testID,
			[]classroom.TestStatus{classroom.TestInactive, classroom.TestWaiting}, classroom.TestWaiting)
		if err != nil {
			return err
		}
		if !moved {
			return ErrStaleStatus
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.hint(ctx, feed.HintTestActivated, testID)
	return nil
}

// ChangeAvatar normalizes and uploads a new picture, swaps it in locally and
// saves it on the profile. The previous object is deleted once the profile
// points at the new one.
func (s *Service) ChangeAvatar(ctx context.Context, image io.Reader) (string, error) {
	const op = "change_avatar"
	me, err := s.me(op, "")
	if err != nil {
		return "", err
	}
	if s.blobs == nil {
		return "", apperr.Wrap(apperr.CodeInternal, op, ErrNoBlobs)
	}
	png, err := media.NormalizeAvatar(image, media.AvatarSize)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeValidation, op, err)
	}
	key := fmt.Sprintf("%s/%s.png", me.ID, uuid.NewString())
	url, err := s.blobs.UploadAvatar(ctx, key, bytes.NewReader(png))
	if err != nil {
		s.metrics.IncCommand(op, "failed")
		return "", apperr.Wrap(apperr.CodeWriteFailed, op, err)
	}

	previous := me.AvatarURL
	next := me
	next.AvatarURL = url
	err = s.RunOptimistic(ctx, op, store.Put{Users: []classroom.User{next}}, func(ctx context.Context) error {
		return s.remote.UpdateProfileAvatar(ctx, me.ID, url)
	})
	if err != nil {
		s.dropBlob(ctx, url)
		return "", err
	}
	if previous != "" && previous != url {
		s.dropBlob(ctx, previous)
	}
	return url, nil
}

func (s *Service) dropBlob(ctx context.Context, url string) {
	if err := s.blobs.DeleteURL(ctx, url); err != nil {
		s.log.Debug("Blob cleanup failed", "url", url, "error", err)
	}
}

// GradeResult stores the teacher's grade, comment and verdict.
func (s *Service) GradeResult(ctx context.Context, in GradeInput) error {
	const op = "grade_result"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	if err := s.check(op, in); err != nil {
		return err
	}
	cur, ok := s.store.State().Test(in.TestID)
	if !ok {
		return unknown(op, "test", in.TestID)
	}
	next, err := cur.Grade(in.StudentID, in.Grade, in.Comment, in.Passed)
	if err != nil {
		return apperr.Wrap(apperr.CodeNotFound, op, err)
	}
	return s.RunOptimistic(ctx, op, store.Put{Tests: []classroom.UnitTest{next}}, func(ctx context.Context) error {
		_, err := s.remote.GradeResult(ctx, in.TestID, in.StudentID, in.Grade, in.Comment, in.Passed)
		return err
	})
}

// EditWord saves word fields and, when image is non-nil, a new picture.
func (s *Service) EditWord(ctx context.Context, in WordInput, image io.Reader) error {
	const op = "edit_word"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	if err := s.check(op, in); err != nil {
		return err
	}
	cur, ok := s.store.State().Word(in.WordID)
	if !ok {
		return unknown(op, "word", in.WordID)
	}
	next := cur
	next.English = in.English
	next.Translation = in.Translation
	next.Transcription = in.Transcription
	if image != nil {
		if s.blobs == nil {
			return apperr.Wrap(apperr.CodeInternal, op, ErrNoBlobs)
		}
		url, err := s.blobs.UploadLessonImage(ctx, fmt.Sprintf("words/%s/%s", cur.ID, uuid.NewString()), image)
		if err != nil {
			s.metrics.IncCommand(op, "failed")
			return apperr.Wrap(apperr.CodeWriteFailed, op, err)
		}
		next.ImageURL = url
	}
	return s.RunOptimistic(ctx, op, store.Put{Words: []classroom.Word{next}}, func(ctx context.Context) error {
		return s.remote.UpdateWord(ctx, next)
	})
}

// MarkMessagesRead adds the actor's receipt to every message in the group
// it has not read yet. Own messages are skipped.
func (s *Service) MarkMessagesRead(ctx context.Context, groupID string) (int, error) {
	const op = "mark_messages_read"
	me, err := s.me(op, "")
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	var (
		ids  []string
		next []classroom.ChatMessage
	)
	for _, m := range s.store.State().MessagesIn(groupID) {
		if m.SenderID == me.ID {
			continue
		}
		read, changed := m.MarkRead(me.ID, now)
		if !changed {
			continue
		}
		ids = append(ids, m.ID)
		next = append(next, read)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	err = s.RunOptimistic(ctx, op, store.Put{Messages: next}, func(ctx context.Context) error {
		return s.remote.MarkMessagesRead(ctx, ids, me.ID, now)
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
