package backend

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
)

func testBackend(t *testing.T) *Backend {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, InstallChangeFeed(db, "row_changes"))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(db, nil)
}

func seedUnit(t *testing.T, b *Backend) classroom.Unit {
	t.Helper()
	ctx := context.Background()
	u, err := b.CreateUnit(ctx, "Animals", "first unit", "🐾")
	require.NoError(t, err)
	r, err := b.CreateRound(ctx, u.ID, "Pets")
	require.NoError(t, err)
	for _, w := range []string{"cat", "dog"} {
		_, err := b.CreateWord(ctx, classroom.Word{RoundID: r.ID, English: w, Translation: w + "-ru"})
		require.NoError(t, err)
	}
	full, err := b.GetUnit(ctx, u.ID)
	require.NoError(t, err)
	return full
}

func TestUnitsNestContent(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	first := seedUnit(t, b)
	second, err := b.CreateUnit(ctx, "Food", "", "")
	require.NoError(t, err)
	require.Equal(t, first.UnitNumber+1, second.UnitNumber)

	units, err := b.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 2)
	require.Len(t, units[0].Rounds, 1)
	require.Len(t, units[0].Rounds[0].Words, 2)
	var translations []string
	for _, w := range units[0].Rounds[0].Words {
		translations = append(translations, w.Translation)
	}
	require.ElementsMatch(t, []string{"cat-ru", "dog-ru"}, translations)

	require.NoError(t, b.SetUnitUnlocked(ctx, first.ID, true))
	got, err := b.GetUnit(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, got.Unlocked)

	require.NoError(t, b.DeleteUnit(ctx, first.ID))
	units, err = b.ListUnits(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	require.True(t, apperr.IsCode(b.DeleteUnit(ctx, first.ID), apperr.CodeNotFound))
}

func TestGetProfileMissing(t *testing.T) {
	b := testBackend(t)
	_, err := b.GetProfile(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrProfileNotFound)
	require.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestUnitTestMergeWrites(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	unit := seedUnit(t, b)

	test, err := b.CreateUnitTest(ctx, unit.ID, "Quiz")
	require.NoError(t, err)
	require.Equal(t, classroom.TestInactive, test.Status)

	_, err = b.CreateUnitTest(ctx, unit.ID, "Again")
	require.True(t, apperr.IsCode(err, apperr.CodeConflict), "second test for a unit: %v", err)

	ok, err := b.SetTestStatus(ctx, test.ID, []classroom.TestStatus{classroom.TestInactive}, classroom.TestWaiting)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 2; i++ {
		test, err = b.JoinTest(ctx, test.ID, "s1")
		require.NoError(t, err)
	}
	require.Equal(t, []string{"s1"}, test.JoinedStudents)

	started, err := test.Start(unit, nil, time.Now())
	require.NoError(t, err)
	ok, err = b.StartTest(ctx, test.ID, started.Questions, *started.StartTime)
	require.NoError(t, err)
	require.True(t, ok)

	// A second start finds the row already in progress.
	ok, err = b.StartTest(ctx, test.ID, started.Questions, *started.StartTime)
	require.NoError(t, err)
	require.False(t, ok)

	r1 := classroom.StudentTestResult{StudentID: "s1", Score: 40}
	r2 := classroom.StudentTestResult{StudentID: "s1", Score: 90}
	_, err = b.SubmitResult(ctx, test.ID, r1)
	require.NoError(t, err)
	test, err = b.SubmitResult(ctx, test.ID, r2)
	require.NoError(t, err)
	require.Len(t, test.Results, 1)
	require.Equal(t, float64(90), test.Results[0].Score)

	test, err = b.GradeResult(ctx, test.ID, "s1", 5, "well done", true)
	require.NoError(t, err)
	require.NotNil(t, test.Results[0].Passed)
	require.True(t, *test.Results[0].Passed)

	_, err = b.GradeResult(ctx, test.ID, "ghost", 1, "", false)
	require.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	stored, err := b.GetUnitTest(ctx, test.ID)
	require.NoError(t, err)
	require.Len(t, stored.Questions, len(unit.Words())*3)
	require.Equal(t, classroom.TestInProgress, stored.Status)
}

func TestSubmitRejectedBeforeStart(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	unit := seedUnit(t, b)
	test, err := b.CreateUnitTest(ctx, unit.ID, "Quiz")
	require.NoError(t, err)
	_, err = b.SubmitResult(ctx, test.ID, classroom.StudentTestResult{StudentID: "s1"})
	require.ErrorIs(t, err, classroom.ErrNotAccepting)
	require.True(t, apperr.IsCode(err, apperr.CodeConflict))
}

func TestSaveRoundProgressUpsertsByTriple(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	p := classroom.RoundProgress{StudentID: "s1", UnitID: "U", RoundID: "R"}
	p = p.RecordAttempt([]classroom.Answer{{IsCorrect: true}}, 1, at)
	saved, err := b.SaveRoundProgress(ctx, p)
	require.NoError(t, err)

	next := saved.RecordAttempt(nil, 1, at.Add(time.Minute))
	next.ID = ""
	again, err := b.SaveRoundProgress(ctx, next)
	require.NoError(t, err)
	require.Equal(t, saved.ID, again.ID)
	require.Equal(t, 2, again.Attempts)

	one, err := b.GetRoundProgress(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, 2, one.Attempts)

	all, err := b.ListRoundProgress(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, b.DeleteUnitProgress(ctx, "s1", "U"))
	all, err = b.ListRoundProgress(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
	_, err = b.GetRoundProgress(ctx, saved.ID)
	require.True(t, apperr.IsCode(err, apperr.CodeNotFound), "err=%v", err)
}

func TestChatFlow(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()

	g, err := b.CreateChatGroup(ctx, "Class A", []string{"teacher", "s1"}, "")
	require.NoError(t, err)
	other, err := b.CreateChatGroup(ctx, "Staff", []string{"teacher", "t2"}, "")
	require.NoError(t, err)

	groups, err := b.ListChatGroups(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, g.ID, groups[0].ID)

	m, err := b.SendMessage(ctx, g.ID, "teacher", " hello ")
	require.NoError(t, err)
	require.Equal(t, "hello", m.Content)
	_, err = b.SendMessage(ctx, other.ID, "teacher", "staff only")
	require.NoError(t, err)

	require.True(t, apperr.IsCode(b.EditMessage(ctx, m.ID, "s1", "hijack"), apperr.CodeNotFound))
	require.NoError(t, b.EditMessage(ctx, m.ID, "teacher", "hello all"))

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.MarkMessagesRead(ctx, []string{m.ID}, "s1", at))
	require.NoError(t, b.MarkMessagesRead(ctx, []string{m.ID}, "s1", at.Add(time.Hour)))

	msgs, err := b.ListChatMessages(ctx, []string{g.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello all", msgs[0].Content)
	require.Len(t, msgs[0].ReadBy, 1)
	require.True(t, msgs[0].ReadBy[0].ReadAt.Equal(at))

	one, err := b.GetChatMessage(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, msgs[0], one)

	require.NoError(t, b.ClearChatHistory(ctx, g.ID))
	msgs, err = b.ListChatMessages(ctx, []string{g.ID, other.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, b.DeleteChatGroup(ctx, other.ID))
	msgs, err = b.ListChatMessages(ctx, []string{other.ID})
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestProfiles(t *testing.T) {
	b := testBackend(t)
	ctx := context.Background()
	_, err := b.CreateProfile(ctx, classroom.User{ID: "u1", Name: "Ann", Role: "admin"})
	require.True(t, apperr.IsCode(err, apperr.CodeValidation))

	u, err := b.CreateProfile(ctx, classroom.User{ID: "u1", Name: "Ann", Role: classroom.RoleStudent})
	require.NoError(t, err)
	require.NoError(t, b.UpdateProfileAvatar(ctx, u.ID, "https://cdn/a.png"))
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.TouchLastSeen(ctx, u.ID, at))

	got, err := b.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "https://cdn/a.png", got.AvatarURL)
	require.True(t, got.LastSeen.Equal(at))
}

func TestChangeFeedSendsOldRowIDOnDeleteOnly(t *testing.T) {
	require.NotContains(t, changeFeedFunction, "to_jsonb(OLD)")
	require.Contains(t, changeFeedFunction, "IF TG_OP = 'DELETE' THEN\n    old_rec := jsonb_build_object('id', OLD.id);")
}
