package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/pkg/pointers"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func loaded(t *testing.T) *State {
	t.Helper()
	snap := Snapshot{
		Users: []classroom.User{
			{ID: "teacher", Name: "T", Role: classroom.RoleTeacher, AvatarURL: "old.png"},
			{ID: "u1", Name: "Ann", Role: classroom.RoleStudent},
		},
		Units: []classroom.Unit{
			{ID: "U1", Title: "Animals", UnitNumber: 1, Rounds: []classroom.Round{
				{ID: "R1", Title: "Pets", CreatedAt: t0, Words: []classroom.Word{
					{ID: "W1", English: "cat", Translation: "кошка", CreatedAt: t0},
				}},
			}},
			{ID: "U2", Title: "Food", UnitNumber: 2, Unlocked: true},
		},
		Progress: []classroom.RoundProgress{
			{ID: "P1", StudentID: "u1", UnitID: "U1", RoundID: "R1", Attempts: 1},
		},
		Tests: []classroom.UnitTest{
			{ID: "T1", UnitID: "U1", Status: classroom.TestInactive},
		},
		ChatGroups: []classroom.ChatGroup{{ID: "G1", Name: "Class", Members: []string{"teacher", "u1"}}},
		Messages: []classroom.ChatMessage{
			{ID: "M1", ChatGroupID: "G1", SenderID: "teacher", Content: "hi", CreatedAt: t0},
		},
	}
	s := Reduce(Empty(), SnapshotLoaded{Snapshot: snap})
	require.True(t, s.Loaded)
	return s
}

func TestSnapshotBuildsIndices(t *testing.T) {
	s := loaded(t)
	require.Equal(t, []string{"U2"}, s.UnlockedUnits)
	p, ok := s.ProgressIndex.Get("u1", "U1", "R1")
	require.True(t, ok)
	require.Equal(t, "P1", p.ID)
	unitID, ok := s.UnitOfRound("R1")
	require.True(t, ok)
	require.Equal(t, "U1", unitID)
	w, ok := s.Word("W1")
	require.True(t, ok)
	require.Equal(t, "R1", w.RoundID)
	test, ok := s.TestForUnit("U1")
	require.True(t, ok)
	require.Equal(t, "T1", test.ID)
}

func TestSnapshotThenPatchKeepsRounds(t *testing.T) {
	s := loaded(t)
	next := Reduce(s, UnitUpserted{Patch: classroom.UnitPatch{ID: "U1", Unlocked: pointers.Bool(true)}})

	u, ok := next.Unit("U1")
	require.True(t, ok)
	require.True(t, u.Unlocked)
	require.Len(t, u.Rounds, 1)
	require.Len(t, u.Rounds[0].Words, 1)
	require.Equal(t, []string{"U1", "U2"}, next.UnlockedUnits)
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := loaded(t)
	ev := UnitUpserted{Patch: classroom.UnitPatch{ID: "U1", Title: pointers.String("Pets & animals")}}
	once := Reduce(s, ev)
	twice := Reduce(once, ev)
	require.Same(t, once, twice)
	require.Equal(t, s.Version+1, once.Version)

	ins := MessageUpserted{Patch: classroom.ChatMessagePatch{ID: "M2", ChatGroupID: pointers.String("G1"), Content: pointers.String("yo")}}
	a := Reduce(s, ins)
	b := Reduce(a, ins)
	require.Same(t, a, b)
	require.Equal(t, 2, b.Messages.Len())
}

func TestUnrelatedBranchesKeepReferences(t *testing.T) {
	s := loaded(t)
	next := Reduce(s, UnitUpserted{Patch: classroom.UnitPatch{ID: "U1", Unlocked: pointers.Bool(true)}})

	require.Same(t, s.Users, next.Users)
	require.Same(t, s.Messages, next.Messages)
	require.Same(t, s.Progress, next.Progress)
	require.Same(t, s.Tests, next.Tests)
	u2Before, _ := s.Unit("U2")
	u2After, _ := next.Unit("U2")
	require.Same(t, u2Before, u2After)

	joined := Reduce(next, PresenceJoined{UserID: "u1"})
	require.Same(t, next.Units, joined.Units)
	require.Equal(t, next.UnlockedUnits, joined.UnlockedUnits)
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	s := loaded(t)
	for _, ev := range []Event{
		UnitDeleted{ID: "nope"},
		RoundDeleted{ID: "nope"},
		WordDeleted{ID: "nope"},
		ProgressDeleted{ID: "nope"},
		TestDeleted{ID: "nope"},
		ChatGroupDeleted{ID: "nope"},
		MessageDeleted{ID: "nope"},
		UserDeleted{ID: "nope"},
	} {
		require.Same(t, s, Reduce(s, ev), ev.Kind())
	}
}

func TestCascadeDeleteTolerated(t *testing.T) {
	s := loaded(t)
	s = Reduce(s, UnitDeleted{ID: "U1"})
	_, ok := s.Unit("U1")
	require.False(t, ok)

	// The backend cascade arrives after the parent is gone.
	after := Reduce(s, RoundDeleted{ID: "R1"})
	require.Same(t, s, after)
	require.Same(t, after, Reduce(after, WordDeleted{ID: "W1"}))
}

func TestRoundAndWordInsertsAttachToParents(t *testing.T) {
	s := loaded(t)
	s = Reduce(s, RoundUpserted{Patch: classroom.RoundPatch{
		ID: "R2", UnitID: pointers.String("U1"), Title: pointers.String("Farm"), CreatedAt: pointers.Time(t0.Add(time.Hour)),
	}})
	s = Reduce(s, WordUpserted{Patch: classroom.WordPatch{
		ID: "W2", RoundID: pointers.String("R2"), English: pointers.String("cow"),
	}})
	u, _ := s.Unit("U1")
	require.Len(t, u.Rounds, 2)
	require.Equal(t, "R2", u.Rounds[1].ID)
	require.Equal(t, "cow", u.Rounds[1].Words[0].English)

	// Orphans are dropped rather than failing.
	orphan := Reduce(s, WordUpserted{Patch: classroom.WordPatch{ID: "W9", RoundID: pointers.String("R404")}})
	require.Same(t, s, orphan)

	// A word update carrying only the id and one field still finds its round.
	s = Reduce(s, WordUpserted{Patch: classroom.WordPatch{ID: "W1", English: pointers.String("kitten")}})
	w, _ := s.Word("W1")
	require.Equal(t, "kitten", w.English)
	require.Equal(t, "кошка", w.Translation)
}

func TestWordMovesBetweenRounds(t *testing.T) {
	s := loaded(t)
	s = Reduce(s, RoundUpserted{Patch: classroom.RoundPatch{ID: "R2", UnitID: pointers.String("U1"), CreatedAt: pointers.Time(t0.Add(time.Hour))}})
	s = Reduce(s, WordUpserted{Patch: classroom.WordPatch{ID: "W1", RoundID: pointers.String("R2")}})
	u, _ := s.Unit("U1")
	require.Empty(t, u.Rounds[0].Words)
	require.Len(t, u.Rounds[1].Words, 1)
	roundID, _ := s.RoundOfWord("W1")
	require.Equal(t, "R2", roundID)
}

func TestReadReceiptMonotonic(t *testing.T) {
	s := loaded(t)
	first := Reduce(s, MessagesRead{MessageIDs: []string{"M1"}, UserID: "u1", At: t0})
	again := Reduce(first, MessagesRead{MessageIDs: []string{"M1"}, UserID: "u1", At: t0.Add(time.Hour)})
	require.Same(t, first, again)
	m, _ := again.Message("M1")
	require.Len(t, m.ReadBy, 1)
	require.True(t, m.ReadBy[0].ReadAt.Equal(t0))

	// An echo carrying a later receipt for the same user does not restamp it.
	echo := Reduce(again, MessageUpserted{Patch: classroom.ChatMessagePatch{
		ID:     "M1",
		ReadBy: []classroom.ReadReceipt{{UserID: "u1", ReadAt: t0.Add(2 * time.Hour)}},
	}})
	m, _ = echo.Message("M1")
	require.Len(t, m.ReadBy, 1)
	require.True(t, m.ReadBy[0].ReadAt.Equal(t0))
}

func TestOptimisticRoundTrip(t *testing.T) {
	s0 := loaded(t)
	orig, _ := s0.User("teacher")

	patched := *orig
	patched.AvatarURL = "new.png"
	s1 := Reduce(s0, OptimisticApplied{Put: Put{Users: []classroom.User{patched}}})
	u, _ := s1.User("teacher")
	require.Equal(t, "new.png", u.AvatarURL)

	// The remote write failed.
	s2 := Reduce(s1, OptimisticReverted{Put: Put{Users: []classroom.User{*orig}}})
	u, _ = s2.User("teacher")
	require.Equal(t, *orig, *u)

	// Replaying the revert changes nothing.
	require.Same(t, s2, Reduce(s2, OptimisticReverted{Put: Put{Users: []classroom.User{*orig}}}))
}

func TestOptimisticUnitKeepsRounds(t *testing.T) {
	s0 := loaded(t)
	orig, _ := s0.Unit("U1")
	toggled := *orig
	toggled.Unlocked = true
	toggled.Rounds = nil

	s1 := Reduce(s0, OptimisticApplied{Put: Put{Units: []classroom.Unit{toggled}}})
	u, _ := s1.Unit("U1")
	require.True(t, u.Unlocked)
	require.Len(t, u.Rounds, 1)
	require.Contains(t, s1.UnlockedUnits, "U1")

	s2 := Reduce(s1, OptimisticReverted{Put: Put{Units: []classroom.Unit{*orig}}})
	u, _ = s2.Unit("U1")
	require.Equal(t, *orig, *u)
	require.Equal(t, []string{"U2"}, s2.UnlockedUnits)
}

func TestRevertKeepsEchoThatArrivedMeanwhile(t *testing.T) {
	s0 := loaded(t)
	s0 = Reduce(s0, TestUpserted{Patch: classroom.UnitTestPatch{ID: "T1", Results: []classroom.StudentTestResult{
		{StudentID: "u1", Score: 70, CompletedAt: t0},
	}}})
	orig, _ := s0.Test("T1")
	graded, err := orig.Grade("u1", 90, "good", true)
	require.NoError(t, err)
	applied := Put{Tests: []classroom.UnitTest{graded}}
	prior := Put{Tests: []classroom.UnitTest{*orig}}

	s1 := Reduce(s0, OptimisticApplied{Put: applied})
	// Another submission lands before the grade write fails.
	s2 := Reduce(s1, TestUpserted{Patch: classroom.UnitTestPatch{ID: "T1", Results: []classroom.StudentTestResult{
		{StudentID: "u1", Score: 70, CompletedAt: t0},
		{StudentID: "u2", Score: 50, CompletedAt: t0},
	}}})
	s3 := Reduce(s2, OptimisticReverted{Put: prior, Applied: applied})
	require.Same(t, s2, s3)
	test, _ := s3.Test("T1")
	require.Len(t, test.Results, 2)

	// Untouched since the apply: the prior value comes back.
	s4 := Reduce(s1, OptimisticReverted{Put: prior, Applied: applied})
	test, _ = s4.Test("T1")
	require.Equal(t, *orig, *test)
}

func TestRevertUnitIgnoresRoundChanges(t *testing.T) {
	s0 := loaded(t)
	orig, _ := s0.Unit("U1")
	toggled := *orig
	toggled.Unlocked = true
	applied := Put{Units: []classroom.Unit{toggled}}

	s1 := Reduce(s0, OptimisticApplied{Put: applied})
	s2 := Reduce(s1, RoundUpserted{Patch: classroom.RoundPatch{ID: "R2", UnitID: pointers.String("U1"), Title: pointers.String("Farm")}})
	s3 := Reduce(s2, OptimisticReverted{Put: Put{Units: []classroom.Unit{*orig}}, Applied: applied})
	u, _ := s3.Unit("U1")
	require.False(t, u.Unlocked)
	require.Len(t, u.Rounds, 2)
}

func TestProgressUniquePerTriple(t *testing.T) {
	s := loaded(t)
	s = Reduce(s, ProgressUpserted{Record: classroom.RoundProgress{ID: "P2", StudentID: "u1", UnitID: "U1", RoundID: "R1", Attempts: 2}})
	s = Reduce(s, ProgressUpserted{Record: classroom.RoundProgress{ID: "P2", StudentID: "u1", UnitID: "U1", RoundID: "R1", Attempts: 3}})

	count := 0
	for _, p := range s.Progress.Values() {
		if p.Key() == (classroom.ProgressKey{StudentID: "u1", UnitID: "U1", RoundID: "R1"}) {
			count++
		}
	}
	require.Equal(t, 1, count)
	p, _ := s.ProgressIndex.Get("u1", "U1", "R1")
	require.Equal(t, 3, p.Attempts)

	s = Reduce(s, UnitProgressReset{StudentID: "u1", UnitID: "U1"})
	require.Equal(t, 0, s.Progress.Len())
	_, ok := s.ProgressIndex["u1"]
	require.False(t, ok)
}

func TestOneTestPerUnit(t *testing.T) {
	s := loaded(t)
	s = Reduce(s, TestUpserted{Patch: classroom.UnitTestPatch{ID: "T2", UnitID: pointers.String("U1")}})
	require.Equal(t, 1, s.Tests.Len())
	test, ok := s.TestForUnit("U1")
	require.True(t, ok)
	require.Equal(t, "T2", test.ID)
}

func TestTestLifecycleThroughEchoes(t *testing.T) {
	s := loaded(t)
	unit, _ := s.Unit("U1")
	test, _ := s.Test("T1")

	activated, err := test.Activate()
	require.NoError(t, err)
	s = Reduce(s, TestUpserted{Patch: activated.AsPatch()})

	cur, _ := s.Test("T1")
	joined, _, err := cur.Join("u1")
	require.NoError(t, err)
	s = Reduce(s, TestUpserted{Patch: joined.AsPatch()})
	cur, _ = s.Test("T1")
	joinedAgain, added, err := cur.Join("u1")
	require.NoError(t, err)
	require.False(t, added)
	s = Reduce(s, TestUpserted{Patch: joinedAgain.AsPatch()})
	cur, _ = s.Test("T1")
	require.Len(t, cur.JoinedStudents, 1)

	started, err := cur.Start(*unit, nil, t0)
	require.NoError(t, err)
	s = Reduce(s, TestUpserted{Patch: started.AsPatch()})
	cur, _ = s.Test("T1")
	require.Equal(t, classroom.TestInProgress, cur.Status)
	require.Len(t, cur.Questions, len(unit.Words())*3)
}

func TestPresenceLeaveStampsLastSeen(t *testing.T) {
	s := loaded(t)
	s = Reduce(s, PresenceJoined{UserID: "u1"})
	require.True(t, s.IsOnline("u1"))
	require.Same(t, s, Reduce(s, PresenceJoined{UserID: "u1"}))

	left := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s = Reduce(s, PresenceLeft{UserID: "u1", At: left})
	require.False(t, s.IsOnline("u1"))
	u, _ := s.User("u1")
	require.True(t, u.LastSeen.Equal(left))

	s = Reduce(s, PresenceSynced{UserIDs: []string{"teacher", "u1"}})
	require.Equal(t, []string{"teacher", "u1"}, s.OnlineIDs())
	require.Same(t, s, Reduce(s, PresenceSynced{UserIDs: []string{"u1", "teacher"}}))
}

func TestClearChatHistory(t *testing.T) {
	s := loaded(t)
	s = Reduce(s, MessageUpserted{Patch: classroom.ChatMessagePatch{ID: "M2", ChatGroupID: pointers.String("G2")}})
	s = Reduce(s, ChatHistoryCleared{GroupID: "G1"})
	require.Empty(t, s.MessagesIn("G1"))
	require.Len(t, s.MessagesIn("G2"), 1)
}

func TestSnapshotDedupesAndDegrades(t *testing.T) {
	s := Reduce(nil, SnapshotLoaded{Snapshot: Snapshot{
		Progress: []classroom.RoundProgress{
			{ID: "A", StudentID: "s", UnitID: "u", RoundID: "r", Attempts: 1},
			{ID: "B", StudentID: "s", UnitID: "u", RoundID: "r", Attempts: 2},
		},
		Tests: []classroom.UnitTest{{ID: "T", UnitID: "u", Results: []classroom.StudentTestResult{
			{StudentID: "s", Score: 10}, {StudentID: "s", Score: 20},
		}}},
		Degraded: []classroom.Collection{classroom.CollectionChatMessages},
	}})
	require.Equal(t, 1, s.Progress.Len())
	p, _ := s.ProgressIndex.Get("s", "u", "r")
	require.Equal(t, "B", p.ID)
	test, _ := s.Test("T")
	require.Len(t, test.Results, 1)
	require.Equal(t, float64(20), test.Results[0].Score)
	require.True(t, s.IsDegraded(classroom.CollectionChatMessages))
}

type unknownEvent struct{ SnapshotLoaded }

func (unknownEvent) Kind() string { return "unknown" }

func TestUnknownEventIsNoop(t *testing.T) {
	s := loaded(t)
	require.Same(t, s, Reduce(s, unknownEvent{}))
}
