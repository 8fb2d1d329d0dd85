package classroom

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"
)

func sampleUnit() Unit {
	return Unit{
		ID: "U1",
		Rounds: []Round{
			{ID: "R1", UnitID: "U1", Words: []Word{
				{ID: "W1", RoundID: "R1", English: "cat", Translation: "кошка", ImageURL: "img/cat.png"},
				{ID: "W2", RoundID: "R1", English: "dog", Translation: "собака", ImageURL: "img/dog.png"},
			}},
			{ID: "R2", UnitID: "U1", Words: []Word{
				{ID: "W3", RoundID: "R2", English: "I'm fine", Translation: "я в порядке", ImageURL: "img/fine.png"},
			}},
		},
	}
}

func TestUnitTestLifecycle(t *testing.T) {
	unit := sampleUnit()
	tst := UnitTestPatch{ID: "T1", UnitID: &unit.ID}.New()
	if tst.Status != TestInactive {
		t.Fatalf("initial status: want=%q got=%q", TestInactive, tst.Status)
	}

	tst, err := tst.Activate()
	if err != nil || tst.Status != TestWaiting {
		t.Fatalf("activate: status=%q err=%v", tst.Status, err)
	}

	tst, added, err := tst.Join("s1")
	if err != nil || !added {
		t.Fatalf("first join: added=%v err=%v", added, err)
	}
	tst, added, err = tst.Join("s1")
	if err != nil || added {
		t.Fatalf("second join: added=%v err=%v", added, err)
	}
	if len(tst.JoinedStudents) != 1 {
		t.Fatalf("joined: want 1 got=%d", len(tst.JoinedStudents))
	}

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tst, err = tst.Start(unit, rand.New(rand.NewPCG(1, 2)), now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if tst.Status != TestInProgress {
		t.Fatalf("status after start: %q", tst.Status)
	}
	if want := len(unit.Words()) * 3; len(tst.Questions) != want {
		t.Fatalf("questions: want=%d got=%d", want, len(tst.Questions))
	}
	if tst.StartTime == nil || !tst.StartTime.Equal(now) {
		t.Fatalf("start time: %v", tst.StartTime)
	}

	tst, err = tst.End()
	if err != nil || tst.Status != TestCompleted {
		t.Fatalf("end: status=%q err=%v", tst.Status, err)
	}
	again, err := tst.End()
	if err != nil || again.Status != TestCompleted {
		t.Fatalf("second end should be a no-op: status=%q err=%v", again.Status, err)
	}
	if !tst.AcceptsSubmissions() {
		t.Fatalf("completed test must still accept late submissions")
	}
}

func TestUnitTestInvalidTransitions(t *testing.T) {
	tst := UnitTest{ID: "T1", Status: TestInactive}
	if _, _, err := tst.Join("s1"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("join inactive: want ErrInvalidTransition got=%v", err)
	}
	if _, err := tst.End(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("end inactive: want ErrInvalidTransition got=%v", err)
	}

	waiting, _ := tst.Activate()
	if _, err := waiting.Start(sampleUnit(), nil, time.Now()); !errors.Is(err, ErrNoStudentsJoined) {
		t.Fatalf("start without students: got=%v", err)
	}
	waiting, _, _ = waiting.Join("s1")
	if _, err := waiting.Start(Unit{ID: "empty"}, nil, time.Now()); !errors.Is(err, ErrNoWords) {
		t.Fatalf("start without words: got=%v", err)
	}

	done := UnitTest{Status: TestCompleted}
	if _, err := done.Activate(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("activate completed: got=%v", err)
	}
}

func TestUnitTestCountdown(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tst := UnitTest{Status: TestInProgress, StartTime: &start}

	if got := tst.Remaining(start.Add(4*time.Minute), DefaultTestDuration); got != 6*time.Minute {
		t.Fatalf("remaining: want 6m got=%v", got)
	}
	if tst.Expired(start.Add(9*time.Minute), DefaultTestDuration) {
		t.Fatalf("expired too early")
	}
	if !tst.Expired(start.Add(10*time.Minute), DefaultTestDuration) {
		t.Fatalf("should expire exactly at the deadline")
	}
	if got := tst.Remaining(start.Add(time.Hour), DefaultTestDuration); got != 0 {
		t.Fatalf("remaining after deadline: want 0 got=%v", got)
	}
}

func TestMergeResultKeepsOnePerStudent(t *testing.T) {
	results := []StudentTestResult{{StudentID: "a", Score: 10}, {StudentID: "b", Score: 20}}
	results = MergeResult(results, StudentTestResult{StudentID: "a", Score: 90})
	if len(results) != 2 {
		t.Fatalf("len: want 2 got=%d", len(results))
	}
	if results[1].StudentID != "a" || results[1].Score != 90 {
		t.Fatalf("resubmission should replace and move to the end: %+v", results)
	}

	deduped := DedupeResults([]StudentTestResult{{StudentID: "a", Score: 1}, {StudentID: "a", Score: 2}})
	if len(deduped) != 1 || deduped[0].Score != 2 {
		t.Fatalf("dedupe: %+v", deduped)
	}
}

func TestGradeDoesNotAliasResults(t *testing.T) {
	orig := UnitTest{Results: []StudentTestResult{{StudentID: "a", Score: 50}}}
	graded, err := orig.Grade("a", 80, "good", true)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if orig.Results[0].TeacherGrade != nil {
		t.Fatalf("original result was mutated")
	}
	if g := graded.Results[0].TeacherGrade; g == nil || *g != 80 {
		t.Fatalf("teacher grade: %v", g)
	}
	if _, err := orig.Grade("missing", 1, "", false); err == nil {
		t.Fatalf("expected error for unknown student")
	}
}
