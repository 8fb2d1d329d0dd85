package classroom

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"
)

type TestStatus string

const (
	TestInactive   TestStatus = "inactive"
	TestWaiting    TestStatus = "waiting"
	TestInProgress TestStatus = "in_progress"
	TestCompleted  TestStatus = "completed"
)

// DefaultTestDuration is the shared countdown every client derives from StartTime.
const DefaultTestDuration = 10 * time.Minute

var (
	ErrInvalidTransition = errors.New("invalid test transition")
	ErrNoStudentsJoined  = errors.New("at least one student must join before the test starts")
	ErrNoWords           = errors.New("unit has no words")
	ErrNotAccepting      = errors.New("test is not accepting submissions")
	ErrNoResult          = errors.New("no result for student")
)

type TestQuestion struct {
	Word    Word     `json:"word"`
	Type    Stage    `json:"type"`
	Options []string `json:"options,omitempty"`
}

type StudentTestAnswer struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
	IsCorrect     bool   `json:"isCorrect"`
}

type StudentTestResult struct {
	StudentID      string              `json:"studentId"`
	Answers        []StudentTestAnswer `json:"answers"`
	Score          float64             `json:"score"`
	CompletedAt    time.Time           `json:"completedAt"`
	TeacherGrade   *float64            `json:"teacherGrade,omitempty"`
	TeacherComment *string             `json:"teacherComment,omitempty"`
	Passed         *bool               `json:"passed,omitempty"`
}

// UnitTest is the live test session of a unit (one per unit).
//
//	inactive -> waiting -> in_progress -> completed
type UnitTest struct {
	ID             string              `json:"id"`
	UnitID         string              `json:"unit_id"`
	Title          string              `json:"title"`
	Status         TestStatus          `json:"status"`
	JoinedStudents []string            `json:"joined_students"`
	Questions      []TestQuestion      `json:"questions"`
	Results        []StudentTestResult `json:"results"`
	StartTime      *time.Time          `json:"start_time,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func transitionErr(from TestStatus, action string) error {
	return fmt.Errorf("%w: cannot %s a %s test", ErrInvalidTransition, action, from)
}

// Activate opens the waiting room. Activating a waiting test changes nothing.
func (t UnitTest) Activate() (UnitTest, error) {
	switch t.Status {
	case TestInactive, "":
		t.Status = TestWaiting
		return t, nil
	case TestWaiting:
		return t, nil
	default:
		return t, transitionErr(t.Status, "activate")
	}
}

// Join adds the student to the joined list. The bool is false when the
// student had already joined.
func (t UnitTest) Join(studentID string) (UnitTest, bool, error) {
	if t.Status != TestWaiting {
		return t, false, transitionErr(t.Status, "join")
	}
	if slices.Contains(t.JoinedStudents, studentID) {
		return t, false, nil
	}
	joined := make([]string, len(t.JoinedStudents), len(t.JoinedStudents)+1)
	copy(joined, t.JoinedStudents)
	t.JoinedStudents = append(joined, studentID)
	return t, true, nil
}

// Start freezes the question list and stamps the start time every client
// counts down from.
func (t UnitTest) Start(unit Unit, rng *rand.Rand, now time.Time) (UnitTest, error) {
	if t.Status != TestWaiting {
		return t, transitionErr(t.Status, "start")
	}
	if len(t.JoinedStudents) == 0 {
		return t, ErrNoStudentsJoined
	}
	words := unit.Words()
	if len(words) == 0 {
		return t, ErrNoWords
	}
	start := now.UTC()
	t.Questions = GenerateQuestions(words, rng)
	t.Status = TestInProgress
	t.StartTime = &start
	return t, nil
}

// End completes the test. Ending a completed test changes nothing, so the
// teacher's command and any client's expired timer can race safely.
func (t UnitTest) End() (UnitTest, error) {
	switch t.Status {
	case TestInProgress:
		t.Status = TestCompleted
		return t, nil
	case TestCompleted:
		return t, nil
	default:
		return t, transitionErr(t.Status, "end")
	}
}

// Deadline is StartTime + d; false when the test has not started.
func (t UnitTest) Deadline(d time.Duration) (time.Time, bool) {
	if t.StartTime == nil {
		return time.Time{}, false
	}
	return t.StartTime.Add(d), true
}

// Remaining is the countdown left at now, never negative. A test that is not
// in progress reports the full duration.
func (t UnitTest) Remaining(now time.Time, d time.Duration) time.Duration {
	if t.Status != TestInProgress {
		return d
	}
	deadline, ok := t.Deadline(d)
	if !ok {
		return d
	}
	left := deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether an in-progress test has run out of time at now.
func (t UnitTest) Expired(now time.Time, d time.Duration) bool {
	if t.Status != TestInProgress {
		return false
	}
	deadline, ok := t.Deadline(d)
	return ok && !now.Before(deadline)
}

// AcceptsSubmissions is true once questions exist; late submissions after
// completion still count.
func (t UnitTest) AcceptsSubmissions() bool {
	return (t.Status == TestInProgress || t.Status == TestCompleted) && len(t.Questions) > 0
}

func (t UnitTest) ResultFor(studentID string) (StudentTestResult, bool) {
	for _, r := range t.Results {
		if r.StudentID == studentID {
			return r, true
		}
	}
	return StudentTestResult{}, false
}

// MergeResult drops any earlier result of the same student and appends r.
func MergeResult(results []StudentTestResult, r StudentTestResult) []StudentTestResult {
	out := make([]StudentTestResult, 0, len(results)+1)
	for _, existing := range results {
		if existing.StudentID != r.StudentID {
			out = append(out, existing)
		}
	}
	return append(out, r)
}

// DedupeResults keeps the last result per student, in order of last appearance.
func DedupeResults(results []StudentTestResult) []StudentTestResult {
	if len(results) < 2 {
		return results
	}
	last := make(map[string]int, len(results))
	for i, r := range results {
		last[r.StudentID] = i
	}
	if len(last) == len(results) {
		return results
	}
	out := make([]StudentTestResult, 0, len(last))
	for i, r := range results {
		if last[r.StudentID] == i {
			out = append(out, r)
		}
	}
	return out
}

// Grade applies a teacher's grade to one student's result.
func (t UnitTest) Grade(studentID string, grade float64, comment string, passed bool) (UnitTest, error) {
	idx := -1
	for i := range t.Results {
		if t.Results[i].StudentID == studentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return t, fmt.Errorf("%w: %s", ErrNoResult, studentID)
	}
	results := slices.Clone(t.Results)
	r := results[idx]
	r.TeacherGrade = &grade
	r.TeacherComment = &comment
	r.Passed = &passed
	results[idx] = r
	t.Results = results
	return t, nil
}

type UnitTestPatch struct {
	ID             string              `json:"id"`
	UnitID         *string             `json:"unit_id,omitempty"`
	Title          *string             `json:"title,omitempty"`
	Status         *TestStatus         `json:"status,omitempty"`
	JoinedStudents []string            `json:"joined_students,omitempty"`
	Questions      []TestQuestion      `json:"questions,omitempty"`
	Results        []StudentTestResult `json:"results,omitempty"`
	StartTime      *time.Time          `json:"start_time,omitempty"`
	CreatedAt      *time.Time          `json:"created_at,omitempty"`
}

func (p UnitTestPatch) RecordID() string { return p.ID }

// Apply merges present fields. A nil slice means the field was absent (the
// backend sends null and [] interchangeably for empty lists).
func (p UnitTestPatch) Apply(t UnitTest) UnitTest {
	if p.UnitID != nil {
		t.UnitID = *p.UnitID
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.JoinedStudents != nil {
		t.JoinedStudents = p.JoinedStudents
	}
	if p.Questions != nil {
		t.Questions = p.Questions
	}
	if p.Results != nil {
		t.Results = DedupeResults(p.Results)
	}
	if p.StartTime != nil {
		t.StartTime = p.StartTime
	}
	if p.CreatedAt != nil {
		t.CreatedAt = *p.CreatedAt
	}
	return t
}

func (p UnitTestPatch) New() UnitTest { return p.Apply(UnitTest{ID: p.ID, Status: TestInactive}) }

// AsPatch is the full-row patch of t, as a row echo would carry it.
func (t UnitTest) AsPatch() UnitTestPatch {
	return UnitTestPatch{
		ID:             t.ID,
		UnitID:         &t.UnitID,
		Title:          &t.Title,
		Status:         &t.Status,
		JoinedStudents: nonNil(t.JoinedStudents),
		Questions:      nonNil(t.Questions),
		Results:        nonNil(t.Results),
		StartTime:      t.StartTime,
		CreatedAt:      &t.CreatedAt,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
