// Package command is the only write path from the UI. Optimistic commands
// patch the store before the backend answers and roll back on failure; the
// rest write remotely and wait for the change-feed echo.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/observability"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/realtime/feed"
	"github.com/yungbote/classsync/internal/sync/store"
)

var (
	ErrNoActor     = errors.New("no signed-in user")
	ErrTeacherOnly = errors.New("only teachers can do this")
	ErrStudentOnly = errors.New("only students can do this")
	ErrUnknown     = errors.New("record is not in the store")
	ErrNotMember   = errors.New("not a member of this chat")
	ErrStaleStatus = errors.New("test status changed on the server")
	ErrTestExists  = errors.New("unit already has a test")
	ErrNoBlobs     = errors.New("blob storage is not configured")
)

// Remote is the write side of the backend.
type Remote interface {
	SetUnitUnlocked(ctx context.Context, unitID string, unlocked bool) error
	CreateUnit(ctx context.Context, title, description, icon string) (classroom.Unit, error)
	DeleteUnit(ctx context.Context, unitID string) error
	UpdateWord(ctx context.Context, w classroom.Word) error
	UpdateProfileAvatar(ctx context.Context, userID, url string) error

	GetUnitTest(ctx context.Context, id string) (classroom.UnitTest, error)
	CreateUnitTest(ctx context.Context, unitID, title string) (classroom.UnitTest, error)
	DeleteUnitTest(ctx context.Context, id string) error
	SetTestStatus(ctx context.Context, id string, from []classroom.TestStatus, to classroom.TestStatus) (bool, error)
	StartTest(ctx context.Context, id string, questions []classroom.TestQuestion, start time.Time) (bool, error)
	JoinTest(ctx context.Context, id, studentID string) (classroom.UnitTest, error)
	SubmitResult(ctx context.Context, id string, r classroom.StudentTestResult) (classroom.UnitTest, error)
	GradeResult(ctx context.Context, id, studentID string, grade float64, comment string, passed bool) (classroom.UnitTest, error)

	SaveRoundProgress(ctx context.Context, p classroom.RoundProgress) (classroom.RoundProgress, error)
	DeleteUnitProgress(ctx context.Context, studentID, unitID string) error

	CreateChatGroup(ctx context.Context, name string, members []string, avatarURL string) (classroom.ChatGroup, error)
	DeleteChatGroup(ctx context.Context, groupID string) error
	SendMessage(ctx context.Context, groupID, senderID, content string) (classroom.ChatMessage, error)
	EditMessage(ctx context.Context, messageID, senderID, content string) error
	DeleteMessage(ctx context.Context, messageID, senderID string) error
	ClearChatHistory(ctx context.Context, groupID string) error
	MarkMessagesRead(ctx context.Context, messageIDs []string, userID string, at time.Time) error
}

// Blobs stores avatars and lesson images and hands back public URLs.
type Blobs interface {
	UploadAvatar(ctx context.Context, key string, body io.Reader) (string, error)
	UploadLessonImage(ctx context.Context, key string, body io.Reader) (string, error)
	// DeleteURL removes an object by its public URL. URLs this store did not
	// issue are left alone.
	DeleteURL(ctx context.Context, url string) error
}

type Options struct {
	Blobs        Blobs
	Publisher    feed.Publisher
	Metrics      *observability.Metrics
	TestDuration time.Duration
	Now          func() time.Time
	// Rand seeds question generation. Nil draws a fresh seed per start.
	Rand *rand.Rand
}

type Service struct {
	store    *store.Store
	remote   Remote
	blobs    Blobs
	pub      feed.Publisher
	metrics  *observability.Metrics
	log      *logger.Logger
	ledger   *Ledger
	validate *validator.Validate
	duration time.Duration
	now      func() time.Time

	mu    sync.Mutex
	actor string
	rng   *rand.Rand
}

func New(st *store.Store, remote Remote, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if opts.TestDuration <= 0 {
		opts.TestDuration = classroom.DefaultTestDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    st,
		remote:   remote,
		blobs:    opts.Blobs,
		pub:      opts.Publisher,
		metrics:  opts.Metrics,
		log:      log.With("component", "CommandLayer"),
		ledger:   NewLedger(0),
		validate: newValidator(),
		duration: opts.TestDuration,
		now:      opts.Now,
		rng:      opts.Rand,
	}
}

func (s *Service) Ledger() *Ledger { return s.ledger }

func (s *Service) TestDuration() time.Duration { return s.duration }

// SetActor binds the signed-in user every command acts as.
func (s *Service) SetActor(userID string) {
	s.mu.Lock()
	s.actor = userID
	s.mu.Unlock()
}

func (s *Service) Actor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

// me resolves the actor's profile from the store, optionally requiring a role.
func (s *Service) me(op string, role classroom.Role) (classroom.User, error) {
	id := s.Actor()
	if id == "" {
		return classroom.User{}, apperr.Wrap(apperr.CodeValidation, op, ErrNoActor)
	}
	u, ok := s.store.State().User(id)
	if !ok {
		return classroom.User{}, apperr.Wrap(apperr.CodeNotFound, op, fmt.Errorf("%w: profile %s", ErrUnknown, id))
	}
	switch {
	case role == classroom.RoleTeacher && u.Role != classroom.RoleTeacher:
		return classroom.User{}, apperr.Wrap(apperr.CodeValidation, op, ErrTeacherOnly)
	case role == classroom.RoleStudent && u.Role != classroom.RoleStudent:
		return classroom.User{}, apperr.Wrap(apperr.CodeValidation, op, ErrStudentOnly)
	}
	return *u, nil
}

func unknown(op, kind, id string) error {
	return apperr.Wrap(apperr.CodeNotFound, op, fmt.Errorf("%w: %s %s", ErrUnknown, kind, id))
}

// RunOptimistic applies p to the store, runs remote, and on failure writes
// back the values p replaced. Records p names that the store does not hold
// are skipped on both legs, so running the same command twice never stacks.
// A record that changed again while remote ran keeps its newer value.
func (s *Service) RunOptimistic(ctx context.Context, name string, p store.Put, remote func(context.Context) error) error {
	prior := capture(s.store.State(), p)
	id := s.ledger.begin(name, s.now())
	s.store.Dispatch(store.OptimisticApplied{Put: p})

	err := remote(ctx)
	if err == nil {
		s.ledger.settle(id, StatusConfirmed, nil, s.now())
		s.metrics.IncCommand(name, "confirmed")
		return nil
	}
	s.store.Dispatch(store.OptimisticReverted{Put: prior, Applied: p})
	s.ledger.settle(id, StatusRolledBack, err, s.now())
	s.metrics.IncCommand(name, "rolled_back")
	s.log.Warn("Optimistic write rolled back", "command", name, "error", err)
	return apperr.NewError(apperr.CodeWriteFailed, name, err.Error(), err)
}

// capture returns the current values of every record p would replace.
func capture(st *store.State, p store.Put) store.Put {
	var prior store.Put
	for _, u := range p.Users {
		if cur, ok := st.User(u.ID); ok {
			prior.Users = append(prior.Users, *cur)
		}
	}
	for _, u := range p.Units {
		if cur, ok := st.Unit(u.ID); ok {
			prior.Units = append(prior.Units, *cur)
		}
	}
	for _, w := range p.Words {
		if cur, ok := st.Word(w.ID); ok {
			prior.Words = append(prior.Words, cur)
		}
	}
	for _, t := range p.Tests {
		if cur, ok := st.Test(t.ID); ok {
			prior.Tests = append(prior.Tests, *cur)
		}
	}
	for _, m := range p.Messages {
		if cur, ok := st.Message(m.ID); ok {
			prior.Messages = append(prior.Messages, *cur)
		}
	}
	return prior
}

// remoteOnly wraps a non-optimistic write with the command outcome metric
// and the error code policy.
func (s *Service) remoteOnly(name string, err error) error {
	if err == nil {
		s.metrics.IncCommand(name, "confirmed")
		return nil
	}
	s.metrics.IncCommand(name, "failed")
	if apperr.CodeOf(err) != "" {
		return err
	}
	return apperr.Wrap(apperr.CodeInternal, name, err)
}

// hint publishes a broadcast best-effort; the row echo is authoritative.
func (s *Service) hint(ctx context.Context, event, testID string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, feed.Broadcast{Event: event, TestID: testID, SenderID: s.Actor()}); err != nil {
		s.log.Debug("Broadcast hint failed", "event", event, "test_id", testID, "error", err)
	}
}

// withRand runs fn with the configured source, or a freshly seeded one.
// A configured source is not safe for concurrent use, so fn runs locked.
func (s *Service) withRand(fn func(*rand.Rand)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rng := s.rng
	if rng == nil {
		seed := uint64(s.now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>17|1))
	}
	fn(rng)
}

func (s *Service) check(op string, v any) error {
	if err := s.validate.Struct(v); err != nil {
		return apperr.NewError(apperr.CodeValidation, op, describe(err), err)
	}
	return nil
}
