package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
)

type fakeSource struct {
	profiles    []classroom.User
	units       []classroom.Unit
	groups      []classroom.ChatGroup
	messages    []classroom.ChatMessage
	unitsErr    error
	groupsErr   error
	messagesErr error
	block       bool
	gotGroupIDs []string
}

func (f *fakeSource) GetProfile(ctx context.Context, id string) (classroom.User, error) {
	for _, u := range f.profiles {
		if u.ID == id {
			return u, nil
		}
	}
	return classroom.User{}, errors.New("no profile")
}

func (f *fakeSource) ListProfiles(ctx context.Context) ([]classroom.User, error) {
	return f.profiles, nil
}

func (f *fakeSource) ListUnits(ctx context.Context) ([]classroom.Unit, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.units, f.unitsErr
}

func (f *fakeSource) ListRoundProgress(ctx context.Context) ([]classroom.RoundProgress, error) {
	return nil, nil
}

func (f *fakeSource) ListUnitTests(ctx context.Context) ([]classroom.UnitTest, error) {
	return nil, nil
}

func (f *fakeSource) ListChatGroups(ctx context.Context, memberID string) ([]classroom.ChatGroup, error) {
	return f.groups, f.groupsErr
}

func (f *fakeSource) ListChatMessages(ctx context.Context, groupIDs []string) ([]classroom.ChatMessage, error) {
	f.gotGroupIDs = groupIDs
	return f.messages, f.messagesErr
}

func newFake() *fakeSource {
	return &fakeSource{
		profiles: []classroom.User{{ID: "t1", Role: classroom.RoleTeacher}, {ID: "s1", Role: classroom.RoleStudent}},
		units:    []classroom.Unit{{ID: "U1", UnitNumber: 1}},
		groups:   []classroom.ChatGroup{{ID: "G1", Members: []string{"t1", "s1"}}},
		messages: []classroom.ChatMessage{{ID: "M1", ChatGroupID: "G1"}},
	}
}

func TestLoadReadsEverything(t *testing.T) {
	src := newFake()
	res, err := NewLoader(src, nil, time.Second).Load(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", res.Me.ID)
	require.Len(t, res.Snapshot.Users, 2)
	require.Len(t, res.Snapshot.Units, 1)
	require.Len(t, res.Snapshot.Messages, 1)
	require.Empty(t, res.Snapshot.Degraded)
	require.Equal(t, []string{"G1"}, src.gotGroupIDs)
}

func TestMissingProfileIsFatal(t *testing.T) {
	_, err := NewLoader(newFake(), nil, time.Second).Load(context.Background(), "ghost")
	require.True(t, apperr.IsCode(err, apperr.CodeFatal))
}

func TestCriticalFailureIsFatal(t *testing.T) {
	src := newFake()
	src.unitsErr = errors.New("boom")
	_, err := NewLoader(src, nil, time.Second).Load(context.Background(), "t1")
	require.True(t, apperr.IsCode(err, apperr.CodeFatal))
	require.ErrorContains(t, err, "units")
}

func TestChatFailureDegrades(t *testing.T) {
	src := newFake()
	src.messagesErr = errors.New("rls denied")
	res, err := NewLoader(src, nil, time.Second).Load(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, res.Snapshot.ChatGroups, 1)
	require.Empty(t, res.Snapshot.Messages)
	require.Equal(t, []classroom.Collection{classroom.CollectionChatMessages}, res.Snapshot.Degraded)

	src = newFake()
	src.groupsErr = errors.New("rls denied")
	res, err = NewLoader(src, nil, time.Second).Load(context.Background(), "t1")
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]classroom.Collection{classroom.CollectionChatGroups, classroom.CollectionChatMessages},
		res.Snapshot.Degraded)
}

func TestLoadTimesOut(t *testing.T) {
	src := newFake()
	src.block = true
	_, err := NewLoader(src, nil, 20*time.Millisecond).Load(context.Background(), "t1")
	require.True(t, apperr.IsCode(err, apperr.CodeFatal))
	require.ErrorContains(t, err, "timed out")
}
