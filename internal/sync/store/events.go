package store

import (
	"time"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

// Event is a closed set of transitions. Reduce switches over every
// implementation; anything else is ignored.
type Event interface {
	Kind() string
	event()
}

// Snapshot is the result of one bulk read. The store takes ownership of the
// slices once it is dispatched.
type Snapshot struct {
	Users      []classroom.User
	Units      []classroom.Unit
	Progress   []classroom.RoundProgress
	Tests      []classroom.UnitTest
	ChatGroups []classroom.ChatGroup
	Messages   []classroom.ChatMessage
	Degraded   []classroom.Collection
}

// Put carries whole record values for optimistic apply and revert. Records
// not already in the store are skipped. Units keep the rounds the store holds.
type Put struct {
	Users    []classroom.User
	Units    []classroom.Unit
	Words    []classroom.Word
	Tests    []classroom.UnitTest
	Messages []classroom.ChatMessage
}

func (p Put) Empty() bool {
	return len(p.Users)+len(p.Units)+len(p.Words)+len(p.Tests)+len(p.Messages) == 0
}

type (
	SnapshotLoaded struct{ Snapshot Snapshot }

	UserUpserted struct{ Patch classroom.UserPatch }
	UserDeleted  struct{ ID string }

	UnitUpserted struct{ Patch classroom.UnitPatch }
	UnitDeleted  struct{ ID string }

	RoundUpserted struct{ Patch classroom.RoundPatch }
	RoundDeleted  struct{ ID string }

	WordUpserted struct{ Patch classroom.WordPatch }
	WordDeleted  struct{ ID string }

	ProgressUpserted struct{ Record classroom.RoundProgress }
	ProgressDeleted  struct{ ID string }

	TestUpserted struct{ Patch classroom.UnitTestPatch }
	TestDeleted  struct{ ID string }

	ChatGroupUpserted struct{ Patch classroom.ChatGroupPatch }
	ChatGroupDeleted  struct{ ID string }

	MessageUpserted struct{ Patch classroom.ChatMessagePatch }
	MessageDeleted  struct{ ID string }

	PresenceSynced struct{ UserIDs []string }
	PresenceJoined struct{ UserID string }
	// PresenceLeft carries the leave time reported by the presence
	// transport, never the observer's clock.
	PresenceLeft struct {
		UserID string
		At     time.Time
	}

	MessagesRead struct {
		MessageIDs []string
		UserID     string
		At         time.Time
	}
	AvatarChanged struct {
		UserID string
		URL    string
	}
	UnitProgressReset struct {
		StudentID string
		UnitID    string
	}
	ChatHistoryCleared struct{ GroupID string }

	OptimisticApplied struct{ Put Put }
	// OptimisticReverted restores Put. A record is restored only while it
	// still holds the value Applied gave it; a newer value stays.
	OptimisticReverted struct{ Put, Applied Put }
)

func (SnapshotLoaded) Kind() string     { return "snapshot_loaded" }
func (UserUpserted) Kind() string       { return "user_upserted" }
func (UserDeleted) Kind() string        { return "user_deleted" }
func (UnitUpserted) Kind() string       { return "unit_upserted" }
func (UnitDeleted) Kind() string        { return "unit_deleted" }
func (RoundUpserted) Kind() string      { return "round_upserted" }
func (RoundDeleted) Kind() string       { return "round_deleted" }
func (WordUpserted) Kind() string       { return "word_upserted" }
func (WordDeleted) Kind() string        { return "word_deleted" }
func (ProgressUpserted) Kind() string   { return "progress_upserted" }
func (ProgressDeleted) Kind() string    { return "progress_deleted" }
func (TestUpserted) Kind() string       { return "test_upserted" }
func (TestDeleted) Kind() string        { return "test_deleted" }
func (ChatGroupUpserted) Kind() string  { return "chat_group_upserted" }
func (ChatGroupDeleted) Kind() string   { return "chat_group_deleted" }
func (MessageUpserted) Kind() string    { return "message_upserted" }
func (MessageDeleted) Kind() string     { return "message_deleted" }
func (PresenceSynced) Kind() string     { return "presence_synced" }
func (PresenceJoined) Kind() string     { return "presence_joined" }
func (PresenceLeft) Kind() string       { return "presence_left" }
func (MessagesRead) Kind() string       { return "messages_read" }
func (AvatarChanged) Kind() string      { return "avatar_changed" }
func (UnitProgressReset) Kind() string  { return "unit_progress_reset" }
func (ChatHistoryCleared) Kind() string { return "chat_history_cleared" }
func (OptimisticApplied) Kind() string  { return "optimistic_applied" }
func (OptimisticReverted) Kind() string { return "optimistic_reverted" }

func (SnapshotLoaded) event()     {}
func (UserUpserted) event()       {}
func (UserDeleted) event()        {}
func (UnitUpserted) event()       {}
func (UnitDeleted) event()        {}
func (RoundUpserted) event()      {}
func (RoundDeleted) event()       {}
func (WordUpserted) event()       {}
func (WordDeleted) event()        {}
func (ProgressUpserted) event()   {}
func (ProgressDeleted) event()    {}
func (TestUpserted) event()       {}
func (TestDeleted) event()        {}
func (ChatGroupUpserted) event()  {}
func (ChatGroupDeleted) event()   {}
func (MessageUpserted) event()    {}
func (MessageDeleted) event()     {}
func (PresenceSynced) event()     {}
func (PresenceJoined) event()     {}
func (PresenceLeft) event()       {}
func (MessagesRead) event()       {}
func (AvatarChanged) event()      {}
func (UnitProgressReset) event()  {}
func (ChatHistoryCleared) event() {}
func (OptimisticApplied) event()  {}
func (OptimisticReverted) event() {}
