// Package feed adapts the backend's realtime transports (row changes,
// presence, broadcast hints) to one callback interface.
package feed

import (
	"context"
	"encoding/json"
	"time"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// RowChange is one row mutation as published by the change-feed trigger.
// Truncated rows carry only their id.
type RowChange struct {
	Table     string          `json:"table"`
	Type      ChangeType      `json:"type"`
	Record    json.RawMessage `json:"record,omitempty"`
	OldRecord json.RawMessage `json:"old_record,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

type PresenceKind string

const (
	PresenceSync  PresenceKind = "sync"
	PresenceJoin  PresenceKind = "join"
	PresenceLeave PresenceKind = "leave"
)

// Presence is a presence-channel event. Sync carries the full online set;
// join and leave carry one user. At is the transport's clock.
type Presence struct {
	Kind    PresenceKind `json:"type"`
	UserID  string       `json:"user_id,omitempty"`
	UserIDs []string     `json:"user_ids,omitempty"`
	At      time.Time    `json:"at"`
}

// Broadcast hint names.
const (
	HintSubmission    = "submission"
	HintStudentJoin   = "student_join"
	HintTestActivated = "test_activated"
)

// Broadcast is an ad-hoc notification that tells other clients to refetch a
// record. It never carries the record itself.
type Broadcast struct {
	Event    string `json:"event"`
	TestID   string `json:"testId,omitempty"`
	SenderID string `json:"senderId,omitempty"`
}

// Sink receives decoded events. Calls for one source are serialized.
type Sink interface {
	// Connected is called each time a source (re)establishes its transport.
	Connected(source string)
	RowChanged(RowChange)
	Presence(Presence)
	Broadcast(Broadcast)
}

// Source runs one transport until it drops or ctx ends. A nil error is only
// returned when ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

// Publisher sends broadcast hints to the other clients.
type Publisher interface {
	Publish(ctx context.Context, b Broadcast) error
}
