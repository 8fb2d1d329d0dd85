package listener

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/realtime/feed"
	"github.com/yungbote/classsync/internal/sync/store"
)

// Reasons a row change never reaches the store.
const (
	reasonUnknownTable = "unknown_table"
	reasonUnknownType  = "unknown_type"
	reasonDecode       = "decode"
	reasonNotMember    = "not_member"
)

type ignoredError struct {
	reason string
	err    error
}

func (e *ignoredError) Error() string {
	if e.err == nil {
		return e.reason
	}
	return fmt.Sprintf("%s: %v", e.reason, e.err)
}

func (e *ignoredError) Unwrap() error { return e.err }

func ignored(reason string, err error) error { return &ignoredError{reason: reason, err: err} }

func ignoreReason(err error) string {
	var ie *ignoredError
	if errors.As(err, &ie) {
		return ie.reason
	}
	return reasonDecode
}

// needsRefetch marks a truncated row whose full record must be read back.
type needsRefetch struct {
	collection classroom.Collection
	id         string
}

func (n needsRefetch) Error() string { return fmt.Sprintf("refetch %s %s", n.collection, n.id) }

type idOnly struct {
	ID string `json:"id"`
}

// Classify maps a row change to a store event.
func Classify(c feed.RowChange) (store.Event, error) {
	coll, ok := classroom.ParseCollection(c.Table)
	if !ok {
		return nil, ignored(reasonUnknownTable, fmt.Errorf("table %q", c.Table))
	}
	switch c.Type {
	case feed.ChangeInsert, feed.ChangeUpdate:
		if c.Truncated {
			id, err := recordID(c.Record)
			if err != nil {
				return nil, err
			}
			return nil, needsRefetch{collection: coll, id: id}
		}
		return upsertFor(coll, c.Record)
	case feed.ChangeDelete:
		id, err := recordID(c.OldRecord)
		if err != nil {
			return nil, err
		}
		return deleteFor(coll, id), nil
	default:
		return nil, ignored(reasonUnknownType, fmt.Errorf("type %q", c.Type))
	}
}

func recordID(raw json.RawMessage) (string, error) {
	var rec idOnly
	if len(raw) == 0 {
		return "", ignored(reasonDecode, errors.New("missing record"))
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", ignored(reasonDecode, err)
	}
	if rec.ID == "" {
		return "", ignored(reasonDecode, errors.New("record without id"))
	}
	return rec.ID, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, ignored(reasonDecode, errors.New("missing record"))
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, ignored(reasonDecode, err)
	}
	return v, nil
}

func upsertFor(coll classroom.Collection, raw json.RawMessage) (store.Event, error) {
	if _, err := recordID(raw); err != nil {
		return nil, err
	}
	switch coll {
	case classroom.CollectionProfiles:
		p, err := decode[classroom.UserPatch](raw)
		return store.UserUpserted{Patch: p}, err
	case classroom.CollectionUnits:
		p, err := decode[classroom.UnitPatch](raw)
		return store.UnitUpserted{Patch: p}, err
	case classroom.CollectionRounds:
		p, err := decode[classroom.RoundPatch](raw)
		return store.RoundUpserted{Patch: p}, err
	case classroom.CollectionWords:
		p, err := decode[classroom.WordPatch](raw)
		return store.WordUpserted{Patch: p}, err
	case classroom.CollectionRoundProgress:
		r, err := decode[classroom.RoundProgress](raw)
		return store.ProgressUpserted{Record: r}, err
	case classroom.CollectionUnitTests:
		p, err := decode[classroom.UnitTestPatch](raw)
		return store.TestUpserted{Patch: p}, err
	case classroom.CollectionChatGroups:
		p, err := decode[classroom.ChatGroupPatch](raw)
		return store.ChatGroupUpserted{Patch: p}, err
	case classroom.CollectionChatMessages:
		p, err := decode[classroom.ChatMessagePatch](raw)
		return store.MessageUpserted{Patch: p}, err
	}
	return nil, ignored(reasonUnknownTable, fmt.Errorf("table %q", coll))
}

func deleteFor(coll classroom.Collection, id string) store.Event {
	switch coll {
	case classroom.CollectionProfiles:
		return store.UserDeleted{ID: id}
	case classroom.CollectionUnits:
		return store.UnitDeleted{ID: id}
	case classroom.CollectionRounds:
		return store.RoundDeleted{ID: id}
	case classroom.CollectionWords:
		return store.WordDeleted{ID: id}
	case classroom.CollectionRoundProgress:
		return store.ProgressDeleted{ID: id}
	case classroom.CollectionUnitTests:
		return store.TestDeleted{ID: id}
	case classroom.CollectionChatGroups:
		return store.ChatGroupDeleted{ID: id}
	default:
		return store.MessageDeleted{ID: id}
	}
}

// testFromHint returns the test id a broadcast hint asks to refetch.
func testFromHint(b feed.Broadcast) (string, bool) {
	switch b.Event {
	case feed.HintSubmission, feed.HintStudentJoin, feed.HintTestActivated:
		return b.TestID, b.TestID != ""
	default:
		return "", false
	}
}
