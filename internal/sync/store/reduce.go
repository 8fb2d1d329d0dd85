package store

import (
	"maps"
	"reflect"
	"slices"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

// Reduce returns the state after ev. It never fails: an event that does not
// apply (unknown id, missing parent, duplicate) returns s itself, and an
// event that does apply shares every untouched table, record and index with s.
func Reduce(s *State, ev Event) *State {
	if s == nil {
		s = Empty()
	}
	next := reduce(s, ev)
	if next == s {
		return s
	}
	next.Version = s.Version + 1
	return next
}

func reduce(s *State, ev Event) *State {
	switch e := ev.(type) {
	case SnapshotLoaded:
		return loadSnapshot(s, e.Snapshot)
	case UserUpserted:
		return upsertUser(s, e.Patch)
	case UserDeleted:
		return deleteUser(s, e.ID)
	case UnitUpserted:
		return upsertUnit(s, e.Patch)
	case UnitDeleted:
		return deleteUnit(s, e.ID)
	case RoundUpserted:
		return upsertRound(s, e.Patch)
	case RoundDeleted:
		return deleteRound(s, e.ID)
	case WordUpserted:
		return upsertWord(s, e.Patch)
	case WordDeleted:
		return deleteWord(s, e.ID)
	case ProgressUpserted:
		return upsertProgress(s, e.Record)
	case ProgressDeleted:
		return deleteProgress(s, e.ID)
	case TestUpserted:
		return upsertTest(s, e.Patch)
	case TestDeleted:
		return deleteTest(s, e.ID)
	case ChatGroupUpserted:
		return upsertChatGroup(s, e.Patch)
	case ChatGroupDeleted:
		return deleteChatGroup(s, e.ID)
	case MessageUpserted:
		return upsertMessage(s, e.Patch)
	case MessageDeleted:
		return deleteMessage(s, e.ID)
	case PresenceSynced:
		return syncPresence(s, e.UserIDs)
	case PresenceJoined:
		return joinPresence(s, e.UserID)
	case PresenceLeft:
		return leavePresence(s, e)
	case MessagesRead:
		return markMessagesRead(s, e)
	case AvatarChanged:
		return changeAvatar(s, e.UserID, e.URL)
	case UnitProgressReset:
		return resetUnitProgress(s, e.StudentID, e.UnitID)
	case ChatHistoryCleared:
		return clearChatHistory(s, e.GroupID)
	case OptimisticApplied:
		return put(s, e.Put)
	case OptimisticReverted:
		return put(s, unchangedSince(s, e.Put, e.Applied))
	default:
		return s
	}
}

type patcher[T any] interface {
	RecordID() string
	Apply(T) T
	New() T
}

// upsertRow merges p into t. The returned table is t itself when nothing
// changed.
func upsertRow[T any](t *Table[T], p patcher[T]) (*Table[T], *T) {
	id := p.RecordID()
	if id == "" {
		return t, nil
	}
	var next T
	if cur, ok := t.Get(id); ok {
		next = p.Apply(*cur)
		if reflect.DeepEqual(*cur, next) {
			return t, cur
		}
	} else {
		next = p.New()
	}
	return t.with(id, &next), &next
}

func deleteRow[T any](t *Table[T], id string) *Table[T] {
	e := t.edit()
	e.del(id)
	return e.done()
}

func loadSnapshot(s *State, snap Snapshot) *State {
	n := Empty()
	n.Loaded = true
	n.Online = s.Online
	n.Degraded = slices.Clone(snap.Degraded)

	users := n.Users.edit()
	for i := range snap.Users {
		u := snap.Users[i]
		if u.ID != "" {
			users.put(u.ID, &u)
		}
	}
	n.Users = users.done()

	units := n.Units.edit()
	for i := range snap.Units {
		u := normalizeUnit(snap.Units[i])
		if u.ID == "" {
			continue
		}
		units.put(u.ID, &u)
		for _, r := range u.Rounds {
			n.roundUnit[r.ID] = u.ID
			for _, w := range r.Words {
				n.wordRound[w.ID] = r.ID
			}
		}
	}
	n.Units = units.done()
	n.UnlockedUnits = unlockedUnits(n.Units)

	// Later rows win for a duplicated natural key.
	progress := n.Progress.edit()
	for i := range snap.Progress {
		p := snap.Progress[i]
		if p.ID == "" {
			continue
		}
		if other, ok := n.progressKey[p.Key()]; ok {
			progress.del(other)
		}
		progress.put(p.ID, &p)
		n.progressKey[p.Key()] = p.ID
	}
	n.Progress = progress.done()
	n.ProgressIndex = buildProgressIndex(n.Progress)

	tests := n.Tests.edit()
	for i := range snap.Tests {
		t := snap.Tests[i]
		if t.ID == "" {
			continue
		}
		t.Results = classroom.DedupeResults(t.Results)
		if other, ok := n.unitTest[t.UnitID]; ok && t.UnitID != "" {
			tests.del(other)
		}
		tests.put(t.ID, &t)
		if t.UnitID != "" {
			n.unitTest[t.UnitID] = t.ID
		}
	}
	n.Tests = tests.done()

	groups := n.ChatGroups.edit()
	for i := range snap.ChatGroups {
		g := snap.ChatGroups[i]
		if g.ID != "" {
			groups.put(g.ID, &g)
		}
	}
	n.ChatGroups = groups.done()

	msgs := n.Messages.edit()
	for i := range snap.Messages {
		m := snap.Messages[i]
		if m.ID == "" {
			continue
		}
		m.ReadBy = classroom.DedupeReceipts(m.ReadBy)
		msgs.put(m.ID, &m)
	}
	n.Messages = msgs.done()
	return n
}

// normalizeUnit copies the nested slices so sorting never touches memory the
// caller or an older state still holds.
func normalizeUnit(u classroom.Unit) classroom.Unit {
	rounds := make([]classroom.Round, len(u.Rounds))
	for i, r := range u.Rounds {
		r.UnitID = u.ID
		words := make([]classroom.Word, len(r.Words))
		for j, w := range r.Words {
			w.RoundID = r.ID
			words[j] = w
		}
		r.Words = words
		rounds[i] = r
	}
	classroom.SortRounds(rounds)
	u.Rounds = rounds
	return u
}

func unlockedUnits(units *Table[classroom.Unit]) []string {
	var open []*classroom.Unit
	for _, u := range units.Values() {
		if u.Unlocked {
			open = append(open, u)
		}
	}
	classroom.SortUnits(open)
	ids := make([]string, len(open))
	for i, u := range open {
		ids[i] = u.ID
	}
	return ids
}

// refreshUnlocked recomputes the unlocked list, keeping the old slice when
// its contents did not change.
func refreshUnlocked(n *State) {
	ids := unlockedUnits(n.Units)
	if !slices.Equal(ids, n.UnlockedUnits) {
		n.UnlockedUnits = ids
	}
}

func buildProgressIndex(t *Table[classroom.RoundProgress]) ProgressIndex {
	ix := ProgressIndex{}
	for _, p := range t.Values() {
		units, ok := ix[p.StudentID]
		if !ok {
			units = map[string]map[string]*classroom.RoundProgress{}
			ix[p.StudentID] = units
		}
		rounds, ok := units[p.UnitID]
		if !ok {
			rounds = map[string]*classroom.RoundProgress{}
			units[p.UnitID] = rounds
		}
		rounds[p.RoundID] = p
	}
	return ix
}

func cloneIndex[K comparable, V any](m map[K]V) map[K]V {
	out := maps.Clone(m)
	if out == nil {
		out = map[K]V{}
	}
	return out
}
