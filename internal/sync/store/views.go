package store

import (
	"slices"
	"sort"
	"strings"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

func (s *State) User(id string) (*classroom.User, bool) { return s.Users.Get(id) }

func (s *State) Unit(id string) (*classroom.Unit, bool) { return s.Units.Get(id) }

func (s *State) Test(id string) (*classroom.UnitTest, bool) { return s.Tests.Get(id) }

func (s *State) Message(id string) (*classroom.ChatMessage, bool) { return s.Messages.Get(id) }

// SortedUnits returns every unit in unit-number order.
func (s *State) SortedUnits() []*classroom.Unit {
	units := s.Units.Values()
	classroom.SortUnits(units)
	return units
}

func (s *State) IsUnlocked(unitID string) bool {
	return slices.Contains(s.UnlockedUnits, unitID)
}

// UnitOfRound resolves a round to its owning unit.
func (s *State) UnitOfRound(roundID string) (string, bool) {
	id, ok := s.roundUnit[roundID]
	return id, ok
}

// RoundOfWord resolves a word to its owning round.
func (s *State) RoundOfWord(wordID string) (string, bool) {
	id, ok := s.wordRound[wordID]
	return id, ok
}

// Word finds a word anywhere in the content tree.
func (s *State) Word(wordID string) (classroom.Word, bool) {
	roundID, ok := s.wordRound[wordID]
	if !ok {
		return classroom.Word{}, false
	}
	u, ok := s.Units.Get(s.roundUnit[roundID])
	if !ok {
		return classroom.Word{}, false
	}
	ri := u.RoundIndex(roundID)
	if ri < 0 {
		return classroom.Word{}, false
	}
	wi := u.Rounds[ri].WordIndex(wordID)
	if wi < 0 {
		return classroom.Word{}, false
	}
	return u.Rounds[ri].Words[wi], true
}

// ProgressByKey looks a record up by its natural key.
func (s *State) ProgressByKey(k classroom.ProgressKey) (*classroom.RoundProgress, bool) {
	return s.ProgressIndex.Get(k.StudentID, k.UnitID, k.RoundID)
}

// TestForUnit returns the single test of a unit.
func (s *State) TestForUnit(unitID string) (*classroom.UnitTest, bool) {
	id, ok := s.unitTest[unitID]
	if !ok {
		return nil, false
	}
	return s.Tests.Get(id)
}

func (s *State) SortedTests() []*classroom.UnitTest {
	tests := s.Tests.Values()
	sort.SliceStable(tests, func(i, j int) bool {
		return compareCreated(tests[i].CreatedAt.UnixNano(), tests[i].ID, tests[j].CreatedAt.UnixNano(), tests[j].ID) < 0
	})
	return tests
}

// ChatGroupsFor lists the groups userID is a member of, by name.
func (s *State) ChatGroupsFor(userID string) []*classroom.ChatGroup {
	var out []*classroom.ChatGroup
	for _, g := range s.ChatGroups.Values() {
		if g.HasMember(userID) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !strings.EqualFold(out[i].Name, out[j].Name) {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MessagesIn returns a group's messages oldest first.
func (s *State) MessagesIn(groupID string) []*classroom.ChatMessage {
	var out []*classroom.ChatMessage
	for _, m := range s.Messages.Values() {
		if m.ChatGroupID == groupID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return compareCreated(out[i].CreatedAt.UnixNano(), out[i].ID, out[j].CreatedAt.UnixNano(), out[j].ID) < 0
	})
	return out
}

// UnreadIn counts messages in a group sent by others that userID has not read.
func (s *State) UnreadIn(groupID, userID string) int {
	n := 0
	for _, m := range s.Messages.Values() {
		if m.ChatGroupID == groupID && m.SenderID != userID && !m.ReadByUser(userID) {
			n++
		}
	}
	return n
}

func (s *State) IsOnline(userID string) bool {
	_, ok := s.Online[userID]
	return ok
}

func (s *State) OnlineIDs() []string {
	ids := make([]string, 0, len(s.Online))
	for id := range s.Online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
