package store

import (
	"maps"
	"slices"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

// State is one published version of the client-side projection. A State is
// never modified after Reduce returns it.
type State struct {
	Version uint64
	Loaded  bool
	// Degraded lists the non-critical collections that failed to load and
	// are shown empty.
	Degraded []classroom.Collection

	Users      *Table[classroom.User]
	Units      *Table[classroom.Unit]
	Progress   *Table[classroom.RoundProgress]
	Tests      *Table[classroom.UnitTest]
	ChatGroups *Table[classroom.ChatGroup]
	Messages   *Table[classroom.ChatMessage]

	// UnlockedUnits holds the ids of unlocked units in unit order.
	UnlockedUnits []string
	ProgressIndex ProgressIndex
	Online        map[string]struct{}

	roundUnit   map[string]string
	wordRound   map[string]string
	progressKey map[classroom.ProgressKey]string
	unitTest    map[string]string
}

// Empty is the state before the first snapshot.
func Empty() *State {
	return &State{
		Users:         newTable[classroom.User](0),
		Units:         newTable[classroom.Unit](0),
		Progress:      newTable[classroom.RoundProgress](0),
		Tests:         newTable[classroom.UnitTest](0),
		ChatGroups:    newTable[classroom.ChatGroup](0),
		Messages:      newTable[classroom.ChatMessage](0),
		ProgressIndex: ProgressIndex{},
		Online:        map[string]struct{}{},
		roundUnit:     map[string]string{},
		wordRound:     map[string]string{},
		progressKey:   map[classroom.ProgressKey]string{},
		unitTest:      map[string]string{},
	}
}

func (s *State) clone() *State {
	n := *s
	return &n
}

func (s *State) IsDegraded(c classroom.Collection) bool {
	return slices.Contains(s.Degraded, c)
}

// ProgressIndex nests progress as student -> unit -> round. It is copied
// along the written path only; sibling maps are shared between versions.
type ProgressIndex map[string]map[string]map[string]*classroom.RoundProgress

func (ix ProgressIndex) Get(studentID, unitID, roundID string) (*classroom.RoundProgress, bool) {
	p, ok := ix[studentID][unitID][roundID]
	return p, ok
}

func (ix ProgressIndex) with(k classroom.ProgressKey, p *classroom.RoundProgress) ProgressIndex {
	out := maps.Clone(ix)
	if out == nil {
		out = ProgressIndex{}
	}
	units := maps.Clone(ix[k.StudentID])
	if units == nil {
		units = map[string]map[string]*classroom.RoundProgress{}
	}
	rounds := maps.Clone(units[k.UnitID])
	if rounds == nil {
		rounds = map[string]*classroom.RoundProgress{}
	}
	rounds[k.RoundID] = p
	units[k.UnitID] = rounds
	out[k.StudentID] = units
	return out
}

func (ix ProgressIndex) without(k classroom.ProgressKey) ProgressIndex {
	if _, ok := ix.Get(k.StudentID, k.UnitID, k.RoundID); !ok {
		return ix
	}
	out := maps.Clone(ix)
	units := maps.Clone(ix[k.StudentID])
	rounds := maps.Clone(units[k.UnitID])
	delete(rounds, k.RoundID)
	if len(rounds) == 0 {
		delete(units, k.UnitID)
	} else {
		units[k.UnitID] = rounds
	}
	if len(units) == 0 {
		delete(out, k.StudentID)
	} else {
		out[k.StudentID] = units
	}
	return out
}

func (ix ProgressIndex) withoutUnit(studentID, unitID string) ProgressIndex {
	if _, ok := ix[studentID][unitID]; !ok {
		return ix
	}
	out := maps.Clone(ix)
	units := maps.Clone(ix[studentID])
	delete(units, unitID)
	if len(units) == 0 {
		delete(out, studentID)
	} else {
		out[studentID] = units
	}
	return out
}
