package store

import (
	"reflect"
	"slices"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

func upsertUnit(s *State, p classroom.UnitPatch) *State {
	units, _ := upsertRow[classroom.Unit](s.Units, p)
	if units == s.Units {
		return s
	}
	n := s.clone()
	n.Units = units
	refreshUnlocked(n)
	return n
}

// deleteUnit drops the unit and its ownership entries. Child delete events
// that follow from the backend cascade then find nothing and are no-ops.
func deleteUnit(s *State, id string) *State {
	u, ok := s.Units.Get(id)
	if !ok {
		return s
	}
	n := s.clone()
	n.Units = deleteRow(s.Units, id)
	if len(u.Rounds) > 0 {
		n.roundUnit = cloneIndex(s.roundUnit)
		n.wordRound = cloneIndex(s.wordRound)
		for _, r := range u.Rounds {
			delete(n.roundUnit, r.ID)
			for _, w := range r.Words {
				delete(n.wordRound, w.ID)
			}
		}
	}
	refreshUnlocked(n)
	return n
}

// unitWork stages modified unit values on top of a state so a change that
// spans two units commits as one table write.
type unitWork struct {
	s     *State
	units map[string]classroom.Unit
}

func newUnitWork(s *State) *unitWork {
	return &unitWork{s: s, units: map[string]classroom.Unit{}}
}

func (w *unitWork) get(id string) (classroom.Unit, bool) {
	if u, ok := w.units[id]; ok {
		return u, true
	}
	p, ok := w.s.Units.Get(id)
	if !ok {
		return classroom.Unit{}, false
	}
	return *p, true
}

func (w *unitWork) set(u classroom.Unit) { w.units[u.ID] = u }

func (w *unitWork) commit(n *State) {
	e := n.Units.edit()
	for id := range w.units {
		u := w.units[id]
		e.put(id, &u)
	}
	n.Units = e.done()
}

func withRound(u classroom.Unit, r classroom.Round) classroom.Unit {
	rounds := slices.Clone(u.Rounds)
	if i := u.RoundIndex(r.ID); i >= 0 {
		rounds[i] = r
	} else {
		rounds = append(rounds, r)
	}
	sortRoundsOnly(rounds)
	u.Rounds = rounds
	return u
}

func withoutRound(u classroom.Unit, roundID string) classroom.Unit {
	i := u.RoundIndex(roundID)
	if i < 0 {
		return u
	}
	u.Rounds = slices.Delete(slices.Clone(u.Rounds), i, i+1)
	return u
}

func withWord(r classroom.Round, w classroom.Word) classroom.Round {
	words := slices.Clone(r.Words)
	if i := r.WordIndex(w.ID); i >= 0 {
		words[i] = w
	} else {
		words = append(words, w)
	}
	slices.SortStableFunc(words, func(a, b classroom.Word) int {
		return compareCreated(a.CreatedAt.UnixNano(), a.ID, b.CreatedAt.UnixNano(), b.ID)
	})
	r.Words = words
	return r
}

func withoutWord(r classroom.Round, wordID string) classroom.Round {
	i := r.WordIndex(wordID)
	if i < 0 {
		return r
	}
	r.Words = slices.Delete(slices.Clone(r.Words), i, i+1)
	return r
}

// sortRoundsOnly orders rounds without touching their word slices, which may
// be shared with older states.
func sortRoundsOnly(rounds []classroom.Round) {
	slices.SortStableFunc(rounds, func(a, b classroom.Round) int {
		return compareCreated(a.CreatedAt.UnixNano(), a.ID, b.CreatedAt.UnixNano(), b.ID)
	})
}

func compareCreated(at int64, aid string, bt int64, bid string) int {
	switch {
	case at < bt:
		return -1
	case at > bt:
		return 1
	case aid < bid:
		return -1
	case aid > bid:
		return 1
	default:
		return 0
	}
}

// upsertRound attaches the round to its unit. A round whose unit the store
// does not hold is dropped; the unit's own insert event or the next snapshot
// brings it in.
func upsertRound(s *State, p classroom.RoundPatch) *State {
	if p.ID == "" {
		return s
	}
	work := newUnitWork(s)
	oldUnitID, known := s.roundUnit[p.ID]
	unitID := oldUnitID
	if p.UnitID != nil && *p.UnitID != "" {
		unitID = *p.UnitID
	}
	if _, ok := work.get(unitID); !ok {
		return s
	}

	var round classroom.Round
	if old, ok := work.get(oldUnitID); known && ok && old.RoundIndex(p.ID) >= 0 {
		cur := old.Rounds[old.RoundIndex(p.ID)]
		round = p.Apply(cur)
		round.UnitID = unitID
		if reflect.DeepEqual(cur, round) {
			return s
		}
		if oldUnitID != unitID {
			work.set(withoutRound(old, p.ID))
		}
	} else {
		round = p.New()
		round.UnitID = unitID
	}
	target, _ := work.get(unitID)
	work.set(withRound(target, round))

	n := s.clone()
	work.commit(n)
	if oldUnitID != unitID || !known {
		n.roundUnit = cloneIndex(s.roundUnit)
		n.roundUnit[p.ID] = unitID
	}
	return n
}

func deleteRound(s *State, id string) *State {
	unitID, ok := s.roundUnit[id]
	if !ok {
		return s
	}
	n := s.clone()
	n.roundUnit = cloneIndex(s.roundUnit)
	delete(n.roundUnit, id)
	if u, ok := s.Units.Get(unitID); ok {
		if i := u.RoundIndex(id); i >= 0 {
			if words := u.Rounds[i].Words; len(words) > 0 {
				n.wordRound = cloneIndex(s.wordRound)
				for _, w := range words {
					delete(n.wordRound, w.ID)
				}
			}
			next := withoutRound(*u, id)
			n.Units = s.Units.with(unitID, &next)
		}
	}
	return n
}

// upsertWord places the word in its round, moving it when round_id changed.
func upsertWord(s *State, p classroom.WordPatch) *State {
	if p.ID == "" {
		return s
	}
	work := newUnitWork(s)
	oldRoundID, known := s.wordRound[p.ID]
	roundID := oldRoundID
	if p.RoundID != nil && *p.RoundID != "" {
		roundID = *p.RoundID
	}
	unitID, ok := s.roundUnit[roundID]
	if !ok {
		return s
	}
	if _, ok := work.get(unitID); !ok {
		return s
	}

	var word classroom.Word
	moved := false
	oldUnitID := s.roundUnit[oldRoundID]
	if old, ok := work.get(oldUnitID); known && ok {
		ri := old.RoundIndex(oldRoundID)
		wi := -1
		if ri >= 0 {
			wi = old.Rounds[ri].WordIndex(p.ID)
		}
		if wi >= 0 {
			cur := old.Rounds[ri].Words[wi]
			word = p.Apply(cur)
			word.RoundID = roundID
			if reflect.DeepEqual(cur, word) {
				return s
			}
			if oldRoundID != roundID {
				rounds := slices.Clone(old.Rounds)
				rounds[ri] = withoutWord(rounds[ri], p.ID)
				old.Rounds = rounds
				work.set(old)
				moved = true
			}
		} else {
			known = false
		}
	}
	if !known {
		word = p.New()
		word.RoundID = roundID
	}

	target, _ := work.get(unitID)
	ri := target.RoundIndex(roundID)
	if ri < 0 {
		return s
	}
	rounds := slices.Clone(target.Rounds)
	rounds[ri] = withWord(rounds[ri], word)
	target.Rounds = rounds
	work.set(target)

	n := s.clone()
	work.commit(n)
	if moved || !known {
		n.wordRound = cloneIndex(s.wordRound)
		n.wordRound[p.ID] = roundID
	}
	return n
}

func deleteWord(s *State, id string) *State {
	roundID, ok := s.wordRound[id]
	if !ok {
		return s
	}
	n := s.clone()
	n.wordRound = cloneIndex(s.wordRound)
	delete(n.wordRound, id)
	unitID := s.roundUnit[roundID]
	if u, ok := s.Units.Get(unitID); ok {
		if ri := u.RoundIndex(roundID); ri >= 0 {
			next := *u
			next.Rounds = slices.Clone(u.Rounds)
			next.Rounds[ri] = withoutWord(next.Rounds[ri], id)
			n.Units = s.Units.with(unitID, &next)
		}
	}
	return n
}
