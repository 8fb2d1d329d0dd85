package store

import (
	"reflect"
	"slices"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

// put writes whole values over records the store already holds. Optimistic
// apply and revert both go through here, so replaying either one lands on
// the same state.
func put(s *State, p Put) *State {
	if p.Empty() {
		return s
	}
	n := s.clone()
	n.Users = replaceRows(s.Users, p.Users, userKey)
	n.Tests = replaceRows(s.Tests, p.Tests, testKey)
	n.Messages = replaceRows(s.Messages, p.Messages, messageKey)

	units := s.Units.edit()
	for _, u := range p.Units {
		cur, ok := units.get(u.ID)
		if !ok {
			continue
		}
		u.Rounds = cur.Rounds
		if reflect.DeepEqual(*cur, u) {
			continue
		}
		units.put(u.ID, &u)
	}
	n.Units = units.done()
	n.Units = putWords(n, p.Words)
	if n.Units != s.Units {
		refreshUnlocked(n)
	}

	if n.Users == s.Users && n.Tests == s.Tests && n.Messages == s.Messages && n.Units == s.Units {
		return s
	}
	return n
}

func replaceRows[T any](t *Table[T], rows []T, id func(*T) string) *Table[T] {
	if len(rows) == 0 {
		return t
	}
	edit := t.edit()
	for i := range rows {
		r := rows[i]
		key := id(&r)
		cur, ok := edit.get(key)
		if !ok || reflect.DeepEqual(*cur, r) {
			continue
		}
		edit.put(key, &r)
	}
	return edit.done()
}

// putWords replaces words in place. A word is never moved between rounds by
// an optimistic write.
func putWords(n *State, words []classroom.Word) *Table[classroom.Unit] {
	if len(words) == 0 {
		return n.Units
	}
	edit := n.Units.edit()
	for _, w := range words {
		roundID, ok := n.wordRound[w.ID]
		if !ok {
			continue
		}
		u, ok := edit.get(n.roundUnit[roundID])
		if !ok {
			continue
		}
		ri := u.RoundIndex(roundID)
		if ri < 0 {
			continue
		}
		wi := u.Rounds[ri].WordIndex(w.ID)
		if wi < 0 {
			continue
		}
		w.RoundID = roundID
		if reflect.DeepEqual(u.Rounds[ri].Words[wi], w) {
			continue
		}
		next := *u
		next.Rounds = slices.Clone(u.Rounds)
		next.Rounds[ri] = withWord(next.Rounds[ri], w)
		edit.put(next.ID, &next)
	}
	return edit.done()
}

// unchangedSince keeps the prior records whose current value is still the
// applied one. A record with no applied counterpart is always kept.
func unchangedSince(s *State, prior, applied Put) Put {
	return Put{
		Users: stillApplied(prior.Users, applied.Users, userKey, s.Users.Get, equalRows[classroom.User]),
		Units: stillApplied(prior.Units, applied.Units, unitKey, s.Units.Get, func(cur *classroom.Unit, a classroom.Unit) bool {
			a.Rounds = cur.Rounds
			return reflect.DeepEqual(*cur, a)
		}),
		Words: stillApplied(prior.Words, applied.Words, wordKey, s.wordAt, func(cur *classroom.Word, a classroom.Word) bool {
			a.RoundID = cur.RoundID
			return reflect.DeepEqual(*cur, a)
		}),
		Tests:    stillApplied(prior.Tests, applied.Tests, testKey, s.Tests.Get, equalRows[classroom.UnitTest]),
		Messages: stillApplied(prior.Messages, applied.Messages, messageKey, s.Messages.Get, equalRows[classroom.ChatMessage]),
	}
}

func stillApplied[T any](prior, applied []T, id func(*T) string, current func(string) (*T, bool), same func(*T, T) bool) []T {
	if len(prior) == 0 {
		return nil
	}
	want := make(map[string]T, len(applied))
	for i := range applied {
		want[id(&applied[i])] = applied[i]
	}
	out := make([]T, 0, len(prior))
	for i := range prior {
		a, ok := want[id(&prior[i])]
		if ok {
			cur, held := current(id(&prior[i]))
			if !held || !same(cur, a) {
				continue
			}
		}
		out = append(out, prior[i])
	}
	return out
}

func equalRows[T any](cur *T, a T) bool { return reflect.DeepEqual(*cur, a) }

func (s *State) wordAt(id string) (*classroom.Word, bool) {
	w, ok := s.Word(id)
	return &w, ok
}

func userKey(u *classroom.User) string           { return u.ID }
func unitKey(u *classroom.Unit) string           { return u.ID }
func wordKey(w *classroom.Word) string           { return w.ID }
func testKey(t *classroom.UnitTest) string       { return t.ID }
func messageKey(m *classroom.ChatMessage) string { return m.ID }
