package store

import (
	"reflect"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

// upsertProgress replaces the whole record. A record for a (student, unit,
// round) triple already held under another id evicts that one, so the store
// never shows two progress rows for the same triple.
func upsertProgress(s *State, p classroom.RoundProgress) *State {
	if p.ID == "" {
		return s
	}
	cur, exists := s.Progress.Get(p.ID)
	if exists && reflect.DeepEqual(*cur, p) {
		return s
	}
	key := p.Key()
	n := s.clone()
	edit := s.Progress.edit()
	keys := cloneIndex(s.progressKey)
	ix := s.ProgressIndex

	if exists && cur.Key() != key {
		ix = ix.without(cur.Key())
		delete(keys, cur.Key())
	}
	if other, ok := keys[key]; ok && other != p.ID {
		edit.del(other)
	}
	rec := p
	edit.put(p.ID, &rec)
	keys[key] = p.ID
	ix = ix.with(key, &rec)

	n.Progress = edit.done()
	n.progressKey = keys
	n.ProgressIndex = ix
	return n
}

func deleteProgress(s *State, id string) *State {
	cur, ok := s.Progress.Get(id)
	if !ok {
		return s
	}
	n := s.clone()
	n.Progress = deleteRow(s.Progress, id)
	if s.progressKey[cur.Key()] == id {
		n.progressKey = cloneIndex(s.progressKey)
		delete(n.progressKey, cur.Key())
		n.ProgressIndex = s.ProgressIndex.without(cur.Key())
	}
	return n
}

// resetUnitProgress forgets every round of one unit for one student.
func resetUnitProgress(s *State, studentID, unitID string) *State {
	rounds, ok := s.ProgressIndex[studentID][unitID]
	if !ok {
		return s
	}
	n := s.clone()
	edit := s.Progress.edit()
	n.progressKey = cloneIndex(s.progressKey)
	for _, p := range rounds {
		edit.del(p.ID)
		delete(n.progressKey, p.Key())
	}
	n.Progress = edit.done()
	n.ProgressIndex = s.ProgressIndex.withoutUnit(studentID, unitID)
	return n
}

// upsertTest merges the row. A unit holds one test; a new test id for a unit
// replaces the one the store had.
func upsertTest(s *State, p classroom.UnitTestPatch) *State {
	tests, rec := upsertRow[classroom.UnitTest](s.Tests, p)
	if tests == s.Tests {
		return s
	}
	n := s.clone()
	prevUnit := ""
	if cur, ok := s.Tests.Get(p.ID); ok {
		prevUnit = cur.UnitID
	}
	if prevUnit != rec.UnitID || !s.Tests.Has(p.ID) {
		keys := cloneIndex(s.unitTest)
		if prevUnit != "" && keys[prevUnit] == p.ID {
			delete(keys, prevUnit)
		}
		if rec.UnitID != "" {
			if other, ok := keys[rec.UnitID]; ok && other != p.ID {
				tests = deleteRow(tests, other)
			}
			keys[rec.UnitID] = p.ID
		}
		n.unitTest = keys
	}
	n.Tests = tests
	return n
}

func deleteTest(s *State, id string) *State {
	cur, ok := s.Tests.Get(id)
	if !ok {
		return s
	}
	n := s.clone()
	n.Tests = deleteRow(s.Tests, id)
	if s.unitTest[cur.UnitID] == id {
		n.unitTest = cloneIndex(s.unitTest)
		delete(n.unitTest, cur.UnitID)
	}
	return n
}
