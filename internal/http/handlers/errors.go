package handlers

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

var (
	errNotLoaded = errors.New("snapshot not loaded yet")
	errNoProfile = errors.New("signed-in profile is not in the store")
)

func errMissing(kind, id string) error { return fmt.Errorf("%s %s not found", kind, id) }

func sortProgress(ps []*classroom.RoundProgress) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].UnitID != ps[j].UnitID {
			return ps[i].UnitID < ps[j].UnitID
		}
		return ps[i].RoundID < ps[j].RoundID
	})
}
