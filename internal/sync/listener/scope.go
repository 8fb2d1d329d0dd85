package listener

import (
	"slices"

	"github.com/yungbote/classsync/internal/sync/store"
)

// dispatch hands ev to the store unless it falls outside what a snapshot for
// the signed-in user would hold. Callers hold l.mu.
func (l *Listener) dispatch(ev store.Event) {
	if !l.inScope(l.store.State(), ev) {
		l.metrics.IncIgnored("rows", reasonNotMember)
		return
	}
	l.store.Dispatch(ev)
}

// inScope keeps chat groups to those the user belongs to and messages to
// groups the store holds. Losing membership of a held group reloads the
// snapshot, which drops the group and its history.
func (l *Listener) inScope(s *store.State, ev store.Event) bool {
	if l.cfg.UserID == "" {
		return true
	}
	switch e := ev.(type) {
	case store.ChatGroupUpserted:
		held := s.ChatGroups.Has(e.Patch.ID)
		if e.Patch.Members == nil {
			return held
		}
		if slices.Contains(e.Patch.Members, l.cfg.UserID) {
			return true
		}
		if held {
			l.log.Info("Removed from chat group, reloading snapshot", "group_id", e.Patch.ID)
			l.RequestResync()
		}
		return false
	case store.MessageUpserted:
		if e.Patch.ChatGroupID == nil {
			return s.Messages.Has(e.Patch.ID)
		}
		return s.ChatGroups.Has(*e.Patch.ChatGroupID)
	default:
		return true
	}
}
