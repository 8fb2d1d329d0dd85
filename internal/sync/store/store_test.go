package store

import (
	"sync"
	"testing"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/pkg/pointers"
)

type countingObserver struct {
	mu      sync.Mutex
	changed map[string]int
	noop    map[string]int
}

func (o *countingObserver) Reduced(kind string, changed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if changed {
		o.changed[kind]++
	} else {
		o.noop[kind]++
	}
}

func TestStoreDispatchNotifiesOnChangeOnly(t *testing.T) {
	obs := &countingObserver{changed: map[string]int{}, noop: map[string]int{}}
	st := New(nil, WithObserver(obs))

	var got []Change
	cancel := st.Subscribe(func(c Change) { got = append(got, c) })

	st.Dispatch(SnapshotLoaded{Snapshot: Snapshot{Units: []classroom.Unit{{ID: "U1"}}}})
	st.Dispatch(UnitDeleted{ID: "missing"})
	st.Dispatch(UnitUpserted{Patch: classroom.UnitPatch{ID: "U1", Unlocked: pointers.Bool(true)}})

	if len(got) != 2 {
		t.Fatalf("notifications: want 2 got=%d", len(got))
	}
	if got[1].Prev != got[0].Next {
		t.Fatalf("changes are not chained in dispatch order")
	}
	if st.State().Version != 2 {
		t.Fatalf("version: want 2 got=%d", st.State().Version)
	}
	if obs.noop["unit_deleted"] != 1 || obs.changed["unit_upserted"] != 1 {
		t.Fatalf("observer counts: changed=%v noop=%v", obs.changed, obs.noop)
	}

	cancel()
	st.Dispatch(PresenceJoined{UserID: "u1"})
	if len(got) != 2 {
		t.Fatalf("cancelled subscriber still notified")
	}
}

func TestStoreSerializesConcurrentDispatch(t *testing.T) {
	st := New(nil)
	st.Dispatch(SnapshotLoaded{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Dispatch(PresenceJoined{UserID: string(rune('a' + i%26))})
		}(i)
	}
	wg.Wait()
	if n := len(st.State().Online); n != 26 {
		t.Fatalf("online: want 26 got=%d", n)
	}
	// One version per effective change plus the snapshot.
	if v := st.State().Version; v != 27 {
		t.Fatalf("version: want 27 got=%d", v)
	}
}
