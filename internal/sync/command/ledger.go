package command

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusRolledBack Status = "rolled_back"
)

// Entry records one optimistic write from apply to settlement.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Command   string    `json:"command"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	SettledAt time.Time `json:"settled_at,omitempty"`
}

const defaultLedgerSize = 256

// Ledger keeps the most recent optimistic writes, oldest first.
type Ledger struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

func NewLedger(max int) *Ledger {
	if max <= 0 {
		max = defaultLedgerSize
	}
	return &Ledger{max: max}
}

func (l *Ledger) begin(command string, at time.Time) uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := Entry{ID: uuid.New(), Command: command, Status: StatusPending, StartedAt: at}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}
	return e.ID
}

func (l *Ledger) settle(id uuid.UUID, status Status, err error, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ID != id {
			continue
		}
		l.entries[i].Status = status
		l.entries[i].SettledAt = at
		if err != nil {
			l.entries[i].Error = err.Error()
		}
		return
	}
}

func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Pending counts writes still waiting on the backend.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Status == StatusPending {
			n++
		}
	}
	return n
}
