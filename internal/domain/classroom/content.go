package classroom

import (
	"sort"
	"time"
)

type Word struct {
	ID            string    `json:"id"`
	RoundID       string    `json:"round_id"`
	English       string    `json:"english"`
	Translation   string    `json:"russian"`
	Transcription string    `json:"transcription"`
	ImageURL      string    `json:"image_url"`
	CreatedAt     time.Time `json:"created_at"`
}

type Round struct {
	ID        string    `json:"id"`
	UnitID    string    `json:"unit_id"`
	Title     string    `json:"title"`
	Words     []Word    `json:"words"`
	CreatedAt time.Time `json:"created_at"`
}

// Unit owns its rounds, which own their words. Deleting a unit on the backend
// cascades to both.
type Unit struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Unlocked    bool      `json:"unlocked"`
	UnitNumber  int       `json:"unit_number"`
	Rounds      []Round   `json:"rounds"`
	CreatedAt   time.Time `json:"created_at"`
}

// Words returns every word of every round in round order.
func (u Unit) Words() []Word {
	n := 0
	for _, r := range u.Rounds {
		n += len(r.Words)
	}
	out := make([]Word, 0, n)
	for _, r := range u.Rounds {
		out = append(out, r.Words...)
	}
	return out
}

func (u Unit) RoundIndex(roundID string) int {
	for i := range u.Rounds {
		if u.Rounds[i].ID == roundID {
			return i
		}
	}
	return -1
}

func (r Round) WordIndex(wordID string) int {
	for i := range r.Words {
		if r.Words[i].ID == wordID {
			return i
		}
	}
	return -1
}

// UnitPatch is a top-level units row. Row events for units never carry
// rounds, so a patch has no way to touch them.
type UnitPatch struct {
	ID          string     `json:"id"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Icon        *string    `json:"icon,omitempty"`
	Unlocked    *bool      `json:"unlocked,omitempty"`
	UnitNumber  *int       `json:"unit_number,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func (p UnitPatch) RecordID() string { return p.ID }

func (p UnitPatch) Apply(u Unit) Unit {
	if p.Title != nil {
		u.Title = *p.Title
	}
	if p.Description != nil {
		u.Description = *p.Description
	}
	if p.Icon != nil {
		u.Icon = *p.Icon
	}
	if p.Unlocked != nil {
		u.Unlocked = *p.Unlocked
	}
	if p.UnitNumber != nil {
		u.UnitNumber = *p.UnitNumber
	}
	if p.CreatedAt != nil {
		u.CreatedAt = *p.CreatedAt
	}
	return u
}

func (p UnitPatch) New() Unit { return p.Apply(Unit{ID: p.ID}) }

type RoundPatch struct {
	ID        string     `json:"id"`
	UnitID    *string    `json:"unit_id,omitempty"`
	Title     *string    `json:"title,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (p RoundPatch) RecordID() string { return p.ID }

func (p RoundPatch) Apply(r Round) Round {
	if p.UnitID != nil {
		r.UnitID = *p.UnitID
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.CreatedAt != nil {
		r.CreatedAt = *p.CreatedAt
	}
	return r
}

func (p RoundPatch) New() Round { return p.Apply(Round{ID: p.ID}) }

type WordPatch struct {
	ID            string     `json:"id"`
	RoundID       *string    `json:"round_id,omitempty"`
	English       *string    `json:"english,omitempty"`
	Translation   *string    `json:"russian,omitempty"`
	Transcription *string    `json:"transcription,omitempty"`
	ImageURL      *string    `json:"image_url,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

func (p WordPatch) RecordID() string { return p.ID }

func (p WordPatch) Apply(w Word) Word {
	if p.RoundID != nil {
		w.RoundID = *p.RoundID
	}
	if p.English != nil {
		w.English = *p.English
	}
	if p.Translation != nil {
		w.Translation = *p.Translation
	}
	if p.Transcription != nil {
		w.Transcription = *p.Transcription
	}
	if p.ImageURL != nil {
		w.ImageURL = *p.ImageURL
	}
	if p.CreatedAt != nil {
		w.CreatedAt = *p.CreatedAt
	}
	return w
}

func (p WordPatch) New() Word { return p.Apply(Word{ID: p.ID}) }

// SortUnits orders units by unit number, then id.
func SortUnits(units []*Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].UnitNumber != units[j].UnitNumber {
			return units[i].UnitNumber < units[j].UnitNumber
		}
		return units[i].ID < units[j].ID
	})
}

// SortRounds orders rounds, and the words inside each, by creation time then id.
func SortRounds(rounds []Round) {
	sort.SliceStable(rounds, func(i, j int) bool {
		return createdBefore(rounds[i].CreatedAt, rounds[i].ID, rounds[j].CreatedAt, rounds[j].ID)
	})
	for i := range rounds {
		words := rounds[i].Words
		sort.SliceStable(words, func(a, b int) bool {
			return createdBefore(words[a].CreatedAt, words[a].ID, words[b].CreatedAt, words[b].ID)
		})
	}
}

func createdBefore(at time.Time, id string, bt time.Time, bid string) bool {
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return id < bid
}
