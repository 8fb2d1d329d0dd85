package classroom

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrTooFewMembers    = errors.New("a chat group needs at least two members")
	ErrCreatorNotMember = errors.New("the creating teacher must be a member of the group")
)

type ChatGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether userID belongs to the group.
func (g ChatGroup) HasMember(userID string) bool { return slices.Contains(g.Members, userID) }

// ValidateMembers checks the membership a teacher submits when creating a
// group. Duplicate ids are collapsed before counting.
func ValidateMembers(creatorID string, members []string) ([]string, error) {
	out := make([]string, 0, len(members)+1)
	for _, m := range members {
		if m != "" && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	if !slices.Contains(out, creatorID) {
		return nil, ErrCreatorNotMember
	}
	if len(out) < 2 {
		return nil, ErrTooFewMembers
	}
	return out, nil
}

type ReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type ChatMessage struct {
	ID          string        `json:"id"`
	ChatGroupID string        `json:"chat_group_id"`
	SenderID    string        `json:"sender_id"`
	Content     string        `json:"content"`
	ReadBy      []ReadReceipt `json:"read_by"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (m ChatMessage) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MarkRead appends a receipt for userID. The first receipt wins: a user that
// already read the message leaves it untouched and the bool is false.
func (m ChatMessage) MarkRead(userID string, at time.Time) (ChatMessage, bool) {
	if userID == "" || m.ReadByUser(userID) {
		return m, false
	}
	receipts := make([]ReadReceipt, len(m.ReadBy), len(m.ReadBy)+1)
	copy(receipts, m.ReadBy)
	m.ReadBy = append(receipts, ReadReceipt{UserID: userID, ReadAt: at.UTC()})
	return m, true
}

// DedupeReceipts keeps the first receipt per user.
func DedupeReceipts(in []ReadReceipt) []ReadReceipt {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]ReadReceipt, 0, len(in))
	for _, r := range in {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, r)
	}
	if len(out) == len(in) {
		return in
	}
	return out
}

type ChatGroupPatch struct {
	ID        string     `json:"id"`
	Name      *string    `json:"name,omitempty"`
	Members   []string   `json:"members,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (p ChatGroupPatch) RecordID() string { return p.ID }

func (p ChatGroupPatch) Apply(g ChatGroup) ChatGroup {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Members != nil {
		g.Members = p.Members
	}
	if p.AvatarURL != nil {
		g.AvatarURL = *p.AvatarURL
	}
	if p.CreatedAt != nil {
		g.CreatedAt = *p.CreatedAt
	}
	return g
}

func (p ChatGroupPatch) New() ChatGroup { return p.Apply(ChatGroup{ID: p.ID}) }

type ChatMessagePatch struct {
	ID          string        `json:"id"`
	ChatGroupID *string       `json:"chat_group_id,omitempty"`
	SenderID    *string       `json:"sender_id,omitempty"`
	Content     *string       `json:"content,omitempty"`
	ReadBy      []ReadReceipt `json:"read_by,omitempty"`
	CreatedAt   *time.Time    `json:"created_at,omitempty"`
}

func (p ChatMessagePatch) RecordID() string { return p.ID }

// Apply merges present fields. Incoming receipts never drop or re-stamp a
// receipt the store already holds.
func (p ChatMessagePatch) Apply(m ChatMessage) ChatMessage {
	if p.ChatGroupID != nil {
		m.ChatGroupID = *p.ChatGroupID
	}
	if p.SenderID != nil {
		m.SenderID = *p.SenderID
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.ReadBy != nil {
		m.ReadBy = mergeReceipts(m.ReadBy, p.ReadBy)
	}
	if p.CreatedAt != nil {
		m.CreatedAt = *p.CreatedAt
	}
	return m
}

func (p ChatMessagePatch) New() ChatMessage { return p.Apply(ChatMessage{ID: p.ID}) }

// AsPatch is the full-row patch of m.
func (m ChatMessage) AsPatch() ChatMessagePatch {
	return ChatMessagePatch{
		ID:          m.ID,
		ChatGroupID: &m.ChatGroupID,
		SenderID:    &m.SenderID,
		Content:     &m.Content,
		ReadBy:      nonNil(m.ReadBy),
		CreatedAt:   &m.CreatedAt,
	}
}

func mergeReceipts(have, incoming []ReadReceipt) []ReadReceipt {
	if len(have) == 0 {
		return DedupeReceipts(incoming)
	}
	out := slices.Clone(have)
	changed := false
	for _, r := range incoming {
		if slices.ContainsFunc(out, func(x ReadReceipt) bool { return x.UserID == r.UserID }) {
			continue
		}
		out = append(out, r)
		changed = true
	}
	if !changed {
		return have
	}
	return out
}
