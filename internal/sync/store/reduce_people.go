package store

import (
	"maps"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

func upsertUser(s *State, p classroom.UserPatch) *State {
	users, _ := upsertRow[classroom.User](s.Users, p)
	if users == s.Users {
		return s
	}
	n := s.clone()
	n.Users = users
	return n
}

func deleteUser(s *State, id string) *State {
	if !s.Users.Has(id) {
		return s
	}
	n := s.clone()
	n.Users = deleteRow(s.Users, id)
	return n
}

func changeAvatar(s *State, userID, url string) *State {
	u, ok := s.Users.Get(userID)
	if !ok || u.AvatarURL == url {
		return s
	}
	next := *u
	next.AvatarURL = url
	n := s.clone()
	n.Users = s.Users.with(userID, &next)
	return n
}

// syncPresence replaces the online set wholesale.
func syncPresence(s *State, ids []string) *State {
	online := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			online[id] = struct{}{}
		}
	}
	if maps.Equal(online, s.Online) {
		return s
	}
	n := s.clone()
	n.Online = online
	return n
}

func joinPresence(s *State, id string) *State {
	if id == "" {
		return s
	}
	if _, ok := s.Online[id]; ok {
		return s
	}
	n := s.clone()
	n.Online = cloneIndex(s.Online)
	n.Online[id] = struct{}{}
	return n
}

// leavePresence removes the user from the online set and stamps last_seen
// with the transport's leave time.
func leavePresence(s *State, e PresenceLeft) *State {
	if e.UserID == "" {
		return s
	}
	n := s.clone()
	changed := false
	if _, ok := s.Online[e.UserID]; ok {
		n.Online = cloneIndex(s.Online)
		delete(n.Online, e.UserID)
		changed = true
	}
	if u, ok := s.Users.Get(e.UserID); ok && !e.At.IsZero() && !u.LastSeen.Equal(e.At) {
		next := *u
		next.LastSeen = e.At
		n.Users = s.Users.with(e.UserID, &next)
		changed = true
	}
	if !changed {
		return s
	}
	return n
}

func upsertChatGroup(s *State, p classroom.ChatGroupPatch) *State {
	groups, _ := upsertRow[classroom.ChatGroup](s.ChatGroups, p)
	if groups == s.ChatGroups {
		return s
	}
	n := s.clone()
	n.ChatGroups = groups
	return n
}

func deleteChatGroup(s *State, id string) *State {
	if !s.ChatGroups.Has(id) {
		return s
	}
	n := s.clone()
	n.ChatGroups = deleteRow(s.ChatGroups, id)
	return n
}

func upsertMessage(s *State, p classroom.ChatMessagePatch) *State {
	msgs, _ := upsertRow[classroom.ChatMessage](s.Messages, p)
	if msgs == s.Messages {
		return s
	}
	n := s.clone()
	n.Messages = msgs
	return n
}

func deleteMessage(s *State, id string) *State {
	if !s.Messages.Has(id) {
		return s
	}
	n := s.clone()
	n.Messages = deleteRow(s.Messages, id)
	return n
}

// markMessagesRead adds one receipt per message for a user that has none.
// Existing receipts keep their original timestamp.
func markMessagesRead(s *State, e MessagesRead) *State {
	if e.UserID == "" {
		return s
	}
	edit := s.Messages.edit()
	for _, id := range e.MessageIDs {
		m, ok := edit.get(id)
		if !ok {
			continue
		}
		next, changed := m.MarkRead(e.UserID, e.At)
		if changed {
			edit.put(id, &next)
		}
	}
	msgs := edit.done()
	if msgs == s.Messages {
		return s
	}
	n := s.clone()
	n.Messages = msgs
	return n
}

func clearChatHistory(s *State, groupID string) *State {
	edit := s.Messages.edit()
	for _, m := range s.Messages.Values() {
		if m.ChatGroupID == groupID {
			edit.del(m.ID)
		}
	}
	msgs := edit.done()
	if msgs == s.Messages {
		return s
	}
	n := s.clone()
	n.Messages = msgs
	return n
}
