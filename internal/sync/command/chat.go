package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/sync/store"
)

// member returns the group when the actor belongs to it.
func (s *Service) member(op, groupID string) (classroom.User, *classroom.ChatGroup, error) {
	me, err := s.me(op, "")
	if err != nil {
		return classroom.User{}, nil, err
	}
	g, ok := s.store.State().ChatGroups.Get(groupID)
	if !ok {
		return classroom.User{}, nil, unknown(op, "chat group", groupID)
	}
	if !g.HasMember(me.ID) {
		return classroom.User{}, nil, apperr.Wrap(apperr.CodeValidation, op, ErrNotMember)
	}
	return me, g, nil
}

func (s *Service) SendMessage(ctx context.Context, in MessageInput) (classroom.ChatMessage, error) {
	const op = "send_message"
	if err := s.check(op, in); err != nil {
		return classroom.ChatMessage{}, err
	}
	me, _, err := s.member(op, in.GroupID)
	if err != nil {
		return classroom.ChatMessage{}, err
	}
	m, err := s.remote.SendMessage(ctx, in.GroupID, me.ID, strings.TrimSpace(in.Content))
	return m, s.remoteOnly(op, err)
}

func (s *Service) EditMessage(ctx context.Context, messageID, content string) error {
	const op = "edit_message"
	me, err := s.me(op, "")
	if err != nil {
		return err
	}
	m, ok := s.store.State().Message(messageID)
	if !ok {
		return unknown(op, "message", messageID)
	}
	if err := s.check(op, MessageInput{GroupID: m.ChatGroupID, Content: content}); err != nil {
		return err
	}
	if m.SenderID != me.ID {
		return apperr.Wrap(apperr.CodeValidation, op, fmt.Errorf("message %s belongs to another sender", messageID))
	}
	return s.remoteOnly(op, s.remote.EditMessage(ctx, messageID, me.ID, strings.TrimSpace(content)))
}

func (s *Service) DeleteMessage(ctx context.Context, messageID string) error {
	const op = "delete_message"
	me, err := s.me(op, "")
	if err != nil {
		return err
	}
	return s.remoteOnly(op, s.remote.DeleteMessage(ctx, messageID, me.ID))
}

// CreateChatGroup creates a group whose members include the creating
// teacher.
func (s *Service) CreateChatGroup(ctx context.Context, in ChatGroupInput) (classroom.ChatGroup, error) {
	const op = "create_chat_group"
	me, err := s.me(op, classroom.RoleTeacher)
	if err != nil {
		return classroom.ChatGroup{}, err
	}
	if err := s.check(op, in); err != nil {
		return classroom.ChatGroup{}, err
	}
	members, err := classroom.ValidateMembers(me.ID, in.Members)
	if err != nil {
		return classroom.ChatGroup{}, apperr.Wrap(apperr.CodeValidation, op, err)
	}
	g, err := s.remote.CreateChatGroup(ctx, strings.TrimSpace(in.Name), members, in.AvatarURL)
	return g, s.remoteOnly(op, err)
}

func (s *Service) DeleteChatGroup(ctx context.Context, groupID string) error {
	const op = "delete_chat_group"
	if _, err := s.me(op, classroom.RoleTeacher); err != nil {
		return err
	}
	return s.remoteOnly(op, s.remote.DeleteChatGroup(ctx, groupID))
}

// ClearChatHistory deletes every message in a group. The bulk delete is
// applied locally right away; per-row echoes then find nothing to remove.
func (s *Service) ClearChatHistory(ctx context.Context, groupID string) error {
	const op = "clear_chat_history"
	if _, _, err := s.member(op, groupID); err != nil {
		return err
	}
	if err := s.remote.ClearChatHistory(ctx, groupID); err != nil {
		return s.remoteOnly(op, err)
	}
	s.store.Dispatch(store.ChatHistoryCleared{GroupID: groupID})
	return s.remoteOnly(op, nil)
}
