package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/pkg/dbctx"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, msg)
}

// requireRow turns a zero-row write into not_found.
func requireRow(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (b *Backend) CreateProfile(ctx context.Context, u classroom.User) (classroom.User, error) {
	if !u.Role.Valid() {
		return classroom.User{}, mapError("backend.create_profile", invalid("role must be student or teacher"))
	}
	row := ProfileRow{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role), AvatarURL: u.AvatarURL}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return classroom.User{}, mapError("backend.create_profile", err)
	}
	return row.toDomain(), nil
}

func (b *Backend) UpdateProfileAvatar(ctx context.Context, userID, url string) error {
	res := b.db.WithContext(ctx).Model(&ProfileRow{}).Where("id = ?", userID).Update("avatar_url", url)
	return mapError("backend.update_avatar", requireRow(res))
}

func (b *Backend) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC()
	res := b.db.WithContext(ctx).Model(&ProfileRow{}).Where("id = ?", userID).Update("last_seen", &at)
	return mapError("backend.touch_last_seen", requireRow(res))
}

// CreateUnit appends a unit after the highest unit number.
func (b *Backend) CreateUnit(ctx context.Context, title, description, icon string) (classroom.Unit, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return classroom.Unit{}, mapError("backend.create_unit", invalid("title is required"))
	}
	var row UnitRow
	err := b.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var maxNum int
		if err := dbc.Tx.Model(&UnitRow{}).Select("COALESCE(MAX(unit_number), 0)").Scan(&maxNum).Error; err != nil {
			return err
		}
		row = UnitRow{
			ID:          uuid.NewString(),
			Title:       title,
			Description: description,
			Icon:        icon,
			UnitNumber:  maxNum + 1,
		}
		return dbc.Tx.Create(&row).Error
	})
	if err != nil {
		return classroom.Unit{}, mapError("backend.create_unit", err)
	}
	return row.toDomain(), nil
}

func (b *Backend) SetUnitUnlocked(ctx context.Context, unitID string, unlocked bool) error {
	res := b.db.WithContext(ctx).Model(&UnitRow{}).Where("id = ?", unitID).Update("unlocked", unlocked)
	return mapError("backend.set_unit_unlocked", requireRow(res))
}

// DeleteUnit removes the unit and everything it owns. Each child row goes in
// its own DELETE so the change feed reports it.
func (b *Backend) DeleteUnit(ctx context.Context, unitID string) error {
	err := b.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var roundIDs []string
		if err := dbc.Tx.Model(&RoundRow{}).Where("unit_id = ?", unitID).Pluck("id", &roundIDs).Error; err != nil {
			return err
		}
		if len(roundIDs) > 0 {
			if err := dbc.Tx.Where("round_id IN ?", roundIDs).Delete(&WordRow{}).Error; err != nil {
				return err
			}
		}
		steps := []struct {
			model any
			where string
		}{
			{&RoundRow{}, "unit_id = ?"},
			{&RoundProgressRow{}, "unit_id = ?"},
			{&UnitTestRow{}, "unit_id = ?"},
		}
		for _, s := range steps {
			if err := dbc.Tx.Where(s.where, unitID).Delete(s.model).Error; err != nil {
				return err
			}
		}
		return requireRow(dbc.Tx.Where("id = ?", unitID).Delete(&UnitRow{}))
	})
	return mapError("backend.delete_unit", err)
}

func (b *Backend) CreateRound(ctx context.Context, unitID, title string) (classroom.Round, error) {
	row := RoundRow{ID: uuid.NewString(), UnitID: unitID, Title: title}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return classroom.Round{}, mapError("backend.create_round", err)
	}
	return row.toDomain(), nil
}

func (b *Backend) CreateWord(ctx context.Context, w classroom.Word) (classroom.Word, error) {
	if strings.TrimSpace(w.English) == "" || w.RoundID == "" {
		return classroom.Word{}, mapError("backend.create_word", invalid("english and round_id are required"))
	}
	row := WordRow{
		ID:            uuid.NewString(),
		RoundID:       w.RoundID,
		English:       w.English,
		Russian:       w.Translation,
		Transcription: w.Transcription,
		ImageURL:      w.ImageURL,
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return classroom.Word{}, mapError("backend.create_word", err)
	}
	return row.toDomain(), nil
}

// UpdateWord writes the editable word fields.
func (b *Backend) UpdateWord(ctx context.Context, w classroom.Word) error {
	res := b.db.WithContext(ctx).Model(&WordRow{}).Where("id = ?", w.ID).Updates(map[string]any{
		"english":       w.English,
		"russian":       w.Translation,
		"transcription": w.Transcription,
		"image_url":     w.ImageURL,
	})
	return mapError("backend.update_word", requireRow(res))
}

// SaveRoundProgress replaces the record for the (student, unit, round) triple.
func (b *Backend) SaveRoundProgress(ctx context.Context, p classroom.RoundProgress) (classroom.RoundProgress, error) {
	if p.StudentID == "" || p.UnitID == "" || p.RoundID == "" {
		return classroom.RoundProgress{}, mapError("backend.save_progress", invalid("student, unit and round are required"))
	}
	row := RoundProgressRow{
		ID:        p.ID,
		StudentID: p.StudentID,
		UnitID:    p.UnitID,
		RoundID:   p.RoundID,
		Completed: p.Completed,
		History:   jsonList(p.History),
		Attempts:  p.Attempts,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "unit_id"}, {Name: "round_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"completed", "history", "attempts"}),
	}).Create(&row).Error
	if err != nil {
		return classroom.RoundProgress{}, mapError("backend.save_progress", err)
	}
	var saved RoundProgressRow
	if err := b.db.WithContext(ctx).
		Where("student_id = ? AND unit_id = ? AND round_id = ?", p.StudentID, p.UnitID, p.RoundID).
		Take(&saved).Error; err != nil {
		return classroom.RoundProgress{}, mapError("backend.save_progress", err)
	}
	out, err := saved.toDomain()
	return out, mapError("backend.save_progress", err)
}

func (b *Backend) DeleteUnitProgress(ctx context.Context, studentID, unitID string) error {
	err := b.db.WithContext(ctx).
		Where("student_id = ? AND unit_id = ?", studentID, unitID).
		Delete(&RoundProgressRow{}).Error
	return mapError("backend.delete_unit_progress", err)
}

func (b *Backend) CreateChatGroup(ctx context.Context, name string, members []string, avatarURL string) (classroom.ChatGroup, error) {
	if strings.TrimSpace(name) == "" {
		return classroom.ChatGroup{}, mapError("backend.create_chat_group", invalid("name is required"))
	}
	row := ChatGroupRow{ID: uuid.NewString(), Name: strings.TrimSpace(name), Members: jsonList(members), AvatarURL: avatarURL}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return classroom.ChatGroup{}, mapError("backend.create_chat_group", err)
	}
	g, err := row.toDomain()
	return g, mapError("backend.create_chat_group", err)
}

func (b *Backend) DeleteChatGroup(ctx context.Context, groupID string) error {
	err := b.runner.InTx(ctx, func(dbc dbctx.Context) error {
		if err := dbc.Tx.Where("chat_group_id = ?", groupID).Delete(&ChatMessageRow{}).Error; err != nil {
			return err
		}
		return requireRow(dbc.Tx.Where("id = ?", groupID).Delete(&ChatGroupRow{}))
	})
	return mapError("backend.delete_chat_group", err)
}

func (b *Backend) SendMessage(ctx context.Context, groupID, senderID, content string) (classroom.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return classroom.ChatMessage{}, mapError("backend.send_message", invalid("content is empty"))
	}
	row := ChatMessageRow{
		ID:          uuid.NewString(),
		ChatGroupID: groupID,
		SenderID:    senderID,
		Content:     content,
		ReadBy:      jsonList([]classroom.ReadReceipt{}),
	}
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return classroom.ChatMessage{}, mapError("backend.send_message", err)
	}
	m, err := row.toDomain()
	return m, mapError("backend.send_message", err)
}

// EditMessage changes content of a message the sender owns.
func (b *Backend) EditMessage(ctx context.Context, messageID, senderID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return mapError("backend.edit_message", invalid("content is empty"))
	}
	res := b.db.WithContext(ctx).Model(&ChatMessageRow{}).
		Where("id = ? AND sender_id = ?", messageID, senderID).
		Update("content", content)
	return mapError("backend.edit_message", requireRow(res))
}

func (b *Backend) DeleteMessage(ctx context.Context, messageID, senderID string) error {
	res := b.db.WithContext(ctx).Where("id = ? AND sender_id = ?", messageID, senderID).Delete(&ChatMessageRow{})
	return mapError("backend.delete_message", requireRow(res))
}

func (b *Backend) ClearChatHistory(ctx context.Context, groupID string) error {
	err := b.db.WithContext(ctx).Where("chat_group_id = ?", groupID).Delete(&ChatMessageRow{}).Error
	return mapError("backend.clear_chat_history", err)
}

// MarkMessagesRead appends userID's receipt to each message that lacks one.
// Receipts are merged under a row lock so two readers never drop each other.
func (b *Backend) MarkMessagesRead(ctx context.Context, messageIDs []string, userID string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	err := b.runner.InTx(ctx, func(dbc dbctx.Context) error {
		var rows []ChatMessageRow
		if err := forUpdate(dbc.Tx).Where("id IN ?", messageIDs).Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			m, err := row.toDomain()
			if err != nil {
				return err
			}
			next, changed := m.MarkRead(userID, at)
			if !changed {
				continue
			}
			if err := dbc.Tx.Model(&ChatMessageRow{}).Where("id = ?", row.ID).
				Update("read_by", jsonList(next.ReadBy)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("backend.mark_messages_read", err)
}
