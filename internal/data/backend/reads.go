package backend

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

func (b *Backend) GetProfile(ctx context.Context, id string) (classroom.User, error) {
	var row ProfileRow
	err := b.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return classroom.User{}, mapError("backend.get_profile", ErrProfileNotFound)
	}
	if err != nil {
		return classroom.User{}, mapError("backend.get_profile", err)
	}
	return row.toDomain(), nil
}

func (b *Backend) ListProfiles(ctx context.Context) ([]classroom.User, error) {
	var rows []ProfileRow
	if err := b.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("backend.list_profiles", err)
	}
	out := make([]classroom.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func preloadContent(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Rounds.Words", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
}

// ListUnits reads every unit with its rounds and words nested.
func (b *Backend) ListUnits(ctx context.Context) ([]classroom.Unit, error) {
	var rows []UnitRow
	if err := preloadContent(b.db.WithContext(ctx)).Order("unit_number ASC").Find(&rows).Error; err != nil {
		return nil, mapError("backend.list_units", err)
	}
	out := make([]classroom.Unit, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (b *Backend) GetUnit(ctx context.Context, id string) (classroom.Unit, error) {
	var row UnitRow
	if err := preloadContent(b.db.WithContext(ctx)).Where("id = ?", id).Take(&row).Error; err != nil {
		return classroom.Unit{}, mapError("backend.get_unit", err)
	}
	return row.toDomain(), nil
}

func (b *Backend) ListRoundProgress(ctx context.Context) ([]classroom.RoundProgress, error) {
	var rows []RoundProgressRow
	if err := b.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("backend.list_round_progress", err)
	}
	out := make([]classroom.RoundProgress, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, mapError("backend.list_round_progress", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (b *Backend) GetRoundProgress(ctx context.Context, id string) (classroom.RoundProgress, error) {
	var row RoundProgressRow
	if err := b.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return classroom.RoundProgress{}, mapError("backend.get_round_progress", err)
	}
	p, err := row.toDomain()
	if err != nil {
		return classroom.RoundProgress{}, mapError("backend.get_round_progress", err)
	}
	return p, nil
}

func (b *Backend) ListUnitTests(ctx context.Context) ([]classroom.UnitTest, error) {
	var rows []UnitTestRow
	if err := b.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("backend.list_unit_tests", err)
	}
	out := make([]classroom.UnitTest, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, mapError("backend.list_unit_tests", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *Backend) GetUnitTest(ctx context.Context, id string) (classroom.UnitTest, error) {
	var row UnitTestRow
	if err := b.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return classroom.UnitTest{}, mapError("backend.get_unit_test", err)
	}
	t, err := row.toDomain()
	if err != nil {
		return classroom.UnitTest{}, mapError("backend.get_unit_test", err)
	}
	return t, nil
}

// ListChatGroups returns the groups memberID belongs to. Membership is a JSON
// column, so the filter runs here rather than in SQL.
func (b *Backend) ListChatGroups(ctx context.Context, memberID string) ([]classroom.ChatGroup, error) {
	var rows []ChatGroupRow
	if err := b.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, mapError("backend.list_chat_groups", err)
	}
	out := make([]classroom.ChatGroup, 0, len(rows))
	for _, r := range rows {
		g, err := r.toDomain()
		if err != nil {
			return nil, mapError("backend.list_chat_groups", err)
		}
		if memberID == "" || g.HasMember(memberID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (b *Backend) ListChatMessages(ctx context.Context, groupIDs []string) ([]classroom.ChatMessage, error) {
	if len(groupIDs) == 0 {
		return []classroom.ChatMessage{}, nil
	}
	var rows []ChatMessageRow
	if err := b.db.WithContext(ctx).
		Where("chat_group_id IN ?", groupIDs).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, mapError("backend.list_chat_messages", err)
	}
	out := make([]classroom.ChatMessage, 0, len(rows))
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, mapError("backend.list_chat_messages", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *Backend) GetChatMessage(ctx context.Context, id string) (classroom.ChatMessage, error) {
	var row ChatMessageRow
	if err := b.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return classroom.ChatMessage{}, mapError("backend.get_chat_message", err)
	}
	m, err := row.toDomain()
	if err != nil {
		return classroom.ChatMessage{}, mapError("backend.get_chat_message", err)
	}
	return m, nil
}
