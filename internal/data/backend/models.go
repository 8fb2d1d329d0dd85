package backend

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/classsync/internal/domain/classroom"
)

// Row models mirror the backend tables one to one. Column names are the
// ones change-feed payloads carry, so a row serialized by the database
// decodes straight into a classroom patch.

type ProfileRow struct {
	ID        string     `gorm:"type:text;primaryKey"`
	Name      string     `gorm:"not null;default:''"`
	Email     string     `gorm:"index"`
	Role      string     `gorm:"not null;default:'student'"`
	AvatarURL string     `gorm:"column:avatar_url"`
	LastSeen  *time.Time `gorm:"column:last_seen"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`
}

func (ProfileRow) TableName() string { return "profiles" }

type UnitRow struct {
	ID          string     `gorm:"type:text;primaryKey"`
	Title       string     `gorm:"not null"`
	Description string     `gorm:"not null;default:''"`
	Icon        string     `gorm:"not null;default:''"`
	Unlocked    bool       `gorm:"not null;default:false"`
	UnitNumber  int        `gorm:"column:unit_number;not null;uniqueIndex"`
	Rounds      []RoundRow `gorm:"foreignKey:UnitID"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"`
}

func (UnitRow) TableName() string { return "units" }

type RoundRow struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UnitID    string    `gorm:"type:text;not null;index"`
	Title     string    `gorm:"not null;default:''"`
	Words     []WordRow `gorm:"foreignKey:RoundID"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

func (RoundRow) TableName() string { return "rounds" }

type WordRow struct {
	ID            string    `gorm:"type:text;primaryKey"`
	RoundID       string    `gorm:"type:text;not null;index"`
	English       string    `gorm:"not null"`
	Russian       string    `gorm:"column:russian;not null;default:''"`
	Transcription string    `gorm:"not null;default:''"`
	ImageURL      string    `gorm:"column:image_url;not null;default:''"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
}

func (WordRow) TableName() string { return "words" }

type RoundProgressRow struct {
	ID        string         `gorm:"type:text;primaryKey"`
	StudentID string         `gorm:"type:text;not null;uniqueIndex:idx_round_progress_triple,priority:1"`
	UnitID    string         `gorm:"type:text;not null;uniqueIndex:idx_round_progress_triple,priority:2"`
	RoundID   string         `gorm:"type:text;not null;uniqueIndex:idx_round_progress_triple,priority:3"`
	Completed bool           `gorm:"not null;default:false"`
	History   datatypes.JSON `gorm:"not null"`
	Attempts  int            `gorm:"not null;default:0"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime"`
}

func (RoundProgressRow) TableName() string { return "round_progress" }

type UnitTestRow struct {
	ID             string         `gorm:"type:text;primaryKey"`
	UnitID         string         `gorm:"type:text;not null;uniqueIndex"`
	Title          string         `gorm:"not null;default:''"`
	Status         string         `gorm:"not null;default:'inactive';index"`
	JoinedStudents datatypes.JSON `gorm:"column:joined_students;not null"`
	Questions      datatypes.JSON `gorm:"not null"`
	Results        datatypes.JSON `gorm:"not null"`
	StartTime      *time.Time     `gorm:"column:start_time"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime"`
}

func (UnitTestRow) TableName() string { return "unit_tests" }

type ChatGroupRow struct {
	ID        string         `gorm:"type:text;primaryKey"`
	Name      string         `gorm:"not null"`
	Members   datatypes.JSON `gorm:"not null"`
	AvatarURL string         `gorm:"column:avatar_url;not null;default:''"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime"`
}

func (ChatGroupRow) TableName() string { return "chat_groups" }

type ChatMessageRow struct {
	ID          string         `gorm:"type:text;primaryKey"`
	ChatGroupID string         `gorm:"type:text;not null;index"`
	SenderID    string         `gorm:"type:text;not null;index"`
	Content     string         `gorm:"not null"`
	ReadBy      datatypes.JSON `gorm:"column:read_by;not null"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime;index"`
}

func (ChatMessageRow) TableName() string { return "chat_messages" }

// AllModels lists every table in migration order.
func AllModels() []any {
	return []any{
		&ProfileRow{},
		&UnitRow{},
		&RoundRow{},
		&WordRow{},
		&RoundProgressRow{},
		&UnitTestRow{},
		&ChatGroupRow{},
		&ChatMessageRow{},
	}
}

// jsonList encodes v, writing [] instead of null for empty slices.
func jsonList[T any](v []T) datatypes.JSON {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}

func decodeList[T any](raw datatypes.JSON) ([]T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r ProfileRow) toDomain() classroom.User {
	u := classroom.User{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Role:      classroom.Role(r.Role),
		AvatarURL: r.AvatarURL,
		CreatedAt: r.CreatedAt,
	}
	if r.LastSeen != nil {
		u.LastSeen = *r.LastSeen
	}
	return u
}

func (r UnitRow) toDomain() classroom.Unit {
	u := classroom.Unit{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Icon:        r.Icon,
		Unlocked:    r.Unlocked,
		UnitNumber:  r.UnitNumber,
		CreatedAt:   r.CreatedAt,
	}
	u.Rounds = make([]classroom.Round, 0, len(r.Rounds))
	for _, rr := range r.Rounds {
		u.Rounds = append(u.Rounds, rr.toDomain())
	}
	return u
}

func (r RoundRow) toDomain() classroom.Round {
	out := classroom.Round{ID: r.ID, UnitID: r.UnitID, Title: r.Title, CreatedAt: r.CreatedAt}
	out.Words = make([]classroom.Word, 0, len(r.Words))
	for _, w := range r.Words {
		out.Words = append(out.Words, w.toDomain())
	}
	return out
}

func (r WordRow) toDomain() classroom.Word {
	return classroom.Word{
		ID:            r.ID,
		RoundID:       r.RoundID,
		English:       r.English,
		Translation:   r.Russian,
		Transcription: r.Transcription,
		ImageURL:      r.ImageURL,
		CreatedAt:     r.CreatedAt,
	}
}

func (r RoundProgressRow) toDomain() (classroom.RoundProgress, error) {
	history, err := decodeList[classroom.AttemptHistory](r.History)
	if err != nil {
		return classroom.RoundProgress{}, err
	}
	return classroom.RoundProgress{
		ID:        r.ID,
		StudentID: r.StudentID,
		UnitID:    r.UnitID,
		RoundID:   r.RoundID,
		Completed: r.Completed,
		History:   history,
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
	}, nil
}

func (r UnitTestRow) toDomain() (classroom.UnitTest, error) {
	joined, err := decodeList[string](r.JoinedStudents)
	if err != nil {
		return classroom.UnitTest{}, err
	}
	questions, err := decodeList[classroom.TestQuestion](r.Questions)
	if err != nil {
		return classroom.UnitTest{}, err
	}
	results, err := decodeList[classroom.StudentTestResult](r.Results)
	if err != nil {
		return classroom.UnitTest{}, err
	}
	return classroom.UnitTest{
		ID:             r.ID,
		UnitID:         r.UnitID,
		Title:          r.Title,
		Status:         classroom.TestStatus(r.Status),
		JoinedStudents: joined,
		Questions:      questions,
		Results:        results,
		StartTime:      r.StartTime,
		CreatedAt:      r.CreatedAt,
	}, nil
}

func (r ChatGroupRow) toDomain() (classroom.ChatGroup, error) {
	members, err := decodeList[string](r.Members)
	if err != nil {
		return classroom.ChatGroup{}, err
	}
	return classroom.ChatGroup{
		ID:        r.ID,
		Name:      r.Name,
		Members:   members,
		AvatarURL: r.AvatarURL,
		CreatedAt: r.CreatedAt,
	}, nil
}

func (r ChatMessageRow) toDomain() (classroom.ChatMessage, error) {
	receipts, err := decodeList[classroom.ReadReceipt](r.ReadBy)
	if err != nil {
		return classroom.ChatMessage{}, err
	}
	return classroom.ChatMessage{
		ID:          r.ID,
		ChatGroupID: r.ChatGroupID,
		SenderID:    r.SenderID,
		Content:     r.Content,
		ReadBy:      receipts,
		CreatedAt:   r.CreatedAt,
	}, nil
}
