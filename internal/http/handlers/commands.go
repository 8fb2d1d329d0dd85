package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/http/response"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/sync/command"
)

// Commands is the subset of the command service the UI can trigger.
type Commands interface {
	ToggleUnitLock(ctx context.Context, unitID string) error
	CreateUnit(ctx context.Context, in command.UnitInput) (classroom.Unit, error)
	DeleteUnit(ctx context.Context, unitID string) error
	EditWord(ctx context.Context, in command.WordInput, image io.Reader) error
	ChangeAvatar(ctx context.Context, image io.Reader) (string, error)

	CreateTest(ctx context.Context, unitID, title string) (classroom.UnitTest, error)
	DeleteTest(ctx context.Context, testID string) error
	ActivateTest(ctx context.Context, testID string) error
	JoinTest(ctx context.Context, testID string) error
	StartTest(ctx context.Context, testID string) (classroom.UnitTest, error)
	EndTest(ctx context.Context, testID string) error
	SubmitTestResult(ctx context.Context, testID string, answers []string) (classroom.StudentTestResult, error)
	GradeResult(ctx context.Context, in command.GradeInput) error

	SaveRoundProgress(ctx context.Context, in command.ProgressInput, answers []classroom.Answer) (classroom.RoundProgress, error)
	ResetStudentUnitProgress(ctx context.Context, studentID, unitID string) error

	SendMessage(ctx context.Context, in command.MessageInput) (classroom.ChatMessage, error)
	EditMessage(ctx context.Context, messageID, content string) error
	DeleteMessage(ctx context.Context, messageID string) error
	MarkMessagesRead(ctx context.Context, groupID string) (int, error)
	CreateChatGroup(ctx context.Context, in command.ChatGroupInput) (classroom.ChatGroup, error)
	DeleteChatGroup(ctx context.Context, groupID string) error
	ClearChatHistory(ctx context.Context, groupID string) error

	Ledger() *command.Ledger
}

type CommandHandler struct {
	cmds Commands
}

func NewCommandHandler(cmds Commands) *CommandHandler { return &CommandHandler{cmds: cmds} }

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(apperr.CodeValidation), err)
		return false
	}
	return true
}

func done(c *gin.Context, err error, payload any) {
	if err != nil {
		_ = c.Error(err)
		response.RespondAppError(c, err)
		return
	}
	if payload == nil {
		payload = gin.H{"ok": true}
	}
	response.RespondOK(c, payload)
}

// upload returns the "image" form file, or nil when the request has none.
func upload(c *gin.Context) (io.ReadCloser, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, true
	}
	fh, err := c.FormFile("image")
	if err == http.ErrMissingFile {
		return nil, true
	}
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, string(apperr.CodeValidation), err)
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, string(apperr.CodeValidation), err)
		return nil, false
	}
	return f, true
}

// POST /api/units/:id/toggle-lock
func (h *CommandHandler) ToggleUnitLock(c *gin.Context) {
	done(c, h.cmds.ToggleUnitLock(c.Request.Context(), c.Param("id")), nil)
}

// POST /api/units
func (h *CommandHandler) CreateUnit(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	}
	if !bind(c, &req) {
		return
	}
	u, err := h.cmds.CreateUnit(c.Request.Context(), command.UnitInput{Title: req.Title, Description: req.Description, Icon: req.Icon})
	done(c, err, gin.H{"unit": u})
}

// DELETE /api/units/:id
func (h *CommandHandler) DeleteUnit(c *gin.Context) {
	done(c, h.cmds.DeleteUnit(c.Request.Context(), c.Param("id")), nil)
}

// PUT /api/words/:id
// JSON body, or multipart with the same fields plus an "image" file.
func (h *CommandHandler) EditWord(c *gin.Context) {
	in := command.WordInput{WordID: c.Param("id")}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		in.English = c.PostForm("english")
		in.Translation = c.PostForm("russian")
		in.Transcription = c.PostForm("transcription")
	} else {
		var req struct {
			English       string `json:"english"`
			Translation   string `json:"russian"`
			Transcription string `json:"transcription"`
		}
		if !bind(c, &req) {
			return
		}
		in.English, in.Translation, in.Transcription = req.English, req.Translation, req.Transcription
	}
	img, ok := upload(c)
	if !ok {
		return
	}
	var r io.Reader
	if img != nil {
		defer img.Close()
		r = img
	}
	done(c, h.cmds.EditWord(c.Request.Context(), in, r), nil)
}

// POST /api/me/avatar (multipart "image")
func (h *CommandHandler) ChangeAvatar(c *gin.Context) {
	img, ok := upload(c)
	if !ok {
		return
	}
	if img == nil {
		response.RespondError(c, http.StatusBadRequest, string(apperr.CodeValidation), http.ErrMissingFile)
		return
	}
	defer img.Close()
	url, err := h.cmds.ChangeAvatar(c.Request.Context(), img)
	done(c, err, gin.H{"avatar_url": url})
}

// POST /api/units/:id/test
func (h *CommandHandler) CreateTest(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	t, err := h.cmds.CreateTest(c.Request.Context(), c.Param("id"), req.Title)
	done(c, err, gin.H{"test": t})
}

// DELETE /api/tests/:id
func (h *CommandHandler) DeleteTest(c *gin.Context) {
	done(c, h.cmds.DeleteTest(c.Request.Context(), c.Param("id")), nil)
}

// POST /api/tests/:id/activate
func (h *CommandHandler) ActivateTest(c *gin.Context) {
	done(c, h.cmds.ActivateTest(c.Request.Context(), c.Param("id")), nil)
}

// POST /api/tests/:id/join
func (h *CommandHandler) JoinTest(c *gin.Context) {
	done(c, h.cmds.JoinTest(c.Request.Context(), c.Param("id")), nil)
}

// POST /api/tests/:id/start
func (h *CommandHandler) StartTest(c *gin.Context) {
	t, err := h.cmds.StartTest(c.Request.Context(), c.Param("id"))
	done(c, err, gin.H{"test": t})
}

// POST /api/tests/:id/end
func (h *CommandHandler) EndTest(c *gin.Context) {
	done(c, h.cmds.EndTest(c.Request.Context(), c.Param("id")), nil)
}

// POST /api/tests/:id/submit
// body: {"answers": ["...", ...]} in question order
func (h *CommandHandler) SubmitTest(c *gin.Context) {
	var req struct {
		Answers []string `json:"answers"`
	}
	if !bind(c, &req) {
		return
	}
	r, err := h.cmds.SubmitTestResult(c.Request.Context(), c.Param("id"), req.Answers)
	done(c, err, gin.H{"result": r})
}

// POST /api/tests/:id/grade
func (h *CommandHandler) GradeResult(c *gin.Context) {
	var req struct {
		StudentID string  `json:"student_id"`
		Grade     float64 `json:"grade"`
		Comment   string  `json:"comment"`
		Passed    bool    `json:"passed"`
	}
	if !bind(c, &req) {
		return
	}
	done(c, h.cmds.GradeResult(c.Request.Context(), command.GradeInput{
		TestID:    c.Param("id"),
		StudentID: req.StudentID,
		Grade:     req.Grade,
		Comment:   req.Comment,
		Passed:    req.Passed,
	}), nil)
}

// POST /api/progress
func (h *CommandHandler) SaveProgress(c *gin.Context) {
	var req struct {
		UnitID    string             `json:"unit_id"`
		RoundID   string             `json:"round_id"`
		Questions int                `json:"questions"`
		Answers   []classroom.Answer `json:"answers"`
	}
	if !bind(c, &req) {
		return
	}
	p, err := h.cmds.SaveRoundProgress(c.Request.Context(),
		command.ProgressInput{UnitID: req.UnitID, RoundID: req.RoundID, Questions: req.Questions}, req.Answers)
	done(c, err, gin.H{"progress": p})
}

// POST /api/progress/reset
func (h *CommandHandler) ResetProgress(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id"`
		UnitID    string `json:"unit_id"`
	}
	if !bind(c, &req) {
		return
	}
	done(c, h.cmds.ResetStudentUnitProgress(c.Request.Context(), req.StudentID, req.UnitID), nil)
}

// POST /api/messages
func (h *CommandHandler) SendMessage(c *gin.Context) {
	var req struct {
		GroupID string `json:"group_id"`
		Content string `json:"content"`
	}
	if !bind(c, &req) {
		return
	}
	m, err := h.cmds.SendMessage(c.Request.Context(), command.MessageInput{GroupID: req.GroupID, Content: req.Content})
	done(c, err, gin.H{"message": m})
}

// PUT /api/messages/:id
func (h *CommandHandler) EditMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if !bind(c, &req) {
		return
	}
	done(c, h.cmds.EditMessage(c.Request.Context(), c.Param("id"), req.Content), nil)
}

// DELETE /api/messages/:id
func (h *CommandHandler) DeleteMessage(c *gin.Context) {
	done(c, h.cmds.DeleteMessage(c.Request.Context(), c.Param("id")), nil)
}

// POST /api/messages/read
func (h *CommandHandler) MarkRead(c *gin.Context) {
	var req struct {
		GroupID string `json:"group_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	n, err := h.cmds.MarkMessagesRead(c.Request.Context(), req.GroupID)
	done(c, err, gin.H{"marked": n})
}

// POST /api/chats
func (h *CommandHandler) CreateChat(c *gin.Context) {
	var req struct {
		Name      string   `json:"name"`
		Members   []string `json:"members"`
		AvatarURL string   `json:"avatar_url"`
	}
	if !bind(c, &req) {
		return
	}
	g, err := h.cmds.CreateChatGroup(c.Request.Context(), command.ChatGroupInput{Name: req.Name, Members: req.Members, AvatarURL: req.AvatarURL})
	done(c, err, gin.H{"group": g})
}

// DELETE /api/chats/:id
func (h *CommandHandler) DeleteChat(c *gin.Context) {
	done(c, h.cmds.DeleteChatGroup(c.Request.Context(), c.Param("id")), nil)
}

// POST /api/chats/:id/clear
func (h *CommandHandler) ClearChat(c *gin.Context) {
	done(c, h.cmds.ClearChatHistory(c.Request.Context(), c.Param("id")), nil)
}

// GET /api/commands
func (h *CommandHandler) Ledger(c *gin.Context) {
	l := h.cmds.Ledger()
	response.RespondOK(c, gin.H{"pending": l.Pending(), "entries": l.Entries()})
}
