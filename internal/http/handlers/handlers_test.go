package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/classsync/internal/domain/classroom"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/platform/logger"
	"github.com/yungbote/classsync/internal/sync/command"
	"github.com/yungbote/classsync/internal/sync/store"
)

func init() { gin.SetMode(gin.TestMode) }

// fakeCommands implements only what the tests call.
type fakeCommands struct {
	Commands
	toggled  []string
	grade    command.GradeInput
	avatar   []byte
	word     command.WordInput
	image    []byte
	failWith error
	ledger   *command.Ledger
}

func (f *fakeCommands) ToggleUnitLock(_ context.Context, id string) error {
	f.toggled = append(f.toggled, id)
	return f.failWith
}

func (f *fakeCommands) GradeResult(_ context.Context, in command.GradeInput) error {
	f.grade = in
	return f.failWith
}

func (f *fakeCommands) ChangeAvatar(_ context.Context, r io.Reader) (string, error) {
	f.avatar, _ = io.ReadAll(r)
	return "https://cdn.example/avatars/a.png", f.failWith
}

func (f *fakeCommands) EditWord(_ context.Context, in command.WordInput, r io.Reader) error {
	f.word = in
	if r != nil {
		f.image, _ = io.ReadAll(r)
	}
	return f.failWith
}

func (f *fakeCommands) Ledger() *command.Ledger { return f.ledger }

func loadedStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(logger.Nop())
	start := time.Now().Add(-2 * time.Minute)
	st.Dispatch(store.SnapshotLoaded{Snapshot: store.Snapshot{
		Users: []classroom.User{
			{ID: "t1", Name: "Teacher", Role: classroom.RoleTeacher},
			{ID: "s1", Name: "Sam", Role: classroom.RoleStudent},
		},
		Units: []classroom.Unit{
			{ID: "u1", Title: "Animals", UnitNumber: 1, Unlocked: true},
			{ID: "u2", Title: "Food", UnitNumber: 2},
		},
		Tests: []classroom.UnitTest{
			{ID: "x1", UnitID: "u1", Status: classroom.TestInProgress, StartTime: &start},
		},
		ChatGroups: []classroom.ChatGroup{{ID: "g1", Name: "Class", Members: []string{"t1", "s1"}}},
		Messages: []classroom.ChatMessage{
			{ID: "m1", ChatGroupID: "g1", SenderID: "t1", Content: "hi", CreatedAt: start},
		},
		Degraded: []classroom.Collection{classroom.CollectionChatMessages},
	}})
	return st
}

func router(st *store.Store, cmds Commands) *gin.Engine {
	r := gin.New()
	sh := NewStateHandler(st, func() string { return "s1" }, 10*time.Minute)
	r.GET("/api/me", sh.Me)
	r.GET("/api/units", sh.Units)
	r.GET("/api/units/:id", sh.Unit)
	r.GET("/api/tests/:id", sh.Test)
	r.GET("/api/chats", sh.Chats)
	if cmds != nil {
		ch := NewCommandHandler(cmds)
		r.POST("/api/units/:id/toggle-lock", ch.ToggleUnitLock)
		r.POST("/api/tests/:id/grade", ch.GradeResult)
		r.POST("/api/me/avatar", ch.ChangeAvatar)
		r.PUT("/api/words/:id", ch.EditWord)
		r.GET("/api/commands", ch.Ledger)
	}
	return r
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestReadsWaitForSnapshot(t *testing.T) {
	r := router(store.New(logger.Nop()), nil)
	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/units", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "fatal", body["error"].(map[string]any)["code"])
}

func TestStateReads(t *testing.T) {
	r := router(loadedStore(t), nil)

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Sam", body["me"].(map[string]any)["name"])

	_, body = do(r, httptest.NewRequest(http.MethodGet, "/api/units", nil))
	units := body["units"].([]any)
	require.Len(t, units, 2)
	require.Equal(t, "Animals", units[0].(map[string]any)["title"])

	_, body = do(r, httptest.NewRequest(http.MethodGet, "/api/units/u1", nil))
	require.Equal(t, "x1", body["test_id"])

	w, _ = do(r, httptest.NewRequest(http.MethodGet, "/api/units/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	_, body = do(r, httptest.NewRequest(http.MethodGet, "/api/tests/x1", nil))
	remaining := body["test"].(map[string]any)["remaining_seconds"].(float64)
	require.InDelta(t, 480, remaining, 5)

	_, body = do(r, httptest.NewRequest(http.MethodGet, "/api/chats", nil))
	require.Equal(t, true, body["degraded"])
	chats := body["chats"].([]any)
	require.Len(t, chats, 1)
	require.Equal(t, float64(1), chats[0].(map[string]any)["unread"])
}

func TestCommandErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperr.Wrap(apperr.CodeValidation, "op", command.ErrTeacherOnly), http.StatusBadRequest},
		{apperr.Wrap(apperr.CodeNotFound, "op", apperr.ErrNotFound), http.StatusNotFound},
		{apperr.Wrap(apperr.CodeConflict, "op", classroom.ErrInvalidTransition), http.StatusConflict},
		{apperr.Wrap(apperr.CodeWriteFailed, "op", io.ErrUnexpectedEOF), http.StatusBadGateway},
	}
	for _, tc := range cases {
		f := &fakeCommands{failWith: tc.err}
		w, _ := do(router(loadedStore(t), f), httptest.NewRequest(http.MethodPost, "/api/units/u1/toggle-lock", nil))
		require.Equal(t, tc.want, w.Code, "err=%v", tc.err)
		require.Equal(t, []string{"u1"}, f.toggled)
	}
}

func TestGradeBindsBody(t *testing.T) {
	f := &fakeCommands{}
	req := httptest.NewRequest(http.MethodPost, "/api/tests/x1/grade",
		bytes.NewBufferString(`{"student_id":"s1","grade":87.5,"comment":"good","passed":true}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ := do(router(loadedStore(t), f), req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, command.GradeInput{TestID: "x1", StudentID: "s1", Grade: 87.5, Comment: "good", Passed: true}, f.grade)

	req = httptest.NewRequest(http.MethodPost, "/api/tests/x1/grade", bytes.NewBufferString(`{`))
	req.Header.Set("Content-Type", "application/json")
	w, body := do(router(loadedStore(t), f), req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation", body["error"].(map[string]any)["code"])
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", "pic.png")
		require.NoError(t, err)
		_, err = fw.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploads(t *testing.T) {
	f := &fakeCommands{}
	r := router(loadedStore(t), f)

	body, ct := multipartBody(t, nil, []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/me/avatar", body)
	req.Header.Set("Content-Type", ct)
	w, out := do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "png-bytes", string(f.avatar))
	require.Equal(t, "https://cdn.example/avatars/a.png", out["avatar_url"])

	body, ct = multipartBody(t, nil, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/me/avatar", body)
	req.Header.Set("Content-Type", ct)
	w, _ = do(r, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = multipartBody(t, map[string]string{"english": "cat", "russian": "кошка"}, []byte("img"))
	req = httptest.NewRequest(http.MethodPut, "/api/words/w1", body)
	req.Header.Set("Content-Type", ct)
	w, _ = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, command.WordInput{WordID: "w1", English: "cat", Translation: "кошка"}, f.word)
	require.Equal(t, "img", string(f.image))

	f.image = nil
	req = httptest.NewRequest(http.MethodPut, "/api/words/w1", bytes.NewBufferString(`{"english":"dog","russian":"собака"}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ = do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "dog", f.word.English)
	require.Nil(t, f.image)
}

func TestLedgerView(t *testing.T) {
	f := &fakeCommands{ledger: command.NewLedger(8)}
	w, body := do(router(loadedStore(t), f), httptest.NewRequest(http.MethodGet, "/api/commands", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(0), body["pending"])
}
