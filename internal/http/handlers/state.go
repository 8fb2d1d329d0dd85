package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classsync/internal/domain/classroom"
	"github.com/yungbote/classsync/internal/http/response"
	apperr "github.com/yungbote/classsync/internal/pkg/errors"
	"github.com/yungbote/classsync/internal/sync/store"
)

// StateHandler serves read-only views of the store.
type StateHandler struct {
	store    *store.Store
	actor    func() string
	duration time.Duration
	now      func() time.Time
}

func NewStateHandler(st *store.Store, actor func() string, testDuration time.Duration) *StateHandler {
	return &StateHandler{store: st, actor: actor, duration: testDuration, now: time.Now}
}

// ready rejects reads before the first snapshot lands.
func (h *StateHandler) ready(c *gin.Context) (*store.State, bool) {
	st := h.store.State()
	if !st.Loaded {
		response.RespondError(c, http.StatusServiceUnavailable, string(apperr.CodeFatal), errNotLoaded)
		return nil, false
	}
	return st, true
}

// GET /api/state
func (h *StateHandler) Summary(c *gin.Context) {
	st := h.store.State()
	response.RespondOK(c, gin.H{
		"version":  st.Version,
		"loaded":   st.Loaded,
		"degraded": st.Degraded,
		"counts": gin.H{
			"users":       st.Users.Len(),
			"units":       st.Units.Len(),
			"progress":    st.Progress.Len(),
			"tests":       st.Tests.Len(),
			"chat_groups": st.ChatGroups.Len(),
			"messages":    st.Messages.Len(),
			"online":      len(st.Online),
		},
	})
}

// GET /api/me
func (h *StateHandler) Me(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	me, found := st.User(h.actor())
	if !found {
		response.RespondError(c, http.StatusNotFound, string(apperr.CodeNotFound), errNoProfile)
		return
	}
	response.RespondOK(c, gin.H{"me": me})
}

// GET /api/units
func (h *StateHandler) Units(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"units": st.SortedUnits(), "unlocked": st.UnlockedUnits})
}

// GET /api/units/:id
func (h *StateHandler) Unit(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	u, found := st.Unit(c.Param("id"))
	if !found {
		response.RespondError(c, http.StatusNotFound, string(apperr.CodeNotFound), errMissing("unit", c.Param("id")))
		return
	}
	out := gin.H{"unit": u}
	if t, ok := st.TestForUnit(u.ID); ok {
		out["test_id"] = t.ID
	}
	response.RespondOK(c, out)
}

// GET /api/progress/:studentId
func (h *StateHandler) Progress(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	var out []*classroom.RoundProgress
	for _, rounds := range st.ProgressIndex[c.Param("studentId")] {
		for _, p := range rounds {
			out = append(out, p)
		}
	}
	sortProgress(out)
	response.RespondOK(c, gin.H{"progress": out})
}

type testView struct {
	*classroom.UnitTest
	RemainingSeconds int `json:"remaining_seconds"`
}

func (h *StateHandler) view(t *classroom.UnitTest) testView {
	return testView{UnitTest: t, RemainingSeconds: int(t.Remaining(h.now(), h.duration).Seconds())}
}

// GET /api/tests
func (h *StateHandler) Tests(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	tests := st.SortedTests()
	out := make([]testView, 0, len(tests))
	for _, t := range tests {
		out = append(out, h.view(t))
	}
	response.RespondOK(c, gin.H{"tests": out})
}

// GET /api/tests/:id
func (h *StateHandler) Test(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	t, found := st.Test(c.Param("id"))
	if !found {
		response.RespondError(c, http.StatusNotFound, string(apperr.CodeNotFound), errMissing("test", c.Param("id")))
		return
	}
	response.RespondOK(c, gin.H{"test": h.view(t)})
}

// GET /api/chats
func (h *StateHandler) Chats(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	me := h.actor()
	groups := st.ChatGroupsFor(me)
	out := make([]gin.H, 0, len(groups))
	for _, g := range groups {
		out = append(out, gin.H{"group": g, "unread": st.UnreadIn(g.ID, me)})
	}
	response.RespondOK(c, gin.H{
		"chats":    out,
		"degraded": st.IsDegraded(classroom.CollectionChatGroups) || st.IsDegraded(classroom.CollectionChatMessages),
	})
}

// GET /api/chats/:id/messages
func (h *StateHandler) Messages(c *gin.Context) {
	st, ok := h.ready(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"messages": st.MessagesIn(c.Param("id"))})
}

// GET /api/online
func (h *StateHandler) Online(c *gin.Context) {
	st := h.store.State()
	response.RespondOK(c, gin.H{"online": st.OnlineIDs()})
}
