package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"chatwarden/internal/blob"
	"chatwarden/internal/bootstrap"
	"chatwarden/internal/config"
	"chatwarden/internal/middleware"
	"chatwarden/internal/models"
	"chatwarden/internal/telegram"
	"chatwarden/internal/testutil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testSecret      = "test-secret-key-12345678901234567890123456789012"
	testIngestToken = "ingest-secret"

	chatID      int64 = -1001
	adminID     int64 = 10
	moderatorID int64 = 20
	outsiderID  int64 = 30
	violatorID  int64 = 40
)

type testEnv struct {
	srv *Server
	db  *gorm.DB
	rt  *bootstrap.Runtime
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	cfg := &config.Config{
		Env:                 "test",
		Port:                "0",
		JWTSecret:           testSecret,
		IngestToken:         testIngestToken,
		BlobBackend:         "db",
		Matcher:             "regex",
		NotifyDefaultUnset:  true,
		DispatchWorkers:     1,
		DispatchQueueSize:   16,
		DispatchMaxAttempts: 1,
		UIPageSize:          20,
		FeatureFlags:        "auto_enforce=off,live_feed=-1001",
	}

	tg, err := telegram.NewClient("", 0, middleware.Logger)
	require.NoError(t, err)
	blobs, err := blob.New(context.Background(), cfg, db)
	require.NoError(t, err)
	rt, err := bootstrap.Build(cfg, db, nil, tg, blobs)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, rt.Start(ctx))
	t.Cleanup(func() {
		rt.Dispatcher.Close()
		rt.Ledger.Wait()
		cancel()
	})

	testutil.CreateChat(t, db, chatID)
	testutil.CreateAdmin(t, db, chatID, adminID)
	testutil.CreateModerator(t, db, chatID, moderatorID)
	testutil.CreateUser(t, db, outsiderID)
	testutil.CreateUser(t, db, violatorID)

	return &testEnv{srv: NewServer(cfg, rt), db: db, rt: rt}
}

func token(t *testing.T, userID int64) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// do sends a request as userID (0 for anonymous) and returns status and body.
func (e *testEnv) do(t *testing.T, method, path string, userID int64, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (e *testEnv) ingest(t *testing.T, path, contentType string, body []byte) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Ingest-Token", testIngestToken)
	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func chatPath(suffix string) string {
	return "/api/chats/" + strconv.FormatInt(chatID, 10) + suffix
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	status, _ := e.do(t, http.MethodGet, "/health/live", 0, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := e.do(t, http.MethodGet, "/health/ready", 0, nil)
	assert.Equal(t, http.StatusOK, status)
	var ready struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "healthy", ready.Status)
	assert.Equal(t, "disabled", ready.Checks["redis"])
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)
	status, _ := e.do(t, http.MethodGet, "/api/me/chats", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGetMyChats(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(t, http.MethodGet, "/api/me/chats", moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	var chats []models.Chat
	require.NoError(t, json.Unmarshal(body, &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, chatID, chats[0].ID)

	status, body = e.do(t, http.MethodGet, "/api/me/chats", outsiderID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))
}

func TestRuleManagement_AccessControl(t *testing.T) {
	e := newTestEnv(t)
	input := map[string]any{"rule_text": `(?i)casino`, "type": "ban", "explanation_text": "gambling"}

	t.Run("moderator cannot create", func(t *testing.T) {
		status, _ := e.do(t, http.MethodPost, chatPath("/rules"), moderatorID, input)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("outsider cannot list", func(t *testing.T) {
		status, _ := e.do(t, http.MethodGet, chatPath("/rules"), outsiderID, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("invalid regex rejected", func(t *testing.T) {
		status, _ := e.do(t, http.MethodPost, chatPath("/rules"), adminID, map[string]any{"rule_text": "(unclosed", "type": "BAN"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	status, body := e.do(t, http.MethodPost, chatPath("/rules"), adminID, input)
	require.Equal(t, http.StatusCreated, status, string(body))
	var rule models.Rule
	require.NoError(t, json.Unmarshal(body, &rule))
	assert.Equal(t, models.RuleTypeBan, rule.Type)
	assert.True(t, rule.Activated)
	rulePath := "/api/rules/" + strconv.FormatUint(uint64(rule.ID), 10)

	status, body = e.do(t, http.MethodGet, chatPath("/rules"), moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	var listed []models.RuleWithCount
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Len(t, listed, 1)

	status, body = e.do(t, http.MethodPatch, rulePath, adminID, map[string]any{"type": "NOTIFY"})
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &rule))
	assert.Equal(t, models.RuleTypeNotify, rule.Type)
	assert.Equal(t, `(?i)casino`, rule.RuleText, "omitted fields are kept")

	status, _ = e.do(t, http.MethodPut, rulePath+"/activation", moderatorID, map[string]any{"activated": false})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = e.do(t, http.MethodPut, rulePath+"/activation", adminID, map[string]any{"activated": false})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &rule))
	assert.False(t, rule.Activated)

	status, _ = e.do(t, http.MethodGet, "/api/rules/9999", adminID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = e.do(t, http.MethodGet, "/api/rules/abc", adminID, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSetChatModerator(t *testing.T) {
	e := newTestEnv(t)
	path := chatPath("/moderators/" + strconv.FormatInt(outsiderID, 10))

	status, _ := e.do(t, http.MethodPut, path, moderatorID, map[string]any{"activated": true})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, http.MethodPut, path, adminID, map[string]any{"activated": true})
	require.Equal(t, http.StatusOK, status)

	ok, err := e.rt.Gate.CanModerate(context.Background(), outsiderID, chatID)
	require.NoError(t, err)
	assert.True(t, ok)

	status, body := e.do(t, http.MethodGet, chatPath("/moderators"), adminID, nil)
	require.Equal(t, http.StatusOK, status)
	var mods []map[string]any
	require.NoError(t, json.Unmarshal(body, &mods))
	assert.Len(t, mods, 2)
}

func TestSetChatActivation_AdminCanReactivate(t *testing.T) {
	e := newTestEnv(t)

	status, _ := e.do(t, http.MethodPut, chatPath("/activation"), adminID, map[string]any{"activated": false})
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodGet, chatPath("/rules"), moderatorID, nil)
	assert.Equal(t, http.StatusForbidden, status, "deactivated chats are closed to moderators")

	status, _ = e.do(t, http.MethodPut, chatPath("/activation"), moderatorID, map[string]any{"activated": true})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, http.MethodPut, chatPath("/activation"), adminID, map[string]any{"activated": true})
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(t, http.MethodGet, chatPath("/rules"), moderatorID, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestIngestAndDecide(t *testing.T) {
	e := newTestEnv(t)
	rule := testutil.CreateRule(t, e.db, chatID, models.RuleTypeNotify, `(?i)free money`)

	t.Run("ingest token required", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/messages", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.srv.App().Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	msg, _ := json.Marshal(map[string]any{
		"chat_id":     chatID,
		"violator_id": violatorID,
		"username":    "spammer",
		"text":        "get FREE MONEY now",
		"post_id":     77,
	})
	status, body := e.ingest(t, "/api/ingest/messages", "application/json", msg)
	require.Equal(t, http.StatusOK, status, string(body))
	var result struct {
		Violations []models.RuleViolation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	require.Len(t, result.Violations, 1)
	v := result.Violations[0]
	assert.Equal(t, rule.ID, v.RuleID)
	vPath := "/api/violations/" + strconv.FormatUint(uint64(v.ID), 10)

	status, _ = e.ingest(t, "/api/ingest/messages", "application/json", []byte(`{"chat_id":0}`))
	assert.Equal(t, http.StatusBadRequest, status)

	t.Run("outsider cannot decide", func(t *testing.T) {
		status, _ := e.do(t, http.MethodPost, vPath+"/decisions", outsiderID, map[string]any{"decision": "BAN"})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("unknown decision", func(t *testing.T) {
		status, _ := e.do(t, http.MethodPost, vPath+"/decisions", moderatorID, map[string]any{"decision": "KICK"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	status, body = e.do(t, http.MethodPost, vPath+"/decisions", moderatorID, map[string]any{"decision": "ban"})
	require.Equal(t, http.StatusCreated, status, string(body))
	var decided struct {
		Status models.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &decided))
	assert.Equal(t, models.StatusBan, decided.Status)

	// An admin may overrule; the latest decision wins.
	status, _ = e.do(t, http.MethodPost, vPath+"/decisions", adminID, map[string]any{"decision": "UNBAN"})
	require.Equal(t, http.StatusCreated, status)

	status, body = e.do(t, http.MethodGet, vPath, moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	var view struct {
		Status  models.Status                  `json:"status"`
		History []models.RuleViolationDecision `json:"history"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Len(t, view.History, 2)

	status, body = e.do(t, http.MethodGet, chatPath("/decisions?moderator_id="+strconv.FormatInt(moderatorID, 10)), adminID, nil)
	require.Equal(t, http.StatusOK, status)
	var decisions struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body, &decisions))
	assert.Len(t, decisions.Items, 1)

	status, body = e.do(t, http.MethodGet, "/api/violations/search?q=spammer", moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	var found []models.ViolationDetail
	require.NoError(t, json.Unmarshal(body, &found))
	assert.Len(t, found, 1)

	status, _ = e.do(t, http.MethodGet, "/api/violations/search?q=", moderatorID, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodGet, "/api/violations/424242", moderatorID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = e.do(t, http.MethodGet, "/api/rules/"+strconv.FormatUint(uint64(rule.ID), 10)+"/violations", moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	assert.EqualValues(t, 1, page.Total)
}

func TestPolicies(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(t, http.MethodGet, "/api/me/policies", moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	var policies []struct {
		Category models.NotificationCategory `json:"category"`
		State    models.PolicyState          `json:"state"`
		Notify   bool                        `json:"notify"`
	}
	require.NoError(t, json.Unmarshal(body, &policies))
	require.Len(t, policies, 2)
	assert.Equal(t, models.PolicyStateUnset, policies[0].State)
	assert.True(t, policies[0].Notify)

	status, body = e.do(t, http.MethodPut, "/api/me/policies/ban", moderatorID, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, status, string(body))
	require.NoError(t, json.Unmarshal(body, &policies))
	assert.Equal(t, models.CategoryBan, policies[0].Category)
	assert.Equal(t, models.PolicyStateNotNotify, policies[0].State)
	assert.False(t, policies[0].Notify)

	status, _ = e.do(t, http.MethodPut, "/api/me/policies/mute", moderatorID, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPut, "/api/me/policies/ban", outsiderID, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusForbidden, status)
}

func TestGetChatFeatures(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(t, http.MethodGet, chatPath("/features"), moderatorID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var out struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "-1001", out.Raw["live_feed"])
	assert.True(t, out.Evaluated["live_feed"])
	assert.False(t, out.Evaluated["auto_enforce"])

	status, _ = e.do(t, http.MethodGet, chatPath("/features"), outsiderID, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCatchUp(t *testing.T) {
	e := newTestEnv(t)
	rule := testutil.CreateRule(t, e.db, chatID, models.RuleTypeBan, "spam")
	base := time.Now().UTC().Add(-time.Hour)
	testutil.CreateViolation(t, e.db, rule, violatorID, base)
	testutil.CreateViolation(t, e.db, rule, violatorID, base.Add(time.Minute))

	status, _ := e.do(t, http.MethodPost, "/api/me/catch-up?type=OBSERVE", moderatorID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(t, http.MethodPost, "/api/me/catch-up?type=MUTE", moderatorID, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := e.do(t, http.MethodPost, "/api/me/catch-up?type=OBSERVE", adminID, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = e.do(t, http.MethodPost, "/api/me/catch-up?type=BAN", moderatorID, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var out struct {
		Delivered int `json:"delivered"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Delivered)

	status, body = e.do(t, http.MethodPost, "/api/me/catch-up?type=BAN", moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 0, out.Delivered, "marker advanced past both")
}

func TestBlobs(t *testing.T) {
	e := newTestEnv(t)
	data := []byte("\x89PNG fake image bytes")

	status, body := e.ingest(t, "/api/ingest/images", "application/octet-stream", data)
	require.Equal(t, http.StatusCreated, status, string(body))
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	status, body = e.do(t, http.MethodGet, "/api/blobs/images/"+created.ID, moderatorID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, data, body)

	status, _ = e.do(t, http.MethodGet, "/api/blobs/audios/"+created.ID, moderatorID, nil)
	assert.Equal(t, http.StatusNotFound, status, "images and audio are separate namespaces")

	status, _ = e.do(t, http.MethodGet, "/api/blobs/images/not-a-uuid", moderatorID, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.ingest(t, "/api/ingest/audios", "application/octet-stream", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}
