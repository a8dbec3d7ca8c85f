package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"pocusai/internal/auth"
	"pocusai/internal/config"
	"pocusai/internal/models"
	"pocusai/internal/service/ai"
	"pocusai/internal/service/assistant"
	"pocusai/internal/sessions"
	"pocusai/internal/storage"
	"pocusai/internal/usage"
	"pocusai/internal/worker"
)

const (
	adminUser   = "chief"
	adminSecret = "chief-secret"
)

func TestHandlersEndToEndFlow(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())

	// Signup leaves the account pending.
	signupResp := doJSONRequest(t, router, http.MethodPost, "/api/users/signup", map[string]string{
		"username":   "sono",
		"email":      "sono@example.com",
		"password":   "pass123",
		"occupation": "Emergency physician",
	}, nil)
	assertStatus(t, signupResp, http.StatusCreated)
	var signupBody struct {
		Message string `json:"message"`
	}
	decodeJSON(t, signupResp.Body.Bytes(), &signupBody)
	if signupBody.Message != auth.SignupMessage {
		t.Fatalf("unexpected signup message %q", signupBody.Message)
	}

	pendingResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]any{
		"username": "sono",
		"password": "pass123",
	}, nil)
	assertStatus(t, pendingResp, http.StatusForbidden)

	// The administrator approves the account.
	login(t, router, adminUser, adminSecret)
	listResp := doJSONRequest(t, router, http.MethodGet, "/api/admin/users?status=pending", nil, nil)
	assertStatus(t, listResp, http.StatusOK)
	var listBody struct {
		Users   []*models.User `json:"users"`
		Summary auth.Summary   `json:"summary"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listBody)
	if len(listBody.Users) != 1 || listBody.Users[0].Username != "sono" {
		t.Fatalf("expected the pending signup, got %+v", listBody.Users)
	}
	if listBody.Summary.Total != 2 || listBody.Summary.Pending != 1 {
		t.Fatalf("unexpected summary %+v", listBody.Summary)
	}
	if listBody.Users[0].PasswordHash != "" {
		t.Fatalf("password hash must not leave the server")
	}
	approveResp := doJSONRequest(t, router, http.MethodPatch, "/api/admin/users/"+listBody.Users[0].ID+"/status",
		map[string]string{"status": "approved"}, nil)
	assertStatus(t, approveResp, http.StatusNoContent)

	// The approved user consults.
	login(t, router, "sono", "pass123")
	meResp := doJSONRequest(t, router, http.MethodGet, "/api/users/me", nil, nil)
	assertStatus(t, meResp, http.StatusOK)
	var meBody struct {
		User    models.User `json:"user"`
		IsAdmin bool        `json:"is_administrator"`
	}
	decodeJSON(t, meResp.Body.Bytes(), &meBody)
	if meBody.User.Username != "sono" || meBody.IsAdmin {
		t.Fatalf("unexpected identity %+v", meBody)
	}

	modeResp := doJSONRequest(t, router, http.MethodPost, "/api/conversation/mode", map[string]string{"mode": "pediatric"}, nil)
	assertStatus(t, modeResp, http.StatusOK)
	var modeBody struct {
		Conversation assistant.View `json:"conversation"`
		QuickActions []struct {
			Label string `json:"label"`
		} `json:"quick_actions"`
	}
	decodeJSON(t, modeResp.Body.Bytes(), &modeBody)
	if len(modeBody.Conversation.Messages) != 1 || modeBody.Conversation.Messages[0].ID != models.WelcomeMessageID {
		t.Fatalf("expected the welcome message, got %+v", modeBody.Conversation.Messages)
	}
	if len(modeBody.QuickActions) == 0 {
		t.Fatalf("expected quick actions once a mode is selected")
	}

	againResp := doJSONRequest(t, router, http.MethodPost, "/api/conversation/mode", map[string]string{"mode": "adult"}, nil)
	assertStatus(t, againResp, http.StatusBadRequest)

	msgResp := doJSONRequest(t, router, http.MethodPost, "/api/conversation/msg", map[string]string{"text": "Lung sliding absent?"}, nil)
	assertStatus(t, msgResp, http.StatusOK)
	var msgBody struct {
		Reply        models.Message `json:"reply"`
		Conversation assistant.View `json:"conversation"`
	}
	decodeJSON(t, msgResp.Body.Bytes(), &msgBody)
	if msgBody.Reply.IsError || msgBody.Reply.Text != "stub: Lung sliding absent?" {
		t.Fatalf("unexpected reply %+v", msgBody.Reply)
	}
	if len(msgBody.Conversation.Messages) != 3 {
		t.Fatalf("expected welcome, user and reply, got %d messages", len(msgBody.Conversation.Messages))
	}

	newResp := doJSONRequest(t, router, http.MethodPost, "/api/conversation/new", nil, nil)
	assertStatus(t, newResp, http.StatusOK)

	sessionsResp := doJSONRequest(t, router, http.MethodGet, "/api/conversation/sessions", nil, nil)
	assertStatus(t, sessionsResp, http.StatusOK)
	var sessionsBody struct {
		SessionList []*models.Session `json:"session_list"`
	}
	decodeJSON(t, sessionsResp.Body.Bytes(), &sessionsBody)
	if len(sessionsBody.SessionList) != 1 {
		t.Fatalf("expected one saved session, got %d", len(sessionsBody.SessionList))
	}
	saved := sessionsBody.SessionList[0]
	if saved.Title != "[Ped] Lung sliding absent?" || saved.Mode != models.ModePediatric {
		t.Fatalf("unexpected saved session %+v", saved)
	}

	loadResp := doJSONRequest(t, router, http.MethodPost, "/api/conversation/sessions/"+saved.ID+"/load", nil, nil)
	assertStatus(t, loadResp, http.StatusOK)
	var loadBody struct {
		Conversation assistant.View `json:"conversation"`
	}
	decodeJSON(t, loadResp.Body.Bytes(), &loadBody)
	if loadBody.Conversation.SessionID != saved.ID || len(loadBody.Conversation.Messages) != 3 {
		t.Fatalf("unexpected loaded conversation %+v", loadBody.Conversation)
	}

	// Regular users can not reach the admin surface.
	forbidden := doJSONRequest(t, router, http.MethodGet, "/api/admin/usage", nil, nil)
	assertStatus(t, forbidden, http.StatusForbidden)

	logoutResp := doJSONRequest(t, router, http.MethodPost, "/api/users/logout", nil, nil)
	assertStatus(t, logoutResp, http.StatusNoContent)
	afterLogout := doJSONRequest(t, router, http.MethodGet, "/api/conversation", nil, nil)
	assertStatus(t, afterLogout, http.StatusUnauthorized)
}

func TestReloadCurrentSessionKeepsTurns(t *testing.T) {
	router, store := newTestServer(t, stubGenerator())
	login(t, router, adminUser, adminSecret)

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/mode", map[string]string{"mode": "adult"}, nil), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/msg", map[string]string{"text": "first"}, nil), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/new", nil, nil), http.StatusOK)

	list, err := store.List(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one saved session, got %d (%v)", len(list), err)
	}
	loadPath := "/api/conversation/sessions/" + list[0].ID + "/load"
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, loadPath, nil, nil), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/msg", map[string]string{"text": "second"}, nil), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, loadPath, nil, nil), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/new", nil, nil), http.StatusOK)

	saved, err := store.Get(context.Background(), list[0].ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(saved.Messages) != 5 {
		t.Fatalf("expected 5 stored messages, got %d", len(saved.Messages))
	}
}

func TestSignupValidation(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())

	missing := doJSONRequest(t, router, http.MethodPost, "/api/users/signup", map[string]string{
		"username": "sono",
		"password": "pass123",
	}, nil)
	assertStatus(t, missing, http.StatusBadRequest)

	first := doJSONRequest(t, router, http.MethodPost, "/api/users/signup", map[string]string{
		"username": "sono", "email": "sono@example.com", "password": "pass123",
	}, nil)
	assertStatus(t, first, http.StatusCreated)

	dupName := doJSONRequest(t, router, http.MethodPost, "/api/users/signup", map[string]string{
		"username": "sono", "email": "other@example.com", "password": "pass123",
	}, nil)
	assertStatus(t, dupName, http.StatusConflict)
	if !strings.Contains(dupName.Body.String(), auth.ErrDuplicateUsername.Message) {
		t.Fatalf("expected duplicate username message, got %s", dupName.Body.String())
	}

	dupEmail := doJSONRequest(t, router, http.MethodPost, "/api/users/signup", map[string]string{
		"username": "other", "email": "sono@example.com", "password": "pass123",
	}, nil)
	assertStatus(t, dupEmail, http.StatusConflict)

	badLogin := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": "sono", "password": "wrong",
	}, nil)
	assertStatus(t, badLogin, http.StatusUnauthorized)
}

func TestConversationRequiresLogin(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())

	for _, path := range []string{"/api/conversation", "/api/conversation/sessions", "/api/users/me", "/api/admin/users"} {
		rec := doJSONRequest(t, router, http.MethodGet, path, nil, nil)
		assertStatus(t, rec, http.StatusUnauthorized)
	}
}

func TestCaptureInputValidation(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())
	login(t, router, adminUser, adminSecret)

	noMode := doJSONRequest(t, router, http.MethodPost, "/api/conversation/msg", map[string]string{"text": "hello"}, nil)
	assertStatus(t, noMode, http.StatusBadRequest)

	badMode := doJSONRequest(t, router, http.MethodPost, "/api/conversation/mode", map[string]string{"mode": "veterinary"}, nil)
	assertStatus(t, badMode, http.StatusBadRequest)

	modeResp := doJSONRequest(t, router, http.MethodPost, "/api/conversation/mode", map[string]string{"mode": "adult"}, nil)
	assertStatus(t, modeResp, http.StatusOK)

	empty := doJSONRequest(t, router, http.MethodPost, "/api/conversation/msg", map[string]string{"text": "   "}, nil)
	assertStatus(t, empty, http.StatusBadRequest)

	badLang := doJSONRequest(t, router, http.MethodPost, "/api/conversation/language", map[string]string{"language": "xx"}, nil)
	assertStatus(t, badLang, http.StatusBadRequest)

	missing := doJSONRequest(t, router, http.MethodPost, "/api/conversation/sessions/nope/load", nil, nil)
	assertStatus(t, missing, http.StatusNotFound)
}

func TestCaptureInputModelFailure(t *testing.T) {
	failing := ai.GeneratorFunc(func(context.Context, ai.Request) (string, error) {
		return "", &ai.ModelRequestError{Provider: "gemini", Err: ai.ErrMissingConfiguration}
	})
	router, _ := newTestServer(t, failing)
	login(t, router, adminUser, adminSecret)

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/mode", map[string]string{"mode": "adult"}, nil), http.StatusOK)
	msgResp := doJSONRequest(t, router, http.MethodPost, "/api/conversation/msg", map[string]string{"text": "FAST exam steps"}, nil)
	assertStatus(t, msgResp, http.StatusOK)
	var body struct {
		Reply models.Message `json:"reply"`
	}
	decodeJSON(t, msgResp.Body.Bytes(), &body)
	if !body.Reply.IsError {
		t.Fatalf("expected an error-flagged reply")
	}
	if !strings.Contains(body.Reply.Text, ai.ErrMissingConfiguration.Error()) {
		t.Fatalf("expected the configuration hint, got %q", body.Reply.Text)
	}
}

func TestAdminUsageAndSessionDelete(t *testing.T) {
	router, store := newTestServer(t, stubGenerator())
	login(t, router, adminUser, adminSecret)

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/mode", map[string]string{"mode": "adult"}, nil), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/msg", map[string]string{"text": "Aorta measurement"}, nil), http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/conversation/new", nil, nil), http.StatusOK)

	usageResp := doJSONRequest(t, router, http.MethodGet, "/api/admin/usage", nil, nil)
	assertStatus(t, usageResp, http.StatusOK)
	var usageBody struct {
		Counters  models.UsageCounters `json:"counters"`
		TopTopics []usage.TopicCount   `json:"top_topics"`
	}
	decodeJSON(t, usageResp.Body.Bytes(), &usageBody)
	if usageBody.Counters.TotalMessages == 0 || len(usageBody.TopTopics) == 0 {
		t.Fatalf("expected usage to be recorded, got %+v", usageBody)
	}

	list, err := store.List(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one saved session, got %d (%v)", len(list), err)
	}
	delResp := doJSONRequest(t, router, http.MethodDelete, "/api/admin/sessions/"+list[0].ID, nil, nil)
	assertStatus(t, delResp, http.StatusNoContent)
	again := doJSONRequest(t, router, http.MethodDelete, "/api/admin/sessions/"+list[0].ID, nil, nil)
	assertStatus(t, again, http.StatusNotFound)
}

func TestAdminDeleteUser(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/users/signup", map[string]string{
		"username": "resident", "email": "resident@example.com", "password": "pass123",
	}, nil), http.StatusCreated)

	login(t, router, adminUser, adminSecret)
	listResp := doJSONRequest(t, router, http.MethodGet, "/api/admin/users?q=resident", nil, nil)
	assertStatus(t, listResp, http.StatusOK)
	var listBody struct {
		Users []*models.User `json:"users"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listBody)
	if len(listBody.Users) != 1 {
		t.Fatalf("expected search to find one user, got %d", len(listBody.Users))
	}

	badStatus := doJSONRequest(t, router, http.MethodPatch, "/api/admin/users/"+listBody.Users[0].ID+"/status",
		map[string]string{"status": "archived"}, nil)
	assertStatus(t, badStatus, http.StatusBadRequest)

	delResp := doJSONRequest(t, router, http.MethodDelete, "/api/admin/users/"+listBody.Users[0].ID, nil, nil)
	assertStatus(t, delResp, http.StatusNoContent)
	missing := doJSONRequest(t, router, http.MethodDelete, "/api/admin/users/"+listBody.Users[0].ID, nil, nil)
	assertStatus(t, missing, http.StatusNotFound)
}

func TestLocaleEndpoints(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())

	langResp := doJSONRequest(t, router, http.MethodGet, "/api/locale/languages", nil, nil)
	assertStatus(t, langResp, http.StatusOK)
	var langBody struct {
		Languages []struct {
			Code string `json:"code"`
		} `json:"languages"`
	}
	decodeJSON(t, langResp.Body.Bytes(), &langBody)
	if len(langBody.Languages) != 10 {
		t.Fatalf("expected 10 languages, got %d", len(langBody.Languages))
	}

	modesResp := doJSONRequest(t, router, http.MethodGet, "/api/locale/modes?lang=en", nil, nil)
	assertStatus(t, modesResp, http.StatusOK)
	var modesBody struct {
		Modes []struct {
			Mode models.Mode `json:"mode"`
		} `json:"modes"`
	}
	decodeJSON(t, modesResp.Body.Bytes(), &modesBody)
	if len(modesBody.Modes) != 2 || modesBody.Modes[0].Mode != models.ModeAdult {
		t.Fatalf("unexpected modes %+v", modesBody.Modes)
	}
}

func TestRememberedUsername(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]any{
		"username":          adminUser,
		"password":          adminSecret,
		"remember_username": true,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/users/logout", nil, nil), http.StatusNoContent)

	rec := doJSONRequest(t, router, http.MethodGet, "/api/users/remembered", nil, nil)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Username     string `json:"username"`
		StayLoggedIn bool   `json:"stay_logged_in"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Username != adminUser || body.StayLoggedIn {
		t.Fatalf("unexpected remembered state %+v", body)
	}
}

func TestCrossSiteFormRejected(t *testing.T) {
	router, _ := newTestServer(t, stubGenerator())

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader("username=chief&password=chief-secret"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusForbidden)

	// a header forms can not set is enough for bodiless actions
	req = httptest.NewRequest(http.MethodPost, "/api/users/logout", nil)
	req.Header.Set("X-Requested-With", "fetch")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusNoContent)

	// reads are never checked
	assertStatus(t, doJSONRequest(t, router, http.MethodGet, "/api/locale/languages", nil, map[string]string{"Content-Type": "text/plain"}), http.StatusOK)
}

func stubGenerator() ai.Generator {
	return ai.GeneratorFunc(func(_ context.Context, req ai.Request) (string, error) {
		return "stub: " + req.Turn.Parts[len(req.Turn.Parts)-1].Text, nil
	})
}

func newTestServer(t *testing.T, gen ai.Generator) (*gin.Engine, *sessions.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	records := storage.NewRecords(storage.NewMemoryBackend())
	authSvc := auth.NewService(records, config.AdminConfig{Username: adminUser, Password: adminSecret}, bcrypt.MinCost)
	if err := authSvc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	store := sessions.NewStore(records)
	counter := usage.NewCounter(records)

	manager := worker.NewManager(
		worker.NewDispatcher(worker.DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8}, gen),
		func(_ string, g ai.Generator) *assistant.Conversation {
			return assistant.NewConversation(assistant.Options{Language: "en", Temperature: 0.2}, g, store, counter, authSvc)
		},
	)
	t.Cleanup(manager.Stop)

	handler := NewHandler(authSvc, store, counter, manager, nil)
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, store
}

func login(t *testing.T, router *gin.Engine, username, password string) {
	t.Helper()
	rec := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, rec, http.StatusOK)
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
