package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"pocusai/internal/auth"
	"pocusai/internal/locale"
	"pocusai/internal/models"
	"pocusai/internal/service/assistant"
	"pocusai/internal/sessions"
	"pocusai/internal/usage"
	"pocusai/internal/worker"
)

type WorkerManager interface {
	Conversation(userID string) *assistant.Conversation
	ResetUser(userID string)
}

// Handler wires HTTP routes to the account, conversation and admin services.
type Handler struct {
	auth        *auth.Service
	sessions    *sessions.Store
	usage       *usage.Counter
	workers     WorkerManager
	invalidator *worker.Invalidator
}

// NewHandler constructs a Handler instance. invalidator may be nil when no
// other process shares the store.
func NewHandler(authService *auth.Service, store *sessions.Store, counter *usage.Counter, workers WorkerManager, invalidator *worker.Invalidator) *Handler {
	return &Handler{
		auth:        authService,
		sessions:    store,
		usage:       counter,
		workers:     workers,
		invalidator: invalidator,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.Use(auth.CSRFMiddleware())
	api.POST("/users/signup", h.signupUser)
	api.POST("/users/login", h.loginUser)
	api.POST("/users/logout", h.logoutUser)
	api.GET("/users/remembered", h.rememberedUser)
	api.GET("/locale/languages", h.listLanguages)
	api.GET("/locale/modes", h.listModes)

	authMW := h.auth.Middleware()
	api.GET("/users/me", authMW, h.currentUser)

	conv := api.Group("/conversation")
	conv.Use(authMW)
	conv.GET("", h.getConversation)
	conv.POST("/mode", h.selectMode)
	conv.POST("/language", h.setLanguage)
	conv.POST("/msg", h.captureInput)
	conv.POST("/new", h.startNewConversation)
	conv.GET("/sessions", h.getSessionList)
	conv.POST("/sessions/:session_id/load", h.loadSession)

	admin := api.Group("/admin")
	admin.Use(authMW, h.auth.AdminMiddleware())
	admin.GET("/users", h.listUsers)
	admin.PATCH("/users/:id/status", h.setUserStatus)
	admin.DELETE("/users/:id", h.deleteUser)
	admin.GET("/usage", h.usageStats)
	admin.DELETE("/sessions/:session_id", h.deleteSession)
}

func (h *Handler) identity(c *gin.Context) (*models.User, bool) {
	user, ok := auth.IdentityFromContext(c)
	if !ok || user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login required"})
		return nil, false
	}
	return user, true
}

func (h *Handler) conversation(c *gin.Context) (*assistant.Conversation, bool) {
	user, ok := h.identity(c)
	if !ok {
		return nil, false
	}
	return h.workers.Conversation(user.ID), true
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var authErr *auth.Error
	switch {
	case errors.As(err, &authErr):
		status := http.StatusBadRequest
		switch authErr.Kind {
		case auth.KindConflict:
			status = http.StatusConflict
		case auth.KindUnauthorized:
			status = http.StatusUnauthorized
		case auth.KindForbidden:
			status = http.StatusForbidden
		case auth.KindNotFound:
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": authErr.Message})
	case errors.Is(err, sessions.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrAwaitingResponse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrConversationReset):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, assistant.ErrNoModeSelected),
		errors.Is(err, assistant.ErrModeAlreadySelected),
		errors.Is(err, assistant.ErrInvalidMode),
		errors.Is(err, assistant.ErrInvalidLanguage),
		errors.Is(err, assistant.ErrEmptyTurn):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("api: request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// User signup&login interface
type signupRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Occupation   string `json:"occupation"`
	Introduction string `json:"introduction"`
	Purpose      string `json:"purpose"`
	Referral     string `json:"referral"`
}

func (h *Handler) signupUser(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.auth.Signup(c.Request.Context(), req.Username, req.Email, req.Password, models.Profile{
		Occupation:   req.Occupation,
		Introduction: req.Introduction,
		Purpose:      req.Purpose,
		Referral:     req.Referral,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

type loginRequest struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	RememberUsername bool   `json:"remember_username"`
	StayLoggedIn     bool   `json:"stay_logged_in"`
}

func (h *Handler) loginUser(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, req.RememberUsername, req.StayLoggedIn)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": auth.LoginMessage,
		"user":    user,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.auth.CurrentIdentity(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if user == nil {
		if err := h.auth.Logout(ctx); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.workers.Conversation(user.ID).Logout(ctx); err != nil {
		writeError(c, err)
		return
	}
	h.workers.ResetUser(user.ID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) rememberedUser(c *gin.Context) {
	ctx := c.Request.Context()
	username, err := h.auth.SavedUsername(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	stay, err := h.auth.StaySignedIn(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":       username,
		"stay_logged_in": stay,
	})
}

func (h *Handler) currentUser(c *gin.Context) {
	user, ok := h.identity(c)
	if !ok {
		return
	}
	isAdmin, err := h.auth.IsAdministrator(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":             user,
		"is_administrator": isAdmin,
	})
}

// Locale interface
func (h *Handler) listLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app_name":  locale.AppName,
		"languages": locale.Languages,
	})
}

func (h *Handler) listModes(c *gin.Context) {
	code := c.DefaultQuery("lang", locale.Languages[0].Code)
	tr := locale.For(code)
	modes := make([]gin.H, 0, 2)
	for _, m := range []struct {
		mode  models.Mode
		label string
	}{
		{models.ModeAdult, tr.AdultLabel},
		{models.ModePediatric, tr.PediatricLabel},
	} {
		modes = append(modes, gin.H{
			"mode":          m.mode,
			"label":         m.label,
			"quick_actions": locale.QuickActions(code, m.mode),
		})
	}
	c.JSON(http.StatusOK, gin.H{"welcome": tr.Welcome, "modes": modes})
}

// Conversation interface
func (h *Handler) getConversation(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation":  conv.Snapshot(),
		"quick_actions": conv.QuickActions(),
	})
}

func (h *Handler) selectMode(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	var req struct {
		Mode models.Mode `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := conv.SelectMode(req.Mode); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation":  conv.Snapshot(),
		"quick_actions": conv.QuickActions(),
	})
}

func (h *Handler) setLanguage(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	var req struct {
		Language string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := conv.SetLanguage(strings.TrimSpace(req.Language)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv.Snapshot()})
}

// User input interface
type inputRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func (h *Handler) captureInput(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := conv.SendUserTurn(c.Request.Context(), req.Text, req.Image)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":        reply,
		"conversation": conv.Snapshot(),
	})
}

func (h *Handler) startNewConversation(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	if err := conv.StartNewConversation(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conv.Snapshot()})
}

func (h *Handler) getSessionList(c *gin.Context) {
	seList, err := h.sessions.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if len(seList) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"session_list": make([]models.Session, 0),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_list": seList,
	})
}

func (h *Handler) loadSession(c *gin.Context) {
	conv, ok := h.conversation(c)
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := conv.LoadSession(c.Request.Context(), session); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation":  conv.Snapshot(),
		"quick_actions": conv.QuickActions(),
	})
}

// Admin interface
func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.auth.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	filtered := auth.FilterUsers(users, c.Query("q"), c.DefaultQuery("status", auth.StatusAll))
	if filtered == nil {
		filtered = []*models.User{}
	}
	c.JSON(http.StatusOK, gin.H{
		"users":   filtered,
		"summary": auth.Summarize(users),
	})
}

func (h *Handler) setUserStatus(c *gin.Context) {
	var req struct {
		Status models.UserStatus `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id := c.Param("id")
	if err := h.auth.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		writeError(c, err)
		return
	}
	if req.Status != models.StatusApproved {
		h.dropUser(c.Request.Context(), id)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := h.auth.DeleteUser(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	h.dropUser(c.Request.Context(), id)
	c.Status(http.StatusNoContent)
}

// dropUser discards the user's conversation here and on every server
// listening for invalidations.
func (h *Handler) dropUser(ctx context.Context, id string) {
	h.workers.ResetUser(id)
	if err := h.invalidator.PublishUser(ctx, id); err != nil {
		log.WithError(err).WithField("user_id", id).Warn("api: publish invalidation")
	}
}

func (h *Handler) usageStats(c *gin.Context) {
	counters, err := h.usage.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"counters":   counters,
		"top_topics": usage.TopTopics(counters, 5),
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("session_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
