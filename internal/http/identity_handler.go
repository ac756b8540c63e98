package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"story-identity/internal/notify"
	"story-identity/internal/service"
)

// IdentityHandler expone el SessionManager a la UI local.
type IdentityHandler struct {
	logger  *zap.Logger
	manager *service.SessionManager
	outbox  *notify.Outbox
}

// NewIdentityHandler crea el handler. outbox puede ser nil si la UI no consume avisos.
func NewIdentityHandler(logger *zap.Logger, manager *service.SessionManager, outbox *notify.Outbox) *IdentityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityHandler{
		logger:  logger,
		manager: manager,
		outbox:  outbox,
	}
}

type identityResponse struct {
	Phase        service.Phase `json:"phase"`
	Tier         string        `json:"subscription_tier"`
	IsSubscribed bool          `json:"is_subscribed"`
	IsTrialing   bool          `json:"is_trialing"`
	DisplayName  string        `json:"display_name,omitempty"`
	State        any           `json:"state"`
}

// GetIdentity maneja GET /identity.
func (h *IdentityHandler) GetIdentity(c *gin.Context) {
	c.JSON(http.StatusOK, h.snapshot())
}

func (h *IdentityHandler) snapshot() identityResponse {
	state := h.manager.State()
	name := state.User.DisplayName()
	if state.Profile != nil && state.Profile.Name != "" {
		name = state.Profile.Name
	}
	return identityResponse{
		Phase:        h.manager.Phase(),
		Tier:         state.SubscriptionTier(),
		IsSubscribed: state.IsSubscribed(),
		IsTrialing:   state.IsTrialing(),
		DisplayName:  name,
		State:        state,
	}
}

// Login maneja POST /auth/login.
func (h *IdentityHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if _, err := h.manager.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.snapshot())
}

// Signup maneja POST /auth/signup.
func (h *IdentityHandler) Signup(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid signup request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.manager.Signup(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "identity": h.snapshot()})
}

// Logout maneja POST /auth/logout.
func (h *IdentityHandler) Logout(c *gin.Context) {
	if err := h.manager.Logout(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.snapshot())
}

// LoginWithOAuth maneja POST /auth/oauth.
func (h *IdentityHandler) LoginWithOAuth(c *gin.Context) {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid oauth request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	target, err := h.manager.LoginWithOAuth(c.Request.Context(), req.Provider)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_url": target})
}

// ResetPassword maneja POST /auth/password/reset.
func (h *IdentityHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reset request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.manager.ResetPassword(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// UpdatePassword maneja POST /auth/password/update. Requiere sesion.
func (h *IdentityHandler) UpdatePassword(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid password update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userID := ""
	if state, ok := GetIdentityState(c); ok && state.User != nil {
		userID = state.User.ID
	}
	if err := h.manager.UpdatePassword(c.Request.Context(), req.Password); err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("password updated", zap.String("user_id", userID))
	c.JSON(http.StatusOK, h.snapshot())
}

// ClearError maneja DELETE /auth/error.
func (h *IdentityHandler) ClearError(c *gin.Context) {
	h.manager.ClearError()
	c.JSON(http.StatusOK, h.snapshot())
}

// DrainNotifications maneja GET /notifications.
func (h *IdentityHandler) DrainNotifications(c *gin.Context) {
	if h.outbox == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []notify.Notification{}})
		return
	}
	items := h.outbox.Drain()
	if items == nil {
		items = []notify.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (h *IdentityHandler) writeError(c *gin.Context, err error) {
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message, "field": vErr.Field})
		return
	}
	if errors.Is(err, service.ErrManagerDestroyed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session manager unavailable"})
		return
	}
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		c.JSON(statusForKind(authErr.Kind), gin.H{"error": authErr.Message, "kind": authErr.Kind})
		return
	}
	h.logger.Error("identity request failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindInvalidCredentials:
		return http.StatusBadRequest
	case service.KindSessionExpired:
		return http.StatusUnauthorized
	case service.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case service.KindRateLimited:
		return http.StatusTooManyRequests
	case service.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
