package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/middleware"
	"github.com/ZhengyiNLP/sister-expense-tracker/models"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/authtoken"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/notify"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/password"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"
	"github.com/ZhengyiNLP/sister-expense-tracker/types"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidCredentials = "Invalid username or password"
	msgResetRequested     = "If that email is registered, a password reset link has been sent"
	msgInvalidResetToken  = "Invalid or expired reset token"
)

type AuthHandler struct {
	users    repository.UserRepository
	tokens   *authtoken.Manager
	hasher   *password.Hasher
	notifier notify.Notifier
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthHandler(users repository.UserRepository, tokens *authtoken.Manager, hasher *password.Hasher, notifier notify.Notifier) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, hasher: hasher, notifier: notifier, now: time.Now}
}

func (h *AuthHandler) WithClock(now func() time.Time) *AuthHandler {
	h.now = now
	return h
}

// SessionVerifier validates bearer tokens for AuthMiddleware.
type SessionVerifier interface {
	VerifySession(token string) (*authtoken.Claims, error)
}

// AuthMiddleware requires "Authorization: Bearer <token>". A missing header
// is 401, a bad or expired token 403. On success userId and username are
// set in the gin context.
func AuthMiddleware(verifier SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(types.ErrorCodeUnauthorized, "Authorization header required"))
			return
		}
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(types.ErrorCodeUnauthorized, "Invalid authorization header"))
			return
		}
		claims, err := verifier.VerifySession(parts[1])
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, authtoken.ErrExpiredToken) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusForbidden, types.NewErrorResponse(types.ErrorCodeForbidden, msg))
			return
		}
		c.Set("userId", claims.ID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = email
	}
	if err := password.Validate(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("password", err.Error()))
		return
	}

	// login accepts either field, so each value must be free in both
	ctx := c.Request.Context()
	if taken, err := h.identifierTaken(ctx, username); err != nil {
		internalError(c, "lookup username failed", err)
		return
	} else if taken {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.ErrorCodeConflict, "Username already exists"))
		return
	}
	if taken, err := h.identifierTaken(ctx, email); err != nil {
		internalError(c, "lookup email failed", err)
		return
	} else if taken {
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.ErrorCodeConflict, "Email already registered"))
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		internalError(c, "hash password failed", err)
		return
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		CreatedAt:    h.now().UTC(),
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			c.JSON(http.StatusConflict, types.NewErrorResponse(types.ErrorCodeConflict, "Username or email already exists"))
			return
		}
		internalError(c, "create user failed", err)
		return
	}

	token, _, err := h.tokens.IssueSession(user)
	if err != nil {
		internalError(c, "issue session failed", err)
		return
	}
	middleware.Logger(c).Info("user registered", slog.Int("user_id", user.ID))
	c.JSON(http.StatusCreated, types.NewSuccessResponse(types.RegisterResponse{
		Message: "User registered successfully",
		UserID:  user.ID,
		Token:   token,
		User:    user,
	}))
}

func (h *AuthHandler) identifierTaken(ctx context.Context, identifier string) (bool, error) {
	if u, err := h.users.GetUserByUsername(ctx, identifier); err != nil || u != nil {
		return u != nil, err
	}
	u, err := h.users.GetUserByEmail(ctx, identifier)
	return u != nil, err
}

// Login accepts either a username or an email. Unknown accounts and wrong
// passwords get the same response.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, err.Error()))
		return
	}
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("username", "username or email is required"))
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetUserByUsername(ctx, identifier)
	if err == nil && user == nil {
		user, err = h.users.GetUserByEmail(ctx, identifier)
	}
	if err != nil {
		internalError(c, "lookup user failed", err)
		return
	}
	if user == nil {
		// burn a comparison so unknown accounts take as long as wrong passwords
		h.hasher.Verify(req.Password, h.dummy())
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.ErrorCodeUnauthorized, msgInvalidCredentials))
		return
	}
	if !h.hasher.Verify(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.ErrorCodeUnauthorized, msgInvalidCredentials))
		return
	}

	token, expiresAt, err := h.tokens.IssueSession(user)
	if err != nil {
		internalError(c, "issue session failed", err)
		return
	}
	now := h.now().UTC()
	if err := h.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		middleware.Logger(c).Warn("update last login failed", slog.Int("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLogin = &now
	}

	c.JSON(http.StatusOK, types.NewSuccessResponse(types.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		User:      user,
	}))
}

func (h *AuthHandler) dummy() string {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = h.hasher.Hash("not-a-real-password")
	})
	return h.dummyHash
}

// ForgotPassword answers with the same message whether or not the email is
// known. A delivery failure for a known account is reported as 500.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("email", "email is required"))
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		internalError(c, "lookup email failed", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusOK, types.NewSuccessResponse(types.MessageResponse{Message: msgResetRequested}))
		return
	}

	rt, err := h.tokens.IssueReset(ctx, user)
	if err != nil {
		internalError(c, "issue reset token failed", err)
		return
	}
	if err := h.notifier.SendPasswordReset(ctx, user, rt.Token, h.tokens.ResetTTL()); err != nil {
		log := middleware.Logger(c)
		log.Error("send reset email failed", slog.Int("user_id", user.ID), slog.Any("error", err))
		if rerr := h.tokens.RevokeReset(ctx, rt.Token); rerr != nil {
			log.Error("revoke undelivered reset token failed", slog.Any("error", rerr))
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.ErrorCodeInternal, "Failed to send reset email, please try again later"))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(types.MessageResponse{Message: msgResetRequested}))
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeValidation, "token and newPassword are required"))
		return
	}
	if err := password.Validate(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, types.NewFieldErrorResponse("newPassword", err.Error()))
		return
	}

	// the token is removed before any work so parallel requests cannot share it
	ctx := c.Request.Context()
	rt, err := h.tokens.TakeReset(ctx, req.Token)
	if err != nil {
		internalError(c, "take reset token failed", err)
		return
	}
	if rt == nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeInvalidToken, msgInvalidResetToken))
		return
	}

	user, err := h.users.GetUserByID(ctx, rt.UserID)
	if err != nil {
		internalError(c, "lookup user failed", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeInvalidToken, msgInvalidResetToken))
		return
	}

	hash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		internalError(c, "hash password failed", err)
		return
	}
	if err := h.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCodeInvalidToken, msgInvalidResetToken))
			return
		}
		internalError(c, "update password failed", err)
		return
	}

	middleware.Logger(c).Info("password reset", slog.Int("user_id", user.ID))
	c.JSON(http.StatusOK, types.NewSuccessResponse(types.MessageResponse{Message: "Password has been reset"}))
}

// GetCurrentUser returns the authenticated user's profile.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.users.GetUserByID(c.Request.Context(), c.GetInt("userId"))
	if err != nil {
		internalError(c, "lookup user failed", err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCodeNotFound, "User not found"))
		return
	}
	c.JSON(http.StatusOK, types.NewSuccessResponse(user))
}
