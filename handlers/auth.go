package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"magnata-crm/middleware"
	"magnata-crm/models"
	"magnata-crm/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
)

const minPasswordLength = 6

type AuthHandler struct {
	users    models.UserRepository
	tokens   *middleware.TokenManager
	sessions *session.Manager
}

func NewAuthHandler(users models.UserRepository, tokens *middleware.TokenManager, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, sessions: sessions}
}

type Credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserDTO   `json:"user"`
}

type UserDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, CodeValidation, "Informe um email e uma senha válidos")
		return
	}
	if len(req.Password) < minPasswordLength {
		SendError(c, http.StatusBadRequest, CodeValidation, SafeMessage(ErrWeakPassword, MsgAuthError))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := h.users.GetUserByEmail(c.Request.Context(), email); err == nil {
		SendError(c, http.StatusConflict, CodeConflict, SafeMessage(ErrUserExists, MsgAuthError))
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodeInternal, SafeMessage(err, MsgAuthError))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodeInternal, MsgAuthError)
		return
	}

	user := &models.User{Email: email, PasswordHash: string(hash)}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		perr := models.NewPersistenceError("create user", err)
		if perr.Code == "23505" {
			SendError(c, http.StatusConflict, CodeConflict, SafeMessage(ErrUserExists, MsgAuthError))
			return
		}
		_ = c.Error(perr)
		SendError(c, http.StatusInternalServerError, CodePersistence, SafeMessage(perr, MsgAuthError))
		return
	}

	log.Info().Str("user_id", user.ID).Msg("operator registered")
	h.respondWithToken(c, http.StatusCreated, user)
}

// Login verifies the credentials, issues a token and opens the session so
// the patient list is fetched right away.
func (h *AuthHandler) Login(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, CodeValidation, "Informe um email e uma senha válidos")
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			SendError(c, http.StatusUnauthorized, CodeUnauthorized, SafeMessage(ErrInvalidCredentials, MsgAuthError))
			return
		}
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodeInternal, SafeMessage(err, MsgAuthError))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		SendError(c, http.StatusUnauthorized, CodeUnauthorized, SafeMessage(ErrInvalidCredentials, MsgAuthError))
		return
	}

	exp, ok := h.respondWithToken(c, http.StatusOK, user)
	if !ok {
		return
	}
	if _, err := h.sessions.Open(c.Request.Context(), user.ID, exp); err != nil {
		// the list is fetched again on the next request
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to load patients on login")
	}
}

// Logout closes the session: the engine stops and the in-memory list is
// cleared. The token itself stays valid until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.sessions.Close(middleware.UserID(c))
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user *models.User) (time.Time, bool) {
	token, exp, err := h.tokens.Sign(user.ID)
	if err != nil {
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodeInternal, MsgAuthError)
		return time.Time{}, false
	}
	c.JSON(status, AuthResponse{
		Token:     token,
		ExpiresAt: exp,
		User:      UserDTO{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt},
	})
	return exp, true
}
