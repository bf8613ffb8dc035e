package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/caseworks/auth-api/internal/httputil"
	"github.com/caseworks/auth-api/internal/logging"
	"github.com/caseworks/auth-api/internal/user"
)

// maxAvatarUploadBytes bounds the multipart form held in memory.
const maxAvatarUploadBytes = 8 << 20 // 8 MB

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// SignupRequest represents the signup request body
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// ForgotPasswordRequest represents the password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// MessageResponse is a plain confirmation message
type MessageResponse struct {
	Message string `json:"message"`
}

// Signup handles user creation
// @Summary      Create a new user
// @Description  Create a new user account with username, email and password.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body SignupRequest true "Signup payload"
// @Success      200 {object} user.User
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email or username already exists"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /users/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	newUser, err := h.service.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateEmail):
			logger.Warn("signup failed: email already exists")
			respondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
		case errors.Is(err, user.ErrDuplicateUsername):
			logger.Warn("signup failed: username already exists")
			respondError(w, "username already exists", httputil.CodeUsernameAlreadyExists, http.StatusConflict)
		case errors.Is(err, ErrUsernameRequired):
			respondError(w, err.Error(), httputil.CodeUsernameRequired, http.StatusBadRequest)
		case errors.Is(err, ErrEmailRequired):
			respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidEmailFormat):
			respondError(w, err.Error(), httputil.CodeInvalidEmailFormat, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			respondError(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			respondError(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
		default:
			logger.Error("signup failed: internal error", "error", err.Error())
			respondError(w, "error creating user", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user created", "user_id", newUser.UserID)
	respondJSON(w, newUser, http.StatusOK)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate with email and password and receive a bearer token.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} LoginResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing email or password"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /users/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	// RemoteAddr holds the forwarded-for address when the RealIP middleware
	// resolved one; the deployment's proxy boundary is trusted for that.
	token, _, err := h.service.Login(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredentials):
			respondError(w, "email and password are required", httputil.CodeMissingCredentials, http.StatusBadRequest)
		case errors.Is(err, ErrInvalidCredentials):
			// Unknown email and wrong password intentionally share this
			// exact response.
			logger.Warn("login failed: invalid credentials")
			respondError(w, "invalid credentials", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
		default:
			logger.Error("login failed: internal error", "error", err.Error())
			respondError(w, "error logging in", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("user logged in")
	respondJSON(w, LoginResponse{Message: "Login successful", Token: token}, http.StatusOK)
}

// Info returns the claims decoded from the presented bearer token
// @Summary      Who am I
// @Description  Decode the presented bearer token and return its claims.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} Claims
// @Failure      401 {object} httputil.ErrorResponse "Missing, invalid or expired token"
// @Router       /users/info [get]
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		// RequireAuth runs before this handler; a missing claim set means
		// the route was wired without it.
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	respondJSON(w, claims, http.StatusOK)
}

// ForgotPassword starts the password reset flow
// @Summary      Request password reset
// @Description  Generate a reset token and deliver it to the user's email.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body ForgotPasswordRequest true "Account email"
// @Success      200 {object} MessageResponse
// @Failure      404 {object} httputil.ErrorResponse "No user with this email"
// @Failure      502 {object} httputil.ErrorResponse "Reset token stored but delivery failed"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /users/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot-password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			// Revealing account existence here is an accepted tradeoff of
			// the API contract, unlike login.
			respondError(w, "no user found with this email", httputil.CodeUserNotFound, http.StatusNotFound)
		case errors.Is(err, ErrNotifierFailure):
			logger.Error("reset email delivery failed", "error", err.Error())
			respondError(w, "failed to send reset email, please try again", httputil.CodeDeliveryFailed, http.StatusBadGateway)
		default:
			logger.Error("forgot-password failed: internal error", "error", err.Error())
			respondError(w, "error processing request", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("password reset email sent")
	respondJSON(w, MessageResponse{Message: "Password reset instructions have been sent"}, http.StatusOK)
}

// ResetPassword completes the password reset flow
// @Summary      Reset password
// @Description  Consume a reset token and set a new password. Tokens are single use.
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        token   path string               true "Reset token"
// @Param        request body ResetPasswordRequest true "New password"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired reset token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /users/reset-password/{token} [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := chi.URLParam(r, "token")

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset-password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.ResetPassword(r.Context(), token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidOrExpiredResetToken):
			logger.Warn("reset-password failed: invalid or expired token")
			respondError(w, "reset token is invalid or has expired", httputil.CodeInvalidResetToken, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordRequired):
			respondError(w, err.Error(), httputil.CodePasswordRequired, http.StatusBadRequest)
		case errors.Is(err, ErrPasswordTooShort):
			respondError(w, err.Error(), httputil.CodePasswordTooShort, http.StatusBadRequest)
		default:
			logger.Error("reset-password failed: internal error", "error", err.Error())
			respondError(w, "error resetting password", httputil.CodeInternalError, http.StatusInternalServerError)
		}
		return
	}

	logger.Info("password reset completed")
	respondJSON(w, MessageResponse{Message: "Your password has been changed"}, http.StatusOK)
}

// UpdateAvatar replaces a user's avatar
// @Summary      Update avatar
// @Description  Upload a new avatar image for the given user id.
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path     string true "Internal user id"
// @Param        avatar formData file   true "Avatar file"
// @Success      200 {object} user.User
// @Failure      400 {object} httputil.ErrorResponse "Bad id or upload"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /users/{id}/avatar [put]
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "invalid user id", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(maxAvatarUploadBytes); err != nil {
		logger.Warn("invalid avatar upload", "error", err.Error())
		respondError(w, "invalid multipart upload", httputil.CodeInvalidUpload, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		respondError(w, "avatar file is required", httputil.CodeInvalidUpload, http.StatusBadRequest)
		return
	}
	defer file.Close()

	updated, err := h.service.UpdateAvatar(r.Context(), id, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("avatar update failed: internal error", "error", err.Error())
		respondError(w, "error updating avatar", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("avatar updated", "user_id", updated.UserID)
	respondJSON(w, updated, http.StatusOK)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}
